package main

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type appNameHook struct {
	appName string
}

func (h *appNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *appNameHook) Fire(entry *logrus.Entry) error {
	entry.Message = "[" + h.appName + "] " + entry.Message
	return nil
}

// newLogger builds the process logger from LOG_LEVEL (default info).
func newLogger(appName string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))
	if levelStr == "" {
		levelStr = "info"
	}
	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		logger.Warnf("Invalid LOG_LEVEL '%s', defaulting to INFO", levelStr)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.AddHook(&appNameHook{appName})
	return logger
}
