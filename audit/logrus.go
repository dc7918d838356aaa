package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogrusSink mirrors audit events into a structured logger. Successful events
// log at Info, failures at Warn.
type LogrusSink struct {
	logger logrus.FieldLogger
}

// NewLogrusSink wraps logger. A nil logger uses logrus.StandardLogger().
func NewLogrusSink(logger logrus.FieldLogger) *LogrusSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogrusSink{logger: logger}
}

func (s *LogrusSink) Emit(_ context.Context, event Event) {
	if s == nil || s.logger == nil {
		return
	}

	fields := logrus.Fields{
		"audit":   true,
		"event":   event.EventType,
		"success": event.Success,
		"ts":      event.Timestamp,
	}
	if event.Subject != "" {
		fields["subject"] = event.Subject
	}
	if event.Purpose != "" {
		fields["purpose"] = event.Purpose
	}
	if event.VerificationID != "" {
		fields["verification_id"] = event.VerificationID
	}
	if event.IP != "" {
		fields["ip"] = event.IP
	}
	if event.CallerID != "" {
		fields["caller_id"] = event.CallerID
	}
	if event.Error != "" {
		fields["error_code"] = event.Error
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}

	entry := s.logger.WithFields(fields)
	if event.Success {
		entry.Info("verification audit event")
		return
	}
	entry.Warn("verification audit event")
}
