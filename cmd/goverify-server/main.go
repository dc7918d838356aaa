package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goVerify "github.com/MrEthical07/goVerify"
	"github.com/MrEthical07/goVerify/audit"
	"github.com/MrEthical07/goVerify/credstore"
	"github.com/MrEthical07/goVerify/httpapi"
	"github.com/MrEthical07/goVerify/jwt"
	"github.com/MrEthical07/goVerify/metrics/export/prometheus"
	"github.com/MrEthical07/goVerify/notify"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

const AppName = "goverify"

func main() {
	configPath := flag.String("config", getEnv("GOVERIFY_CONFIG", ""), "path to YAML config")
	flag.Parse()

	logger := newLogger(AppName)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		logger.WithError(err).Fatal("Invalid verification config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//----------------------------------------------------------------------
	// Backends
	//----------------------------------------------------------------------
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("Failed to reach redis")
	}

	builder := goVerify.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithLogger(logger).
		WithNotifier(buildNotifier(cfg, logger))

	sinks := audit.MultiSink{audit.NewLogrusSink(logger)}
	var scheduler *cron.Cron

	if cfg.Database.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Database.URL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to postgres")
		}
		defer pool.Close()

		store := credstore.NewPostgresStore(pool)
		if err := store.Migrate(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to migrate verification records")
		}
		if _, err := pool.Exec(ctx, audit.PostgresSchema); err != nil {
			logger.WithError(err).Fatal("Failed to migrate audit events")
		}
		builder = builder.WithStore(store)
		sinks = append(sinks, audit.NewPostgresSink(pool, logger))

		scheduler = cron.New()
		if _, err := scheduler.AddFunc(cfg.Database.PurgeSchedule, purgeJob(store, cfg.Database.PurgeAfter, logger)); err != nil {
			logger.WithError(err).Fatal("Failed to schedule record purge job")
		}
		scheduler.Start()
	}

	engine, err := builder.WithAuditSink(sinks).Build()
	if err != nil {
		logger.WithError(err).Fatal("Failed to build verification engine")
	}
	defer engine.Close()

	logSecurityReport(logger, engine.SecurityReport())

	//----------------------------------------------------------------------
	// Router & Endpoints
	//----------------------------------------------------------------------
	opts := httpapi.Options{
		TrustForwardedFor: cfg.Server.TrustForwardedFor,
		Logger:            logger,
	}
	if cfg.CallerAuth.HS256Key != "" {
		mgr, err := jwt.NewManager(jwt.Config{
			SigningMethod: jwt.MethodHS256,
			PrivateKey:    []byte(cfg.CallerAuth.HS256Key),
			Issuer:        cfg.CallerAuth.Issuer,
			Audience:      cfg.CallerAuth.Audience,
			Leeway:        30 * time.Second,
		})
		if err != nil {
			logger.WithError(err).Fatal("Invalid caller auth config")
		}
		opts.Callers = mgr
	}

	router := httpapi.NewRouter(engine, opts)
	if engineCfg.Metrics.Enabled {
		router.Handle(cfg.Server.MetricsPath, prometheus.NewExporter(engine).Handler()).Methods(http.MethodGet)
	}

	co := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           co.Handler(router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("Starting %s on %s", AppName, cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Graceful shutdown failed")
	}
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
}

// buildNotifier routes sms to Twilio and email to SendGrid, else SMTP. Any
// channel without credentials falls back to printing on stdout.
func buildNotifier(cfg ServerConfig, logger logrus.FieldLogger) notify.Notifier {
	fallback := notify.NewWriterNotifier(os.Stdout, cfg.Notify.AppName)
	router := notify.Router{
		notify.ChannelSMS:   fallback,
		notify.ChannelEmail: fallback,
	}

	if t := cfg.Notify.Twilio; t.AccountSID != "" && t.AuthToken != "" {
		router[notify.ChannelSMS] = notify.NewTwilioSMS(notify.TwilioConfig{
			AccountSID: t.AccountSID,
			AuthToken:  t.AuthToken,
			FromPhone:  t.FromPhone,
			AppName:    cfg.Notify.AppName,
		})
	} else {
		logger.Warn("No Twilio credentials; SMS codes will be printed to stdout")
	}

	switch sg, smtp := cfg.Notify.SendGrid, cfg.Notify.SMTP; {
	case sg.APIKey != "":
		router[notify.ChannelEmail] = notify.NewSendGridEmail(notify.SendGridConfig{
			APIKey:      sg.APIKey,
			FromName:    sg.FromName,
			FromAddress: sg.FromAddress,
			AppName:     cfg.Notify.AppName,
			SandboxMode: sg.Sandbox,
		})
	case smtp.Host != "":
		router[notify.ChannelEmail] = notify.NewSMTPEmail(notify.SMTPConfig{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			AppName:  cfg.Notify.AppName,
		})
	default:
		logger.Warn("No email transport configured; email codes will be printed to stdout")
	}

	return router
}

func purgeJob(store *credstore.PostgresStore, olderThan time.Duration, logger logrus.FieldLogger) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		n, err := store.PurgeInert(ctx, olderThan)
		if err != nil {
			logger.WithError(err).Error("Scheduled verification record purge failed")
			return
		}
		logger.WithField("purged", n).Info("Purged inert verification records")
	}
}

func logSecurityReport(logger logrus.FieldLogger, r goVerify.SecurityReport) {
	entry := logger.WithFields(logrus.Fields{
		"production_mode":  r.ProductionMode,
		"rate_limiting":    r.RateLimitingActive,
		"caller_limits":    r.CallerLimitsActive,
		"lockout_history":  r.LockoutHistoryActive,
		"audit":            r.AuditActive,
		"metrics":          r.MetricsActive,
		"max_resends":      r.MaxResends,
		"backoff_schedule": r.BackoffSchedule,
	})
	if !r.RateLimitingActive || !r.AuditActive {
		entry.Warn("Verification engine running with reduced hardening")
	} else {
		entry.Info("Verification engine hardening")
	}

	for _, p := range r.Purposes {
		logger.WithFields(logrus.Fields{
			"purpose":      p.Purpose,
			"subject_kind": p.SubjectKind,
			"secret":       p.Secret,
			"ttl":          p.TTL,
			"max_attempts": p.MaxAttempts,
			"channels":     p.Channels,
		}).Debug("Purpose policy")
	}
}
