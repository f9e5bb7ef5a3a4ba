package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	database "github.com/Armour007/parcelclaims-backend/internal"
	"github.com/Armour007/parcelclaims-backend/internal/api"
	"github.com/Armour007/parcelclaims-backend/internal/bank"
	"github.com/Armour007/parcelclaims-backend/internal/config"
	"github.com/Armour007/parcelclaims-backend/internal/document"
	"github.com/Armour007/parcelclaims-backend/internal/eligibility"
	"github.com/Armour007/parcelclaims-backend/internal/intake"
	"github.com/Armour007/parcelclaims-backend/internal/ledger"
	"github.com/Armour007/parcelclaims-backend/internal/mesh"
	"github.com/Armour007/parcelclaims-backend/internal/notify"
	"github.com/Armour007/parcelclaims-backend/internal/telemetry"
)

// drainTimeout bounds how long shutdown waits for queued notifications.
const drainTimeout = 15 * time.Second

func main() {
	env := config.Load()
	log := config.NewLogger(env.LogLevel, env.LogFormat)
	if env.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	// OpenTelemetry tracing (optional)
	shutdownTracing, tracing := telemetry.SetupOTel(env.OTelEnabled, env.OTelEndpoint, log)
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := database.Connect(ctx, env.LedgerDriver, env.LedgerDSN)
	if err != nil {
		cancel()
		log.WithError(err).Fatal("failed to open claim ledger")
	}
	if env.LedgerAutoMigrate {
		applied, err := database.Migrate(ctx, db)
		if err != nil {
			cancel()
			log.WithError(err).Fatal("ledger migration failed")
		}
		for _, name := range applied {
			log.WithField("migration", name).Info("applied migration")
		}
	}
	cancel()
	defer db.Close()

	// Redis, when configured, backs the cross-instance create lock and the rate limiter.
	var rdb *redis.Client
	var locker ledger.Locker
	if env.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: env.RedisAddr, Password: env.RedisPassword, DB: env.RedisDB})
		defer rdb.Close()
		locker = ledger.NewRedisLocker(rdb, env.ClaimLockTTL)
		log.WithField("addr", env.RedisAddr).Info("using redis for claim locks and rate limits")
	}
	claimLedger := ledger.New(db, locker, log)

	fonts := document.LoadFonts(env.FontRegularPath, env.FontBoldPath, log)
	composer := document.NewComposer(fonts, env.EmblemPath, env.MaskCardNumbers, log)

	bus := newBus(env.NatsURL, log)
	var mailer notify.Mailer = notify.LogMailer{Log: log}
	if env.SMTP.Configured() {
		mailer = notify.NewSMTPMailer(env.SMTP, telemetry.NewBreaker("smtp_send", env.BreakerThreshold, env.BreakerOpenFor))
	} else {
		log.Warn("SMTP not configured; claim notifications will only be logged")
	}
	dispatcher := notify.NewDispatcher(bus, mailer, env.SMTP.Recipients, env.MaskCardNumbers, log)
	unsubscribe, err := dispatcher.Start()
	if err != nil {
		log.WithError(err).Fatal("failed to start notification dispatcher")
	}

	if env.Eligibility.Token == "" {
		log.Warn("ELIGIBILITY_API_KEY is empty; parcel checks will likely be rejected")
	}
	svc := intake.New(intake.Deps{
		Ledger:      claimLedger,
		Composer:    composer,
		Notifier:    dispatcher,
		Eligibility: eligibility.NewClient(env.Eligibility, telemetry.NewBreaker("eligibility_check", env.BreakerThreshold, env.BreakerOpenFor)),
		Banks:       bank.NewClient(env.Dadata, telemetry.NewBreaker("bank_lookup", env.BreakerThreshold, env.BreakerOpenFor)),
		Archive:     env.ArchiveEnabled,
		Log:         log,
	})

	var limiter gin.HandlerFunc
	if rdb != nil {
		limiter = api.RedisRateLimitMiddleware(rdb, env.RateLimitRPM)
	} else {
		limiter = api.RateLimitMiddleware(env.RateLimitRPM)
	}
	router := api.NewRouter(api.NewHandlers(svc, claimLedger.Ping, log), api.RouterOptions{
		CORSOrigins:    env.CORSOrigins,
		TrustedProxies: env.TrustedProxies,
		RateLimit:      limiter,
		Tracing:        tracing,
		Log:            log,
	})

	srv := &http.Server{
		Addr:              ":" + env.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", env.Port).Info("starting parcel claims server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("signal received, shutting down")

	sctx, scancel := context.WithTimeout(context.Background(), drainTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.WithError(err).Warn("http shutdown incomplete")
	}
	// Close waits for in-flight notifications before the subscription goes away.
	if err := bus.Close(sctx); err != nil {
		log.WithError(err).Warn("notification drain incomplete")
	}
	unsubscribe()
}

func newBus(natsURL string, log logrus.FieldLogger) mesh.Bus {
	if natsURL == "" {
		return mesh.NewLocalBus()
	}
	b, err := mesh.NewNatsBus(natsURL)
	if err != nil {
		log.WithError(err).Warn("nats unavailable, falling back to in-process bus")
		return mesh.NewLocalBus()
	}
	return b
}
