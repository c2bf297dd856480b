package main // Entry point package

import (
    "context"
    "time"

    "github.com/joho/godotenv"
    "github.com/labstack/echo/v4"
    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/booking"
    "github.com/salonova/salon-reservation/internal/config"
    "github.com/salonova/salon-reservation/internal/database"
    "github.com/salonova/salon-reservation/internal/handler"
    "github.com/salonova/salon-reservation/internal/jobs"
    "github.com/salonova/salon-reservation/internal/notify"
    "github.com/salonova/salon-reservation/internal/payment"
    "github.com/salonova/salon-reservation/internal/promo"
    "github.com/salonova/salon-reservation/internal/queue"
    "github.com/salonova/salon-reservation/internal/repository"
    "github.com/salonova/salon-reservation/internal/router"
)

func main() {
    _ = godotenv.Load() // .env is optional; real deployments use the environment

    log := logrus.New()
    log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})

    cfg := config.Load()

    db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
    if err != nil {
        log.WithError(err).Fatal("database connection failed")
    }

    // Redis backs the distributed slot locks, the promo abuse window,
    // rate limiting and response caching.  When it is unreachable the
    // server still runs: locking falls back to in-process mutexes and
    // the redis-backed middleware disables itself.
    rdb := config.NewRedisClient()
    var locker booking.Locker
    if rdb != nil {
        locker = booking.NewRedisLocker(rdb, 10*time.Second, 3*time.Second)
    } else {
        log.Warn("redis unavailable, using in-process slot locks")
        locker = booking.NewLocalLocker(3 * time.Second)
    }

    users := repository.NewUserRepo(db)
    slots := repository.NewSlotRepo(db)
    prestations := repository.NewPrestationRepo(db)
    bookings := repository.NewBookingRepo(db)
    payments := repository.NewPaymentRepo(db)
    promos := repository.NewPromoRepo(db)
    formations := repository.NewFormationRepo(db)

    publisher := notify.NewPublisher(cfg.RabbitURL, log)

    engine := promo.NewEngine(promos, rdb, log)
    coordinator := booking.NewCoordinator(bookings, locker, promos, log)

    gateways := payment.NewRegistry(
        payment.NewOrangeGateway(payment.OrangeConfig{
            BaseURL:     cfg.Orange.BaseURL,
            MerchantKey: cfg.Orange.MerchantKey,
            AuthToken:   cfg.Orange.AuthToken,
            CallbackURL: cfg.Orange.CallbackURL,
        }),
        payment.NewMTNGateway(payment.MTNConfig{
            BaseURL:         cfg.MTN.BaseURL,
            SubscriptionKey: cfg.MTN.SubscriptionKey,
            AuthToken:       cfg.MTN.AuthToken,
            TargetEnv:       cfg.MTN.TargetEnv,
        }),
        payment.NewWaveGateway(payment.WaveConfig{
            BaseURL: cfg.Wave.BaseURL,
            APIKey:  cfg.Wave.APIKey,
        }),
    )
    initiator := payment.NewInitiator(gateways, payments, cfg.Currency, log)
    reconciler := payment.NewReconciler(db, gateways, payments, bookings, promos, formations, publisher, log)

    runner := jobs.NewRunner(jobs.Config{
        ExpireInterval:    cfg.ExpireInterval,
        ReservationTTL:    cfg.ReservationTTL,
        ReminderInterval:  cfg.ReminderInterval,
        ReminderDaysAhead: cfg.ReminderDaysAhead,
    }, coordinator, bookings, formations, publisher, log)

    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()
    go runner.Start(ctx)

    // Broker consumers write receipts and reminders to logs/; they
    // reconnect forever on their own.
    go func() {
        if err := queue.StartReceiptConsumer(); err != nil {
            log.WithError(err).Error("receipt consumer stopped")
        }
    }()
    go func() {
        if err := queue.StartReminderConsumer(); err != nil {
            log.WithError(err).Error("reminder consumer stopped")
        }
    }()

    e := echo.New()
    e.HideBanner = true
    router.Register(e, router.Handlers{
        Auth:      handler.NewAuthHandler(cfg, users),
        Booking:   handler.NewBookingHandler(coordinator, bookings, slots, prestations, engine),
        Payment:   handler.NewPaymentHandler(initiator, payments, bookings, formations),
        Webhook:   handler.NewWebhookHandler(reconciler, log),
        Promo:     handler.NewPromoHandler(engine),
        Formation: handler.NewFormationHandler(formations),
        Admin:     handler.NewAdminHandler(coordinator, slots, promos, engine, runner),
    }, cfg.JWTSecret, rdb)

    addr := ":" + cfg.Port
    log.WithFields(logrus.Fields{"addr": addr, "env": cfg.Env}).Info("server starting")
    if err := e.Start(addr); err != nil {
        log.WithError(err).Fatal("server stopped")
    }
}
