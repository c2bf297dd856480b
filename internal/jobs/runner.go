// Package jobs runs the periodic maintenance work: reclaiming stale
// temporary reservations, expiring finished e-learning access, and
// publishing booking reminders.
package jobs

import (
    "context"
    "time"

    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/booking"
    "github.com/salonova/salon-reservation/internal/queue"
    "github.com/salonova/salon-reservation/internal/repository"
)

// ReminderPublisher delivers reminder events.  Implemented by
// notify.Publisher; may be nil to disable reminders.
type ReminderPublisher interface {
    PublishBookingReminder(ctx context.Context, event queue.BookingReminderEvent) error
}

// Config holds the job cadence and thresholds.
type Config struct {
    ExpireInterval    time.Duration // how often stale reservations are reclaimed
    ReservationTTL    time.Duration // how long a TEMP_RESERVED booking may live
    ReminderInterval  time.Duration // how often reminders are evaluated
    ReminderDaysAhead int           // remind for bookings this many days out
}

// Defaults fills zero fields with sensible values.
func (c Config) withDefaults() Config {
    if c.ExpireInterval <= 0 {
        c.ExpireInterval = 5 * time.Minute
    }
    if c.ReservationTTL <= 0 {
        c.ReservationTTL = 15 * time.Minute
    }
    if c.ReminderInterval <= 0 {
        c.ReminderInterval = time.Hour
    }
    if c.ReminderDaysAhead <= 0 {
        c.ReminderDaysAhead = 1
    }
    return c
}

// Runner owns the background tickers.  Every job is also callable
// directly so an operator endpoint can trigger it out of schedule.
type Runner struct {
    cfg        Config
    bookings   *booking.Coordinator
    reminders  *repository.BookingRepo
    formations *repository.FormationRepo
    publisher  ReminderPublisher
    log        *logrus.Logger
}

// NewRunner wires a Runner.
func NewRunner(cfg Config, coord *booking.Coordinator, bookings *repository.BookingRepo, formations *repository.FormationRepo, publisher ReminderPublisher, log *logrus.Logger) *Runner {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Runner{
        cfg:        cfg.withDefaults(),
        bookings:   coord,
        reminders:  bookings,
        formations: formations,
        publisher:  publisher,
        log:        log,
    }
}

// Start launches the tickers and blocks until ctx is cancelled.  Run
// it in its own goroutine.
func (r *Runner) Start(ctx context.Context) {
    expire := time.NewTicker(r.cfg.ExpireInterval)
    remind := time.NewTicker(r.cfg.ReminderInterval)
    defer expire.Stop()
    defer remind.Stop()

    r.log.WithFields(logrus.Fields{
        "expire_interval":   r.cfg.ExpireInterval.String(),
        "reservation_ttl":   r.cfg.ReservationTTL.String(),
        "reminder_interval": r.cfg.ReminderInterval.String(),
    }).Info("job runner started")

    for {
        select {
        case <-ctx.Done():
            r.log.Info("job runner stopped")
            return
        case <-expire.C:
            r.RunExpiry(ctx)
        case <-remind.C:
            r.RunReminders(ctx)
        }
    }
}

// RunExpiry reclaims stale temporary reservations and expires
// finished e-learning access.  Errors are logged, never fatal; the
// next tick retries.
func (r *Runner) RunExpiry(ctx context.Context) {
    if _, err := r.bookings.ExpireStale(ctx, r.cfg.ReservationTTL); err != nil {
        r.log.WithError(err).Error("stale reservation sweep failed")
    }
    n, err := r.formations.ExpireOverdue(ctx, time.Now())
    if err != nil {
        r.log.WithError(err).Error("enrollment expiry sweep failed")
        return
    }
    if n > 0 {
        r.log.WithField("count", n).Info("expired enrollments")
    }
}

// RunReminders publishes one reminder per confirmed booking on the
// configured day ahead.  Duplicate reminders across ticks are
// acceptable; the consumer side is an append-only log.
func (r *Runner) RunReminders(ctx context.Context) {
    if r.publisher == nil {
        return
    }
    date := time.Now().UTC().AddDate(0, 0, r.cfg.ReminderDaysAhead).Format("2006-01-02")
    rows, err := r.reminders.ListConfirmedOnDate(ctx, date)
    if err != nil {
        r.log.WithError(err).Error("reminder query failed")
        return
    }
    sentAt := time.Now().UTC().Format("2006-01-02 15:04:05")
    for _, row := range rows {
        ev := queue.BookingReminderEvent{
            BookingID:    row.BookingID,
            UserID:       row.UserID,
            UserEmail:    row.Email,
            UserPhone:    row.Phone,
            UserFullName: row.FullName,
            SlotLabel:    row.SlotLabel,
            Date:         row.Date,
            StartTime:    row.SlotStart,
            SentAt:       sentAt,
        }
        if err := r.publisher.PublishBookingReminder(ctx, ev); err != nil {
            r.log.WithError(err).WithField("booking_id", row.BookingID).Warn("reminder publish failed")
        }
    }
    if len(rows) > 0 {
        r.log.WithFields(logrus.Fields{"date": date, "count": len(rows)}).Info("reminders published")
    }
}
