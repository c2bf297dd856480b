// Package promo implements promo code validation, discount
// computation and the usage lifecycle (tentative apply, confirmation
// on payment, revocation on cancellation).  Every validation attempt
// is written to the audit trail and counted against a rolling
// anti-abuse window.
package promo

import (
    "context"
    "crypto/rand"
    "database/sql"
    "errors"
    "fmt"
    "math/big"
    "strings"
    "time"

    "github.com/google/uuid"
    "github.com/redis/go-redis/v9"
    "github.com/sirupsen/logrus"

    "github.com/salonova/salon-reservation/internal/model"
)

// Rejection reasons returned to clients.  They double as audit notes
// on the attempt rows.
const (
    ReasonUnknownCode     = "unknown_code"
    ReasonInactive        = "code_inactive"
    ReasonNotStarted      = "not_yet_valid"
    ReasonExpired         = "code_expired"
    ReasonNotEligible     = "prestation_not_eligible"
    ReasonBelowMinimum    = "amount_below_minimum"
    ReasonGlobalCap       = "usage_limit_reached"
    ReasonUserCap         = "user_limit_reached"
    ReasonTooManyAttempts = "too_many_attempts"
)

const (
    abuseWindow      = 5 * time.Minute
    abuseMaxAttempts = 10
    codeCharset      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Store is the persistence contract the engine needs.  Implemented by
// repository.PromoRepo; tests substitute an in-memory fake.
type Store interface {
    ByCode(ctx context.Context, code string) (*model.PromoCode, error)
    CodeExists(ctx context.Context, code string) (bool, error)
    CountValidatedForUser(ctx context.Context, promoCodeID, userID uint64) (int, error)
    CountAttemptsSince(ctx context.Context, userID uint64, since time.Time) (int, error)
    RecordAttempt(ctx context.Context, u *model.PromoCodeUsage) error
    AttachBooking(ctx context.Context, usageID, bookingID uint64) error
    ConfirmUsage(ctx context.Context, bookingID uint64) (uint64, bool, error)
    RevokeUsage(ctx context.Context, bookingID uint64, reason string) (bool, error)
}

// ValidationResult is the outcome of a validation check.
type ValidationResult struct {
    OK     bool   `json:"ok"`
    Reason string `json:"reason,omitempty"`
}

// Engine evaluates promo codes.  When rdb is non-nil the anti-abuse
// window lives in redis (correct across instances); otherwise it
// falls back to counting audit rows in the database.
type Engine struct {
    store Store
    rdb   *redis.Client
    log   *logrus.Logger
    now   func() time.Time
}

// NewEngine wires an Engine.  rdb may be nil.
func NewEngine(store Store, rdb *redis.Client, log *logrus.Logger) *Engine {
    if log == nil {
        log = logrus.StandardLogger()
    }
    return &Engine{store: store, rdb: rdb, log: log, now: time.Now}
}

// Validate checks a code against all business rules without any side
// effect.  The returned promo is non-nil whenever the code resolved,
// even if a later rule rejected it, so callers can still audit the
// attempt.  A nil error with OK=false is a business rejection; errors
// are infrastructure failures only.
func (e *Engine) Validate(ctx context.Context, code string, userID, prestationID uint64, amount int64) (*model.PromoCode, ValidationResult, error) {
    tooMany, err := e.tooManyAttempts(ctx, userID)
    if err != nil {
        return nil, ValidationResult{}, err
    }
    if tooMany {
        return nil, ValidationResult{OK: false, Reason: ReasonTooManyAttempts}, nil
    }
    p, err := e.store.ByCode(ctx, code)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ValidationResult{OK: false, Reason: ReasonUnknownCode}, nil
    }
    if err != nil {
        return nil, ValidationResult{}, err
    }
    now := e.now().UTC()
    switch {
    case !p.IsActive:
        return p, ValidationResult{OK: false, Reason: ReasonInactive}, nil
    case now.Before(p.ValidFrom):
        return p, ValidationResult{OK: false, Reason: ReasonNotStarted}, nil
    case now.After(p.ValidUntil):
        return p, ValidationResult{OK: false, Reason: ReasonExpired}, nil
    case !p.EligibleFor(prestationID):
        return p, ValidationResult{OK: false, Reason: ReasonNotEligible}, nil
    case p.MinAmount > 0 && amount < p.MinAmount:
        return p, ValidationResult{OK: false, Reason: ReasonBelowMinimum}, nil
    case p.MaxUsage > 0 && p.UsageCount >= p.MaxUsage:
        return p, ValidationResult{OK: false, Reason: ReasonGlobalCap}, nil
    }
    if p.MaxUsagePerUser > 0 {
        used, err := e.store.CountValidatedForUser(ctx, p.ID, userID)
        if err != nil {
            return p, ValidationResult{}, err
        }
        if used >= p.MaxUsagePerUser {
            return p, ValidationResult{OK: false, Reason: ReasonUserCap}, nil
        }
    }
    return p, ValidationResult{OK: true}, nil
}

// tooManyAttempts records the current attempt in the rolling window
// and reports whether the user already exceeded the limit before it.
func (e *Engine) tooManyAttempts(ctx context.Context, userID uint64) (bool, error) {
    if e.rdb != nil {
        key := fmt.Sprintf("promo:attempts:%d", userID)
        now := e.now().UTC()
        pipe := e.rdb.TxPipeline()
        pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", now.Add(-abuseWindow).UnixMilli()))
        card := pipe.ZCard(ctx, key)
        pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: uuid.NewString()})
        pipe.Expire(ctx, key, abuseWindow)
        if _, err := pipe.Exec(ctx); err != nil {
            // Degrade to the database count rather than failing the
            // request when redis is flapping.
            e.log.WithError(err).Warn("promo abuse window redis error, falling back to db")
        } else {
            return card.Val() >= abuseMaxAttempts, nil
        }
    }
    n, err := e.store.CountAttemptsSince(ctx, userID, e.now().UTC().Add(-abuseWindow))
    if err != nil {
        return false, err
    }
    return n >= abuseMaxAttempts, nil
}

// ComputeDiscount returns the discount a promo grants on the given
// amount.  Percentage discounts are floored; both kinds are clamped
// to the promo's MaxDiscount when set and never exceed the amount
// itself, nor go negative.
func ComputeDiscount(p *model.PromoCode, amount int64) int64 {
    if amount <= 0 {
        return 0
    }
    var d int64
    switch p.DiscountType {
    case model.DiscountPercentage:
        d = amount * p.DiscountValue / 100
    case model.DiscountFixed:
        d = p.DiscountValue
    default:
        return 0
    }
    if p.MaxDiscount > 0 && d > p.MaxDiscount {
        d = p.MaxDiscount
    }
    if d > amount {
        d = amount
    }
    if d < 0 {
        d = 0
    }
    return d
}

// ApplyInput carries everything a tentative application needs,
// including the client fingerprint for the audit trail.
type ApplyInput struct {
    Code         string
    UserID       uint64
    PrestationID uint64
    Amount       int64
    ClientIP     string
    UserAgent    string
}

// ApplyResult is the outcome of a tentative application.  UsageID is
// the audit row created for the attempt.
type ApplyResult struct {
    Valid          bool
    Reason         string
    Promo          *model.PromoCode
    UsageID        uint64
    DiscountAmount int64
    FinalAmount    int64
}

// ApplyTentative validates the code, computes the discount and writes
// an ATTEMPTED audit row for every call, including entries that match
// no stored code: code-guessing has to count toward the abuse window
// even when redis is down and the window is the database count.  It
// never touches the promo's usage counter; that happens at
// confirmation.
func (e *Engine) ApplyTentative(ctx context.Context, in ApplyInput) (*ApplyResult, error) {
    p, res, err := e.Validate(ctx, in.Code, in.UserID, in.PrestationID, in.Amount)
    if err != nil {
        return nil, err
    }
    out := &ApplyResult{Valid: res.OK, Reason: res.Reason, Promo: p, FinalAmount: in.Amount}
    if res.OK {
        out.DiscountAmount = ComputeDiscount(p, in.Amount)
        out.FinalAmount = in.Amount - out.DiscountAmount
    }
    usage := &model.PromoCodeUsage{
        UserID:         in.UserID,
        Status:         model.PromoUsageAttempted,
        OriginalAmount: in.Amount,
        DiscountAmount: out.DiscountAmount,
        FinalAmount:    out.FinalAmount,
        ClientIP:       in.ClientIP,
        UserAgent:      in.UserAgent,
        Notes:          res.Reason,
    }
    if p != nil {
        usage.PromoCodeID = &p.ID
    }
    if err := e.store.RecordAttempt(ctx, usage); err != nil {
        return nil, err
    }
    out.UsageID = usage.ID
    return out, nil
}

// AttachBooking links an audit row to the booking it was applied to.
func (e *Engine) AttachBooking(ctx context.Context, usageID, bookingID uint64) error {
    return e.store.AttachBooking(ctx, usageID, bookingID)
}

// ConfirmUsage marks the booking's promo usage VALIDATED and counts
// it against the code's caps.  Idempotent per booking.
func (e *Engine) ConfirmUsage(ctx context.Context, bookingID uint64) (bool, error) {
    _, applied, err := e.store.ConfirmUsage(ctx, bookingID)
    return applied, err
}

// RevokeUsage reverses a validated usage after a cancellation.
func (e *Engine) RevokeUsage(ctx context.Context, bookingID uint64, reason string) (bool, error) {
    return e.store.RevokeUsage(ctx, bookingID, reason)
}

// GenerateRandomCode draws a code of the given length from [A-Z0-9]
// and retries until it does not collide with a stored code.  The
// collision probability is tiny but checked rather than assumed.
func (e *Engine) GenerateRandomCode(ctx context.Context, length int) (string, error) {
    if length <= 0 {
        length = 8
    }
    for attempt := 0; attempt < 10; attempt++ {
        code, err := randomCode(length)
        if err != nil {
            return "", err
        }
        exists, err := e.store.CodeExists(ctx, code)
        if err != nil {
            return "", err
        }
        if !exists {
            return code, nil
        }
    }
    return "", errors.New("could not generate a unique promo code")
}

func randomCode(length int) (string, error) {
    var sb strings.Builder
    max := big.NewInt(int64(len(codeCharset)))
    for i := 0; i < length; i++ {
        n, err := rand.Int(rand.Reader, max)
        if err != nil {
            return "", err
        }
        sb.WriteByte(codeCharset[n.Int64()])
    }
    return sb.String(), nil
}
