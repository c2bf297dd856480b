package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
)

// PromoRepo provides persistence for promo codes and their usage
// audit trail.  The usage counter on promo_codes only moves through
// ConfirmUsageTx and RevokeUsageTx, both of which are single guarded
// UPDATE statements so the counter invariant (0 <= count <= cap)
// holds under concurrent load without a separate read.
type PromoRepo struct {
    db *sql.DB
}

// NewPromoRepo returns a new PromoRepo bound to the given database.
func NewPromoRepo(db *sql.DB) *PromoRepo { return &PromoRepo{db: db} }

// DB exposes the underlying handle for cross-repository transactions.
func (r *PromoRepo) DB() *sql.DB { return r.db }

const selectPromo = `SELECT id, code, discount_type, discount_value, min_amount, max_discount,
        valid_from, valid_until, max_usage, max_usage_per_user, usage_count, is_active,
        created_at, updated_at
        FROM promo_codes`

func scanPromo(row rowScanner) (*model.PromoCode, error) {
    var p model.PromoCode
    var dtype string
    if err := row.Scan(
        &p.ID, &p.Code, &dtype, &p.DiscountValue, &p.MinAmount, &p.MaxDiscount,
        &p.ValidFrom, &p.ValidUntil, &p.MaxUsage, &p.MaxUsagePerUser, &p.UsageCount, &p.IsActive,
        &p.CreatedAt, &p.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    p.DiscountType = model.DiscountType(dtype)
    return &p, nil
}

// ByCode returns the promo code matching the given code string,
// compared case-insensitively via its canonical uppercase form, with
// the eligible prestation set loaded.  sql.ErrNoRows when absent.
func (r *PromoRepo) ByCode(ctx context.Context, code string) (*model.PromoCode, error) {
    canonical := strings.ToUpper(strings.TrimSpace(code))
    p, err := scanPromo(r.db.QueryRowContext(ctx, selectPromo+` WHERE code = ?`, canonical))
    if err != nil {
        return nil, err
    }
    rows, err := r.db.QueryContext(ctx,
        `SELECT prestation_id FROM promo_code_prestations WHERE promo_code_id = ?`, p.ID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        p.PrestationIDs = append(p.PrestationIDs, id)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return p, nil
}

// CodeExists reports whether a code is already stored, using the same
// canonical form as ByCode.  Used by random code generation to check
// for collisions instead of assuming them away.
func (r *PromoRepo) CodeExists(ctx context.Context, code string) (bool, error) {
    canonical := strings.ToUpper(strings.TrimSpace(code))
    var one int
    err := r.db.QueryRowContext(ctx, `SELECT 1 FROM promo_codes WHERE code = ?`, canonical).Scan(&one)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    return true, nil
}

// Create inserts a promo code and its eligibility rows.  The code is
// stored uppercase.  ErrDuplicate when the code already exists.
func (r *PromoRepo) Create(ctx context.Context, p *model.PromoCode) error {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    const ins = `INSERT INTO promo_codes
        (code, discount_type, discount_value, min_amount, max_discount,
         valid_from, valid_until, max_usage, max_usage_per_user, usage_count, is_active)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
    res, err := tx.ExecContext(ctx, ins,
        strings.ToUpper(strings.TrimSpace(p.Code)), string(p.DiscountType), p.DiscountValue,
        p.MinAmount, p.MaxDiscount,
        p.ValidFrom.UTC().Format("2006-01-02 15:04:05"), p.ValidUntil.UTC().Format("2006-01-02 15:04:05"),
        p.MaxUsage, p.MaxUsagePerUser, p.IsActive,
    )
    if err != nil {
        if isDuplicateKey(err) {
            return ErrDuplicate
        }
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    p.ID = uint64(id)
    for _, prestationID := range p.PrestationIDs {
        if _, err := tx.ExecContext(ctx,
            `INSERT INTO promo_code_prestations (promo_code_id, prestation_id) VALUES (?, ?)`,
            p.ID, prestationID,
        ); err != nil {
            return err
        }
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// List returns all promo codes, newest first.
func (r *PromoRepo) List(ctx context.Context) ([]model.PromoCode, error) {
    rows, err := r.db.QueryContext(ctx, selectPromo+` ORDER BY created_at DESC`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.PromoCode, 0)
    for rows.Next() {
        p, err := scanPromo(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, *p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// Deactivate flips the kill switch on a promo code.
func (r *PromoRepo) Deactivate(ctx context.Context, id uint64) error {
    _, err := r.db.ExecContext(ctx, `UPDATE promo_codes SET is_active = 0 WHERE id = ?`, id)
    return err
}

// CountValidatedForUser returns how many validated usages the user
// already has for the promo code.  Drives the per-user cap check.
func (r *PromoRepo) CountValidatedForUser(ctx context.Context, promoCodeID, userID uint64) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM promo_code_usages WHERE promo_code_id = ? AND user_id = ? AND status = ?`,
        promoCodeID, userID, string(model.PromoUsageValidated),
    ).Scan(&n)
    return n, err
}

// CountAttemptsSince returns how many usage rows (any status, any
// code) the user created after the given instant.  Fallback for the
// anti-abuse window when redis is unavailable.
func (r *PromoRepo) CountAttemptsSince(ctx context.Context, userID uint64, since time.Time) (int, error) {
    var n int
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*) FROM promo_code_usages WHERE user_id = ? AND attempted_at >= ?`,
        userID, since.UTC().Format("2006-01-02 15:04:05"),
    ).Scan(&n)
    return n, err
}

// RecordAttempt inserts one usage audit row.  Every validation
// attempt produces a row, including rejected ones and attempts whose
// code matched nothing (promo_code_id stays NULL).
func (r *PromoRepo) RecordAttempt(ctx context.Context, u *model.PromoCodeUsage) error {
    const q = `INSERT INTO promo_code_usages
        (promo_code_id, user_id, booking_id, status, original_amount, discount_amount, final_amount,
         client_ip, user_agent, notes)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q,
        u.PromoCodeID, u.UserID, u.BookingID, string(u.Status),
        u.OriginalAmount, u.DiscountAmount, u.FinalAmount,
        u.ClientIP, u.UserAgent, u.Notes,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    u.ID = uint64(id)
    return nil
}

// AttachBooking links an attempt row to the booking it produced.
func (r *PromoRepo) AttachBooking(ctx context.Context, usageID, bookingID uint64) error {
    _, err := r.db.ExecContext(ctx,
        `UPDATE promo_code_usages SET booking_id = ? WHERE id = ?`, bookingID, usageID)
    return err
}

// ConfirmUsageTx marks the booking's attempted usage as VALIDATED and
// increments the promo usage counter, all inside the caller's
// transaction.  It is idempotent per booking: when the usage is
// already VALIDATED, or when no usage row exists for the booking,
// nothing changes and applied is false.  The counter increment is
// guarded against the global cap; when the cap has been reached in
// the meantime the usage stays ATTEMPTED and applied is false.
func (r *PromoRepo) ConfirmUsageTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (promoCodeID uint64, applied bool, err error) {
    var usageID uint64
    var status string
    err = tx.QueryRowContext(ctx,
        `SELECT id, promo_code_id, status FROM promo_code_usages WHERE booking_id = ? ORDER BY attempted_at DESC LIMIT 1 FOR UPDATE`,
        bookingID,
    ).Scan(&usageID, &promoCodeID, &status)
    if errors.Is(err, sql.ErrNoRows) {
        return 0, false, nil
    }
    if err != nil {
        return 0, false, err
    }
    if model.PromoUsageStatus(status) != model.PromoUsageAttempted {
        return promoCodeID, false, nil
    }
    res, err := tx.ExecContext(ctx,
        `UPDATE promo_codes SET usage_count = usage_count + 1
         WHERE id = ? AND (max_usage = 0 OR usage_count < max_usage)`,
        promoCodeID,
    )
    if err != nil {
        return 0, false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return 0, false, err
    }
    if n == 0 {
        // Cap was exhausted between validation and payment; the
        // booking is still honored, the discount just is not counted.
        _, err = tx.ExecContext(ctx,
            `UPDATE promo_code_usages SET notes = 'usage cap reached before confirmation' WHERE id = ?`,
            usageID,
        )
        return promoCodeID, false, err
    }
    _, err = tx.ExecContext(ctx,
        `UPDATE promo_code_usages SET status = ?, validated_at = UTC_TIMESTAMP() WHERE id = ?`,
        string(model.PromoUsageValidated), usageID,
    )
    if err != nil {
        return 0, false, err
    }
    return promoCodeID, true, nil
}

// RevokeUsageTx reverses a validated usage after a booking
// cancellation: the usage row becomes REVOKED and the counter is
// decremented with a floor guard.  No-op (applied false) when the
// booking has no validated usage.
func (r *PromoRepo) RevokeUsageTx(ctx context.Context, tx *sql.Tx, bookingID uint64, reason string) (applied bool, err error) {
    var usageID, promoCodeID uint64
    err = tx.QueryRowContext(ctx,
        `SELECT id, promo_code_id FROM promo_code_usages WHERE booking_id = ? AND status = ? LIMIT 1 FOR UPDATE`,
        bookingID, string(model.PromoUsageValidated),
    ).Scan(&usageID, &promoCodeID)
    if errors.Is(err, sql.ErrNoRows) {
        return false, nil
    }
    if err != nil {
        return false, err
    }
    if _, err = tx.ExecContext(ctx,
        `UPDATE promo_codes SET usage_count = usage_count - 1 WHERE id = ? AND usage_count > 0`,
        promoCodeID,
    ); err != nil {
        return false, err
    }
    if _, err = tx.ExecContext(ctx,
        `UPDATE promo_code_usages SET status = ?, revoked_at = UTC_TIMESTAMP(), notes = ? WHERE id = ?`,
        string(model.PromoUsageRevoked), reason, usageID,
    ); err != nil {
        return false, err
    }
    return true, nil
}

// ConfirmUsage is the standalone form of ConfirmUsageTx for callers
// outside an existing transaction.
func (r *PromoRepo) ConfirmUsage(ctx context.Context, bookingID uint64) (uint64, bool, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return 0, false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    promoCodeID, applied, err := r.ConfirmUsageTx(ctx, tx, bookingID)
    if err != nil {
        return 0, false, err
    }
    if err := tx.Commit(); err != nil {
        return 0, false, err
    }
    committed = true
    return promoCodeID, applied, nil
}

// RevokeUsage is the standalone form of RevokeUsageTx for callers
// outside an existing transaction (booking cancellation).
func (r *PromoRepo) RevokeUsage(ctx context.Context, bookingID uint64, reason string) (bool, error) {
    tx, err := r.db.BeginTx(ctx, nil)
    if err != nil {
        return false, err
    }
    committed := false
    defer func() {
        if !committed {
            _ = tx.Rollback()
        }
    }()
    applied, err := r.RevokeUsageTx(ctx, tx, bookingID, reason)
    if err != nil {
        return false, err
    }
    if err := tx.Commit(); err != nil {
        return false, err
    }
    committed = true
    return applied, nil
}
