package repository

import (
    "context"
    "database/sql"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
)

// FormationRepo provides access to formations and enrollments.
// Enrollments are created PENDING; the only path to ACTIVE is
// ActivateTx, invoked from the payment reconciliation transaction.
type FormationRepo struct {
    db *sql.DB
}

// NewFormationRepo returns a new FormationRepo bound to the given database.
func NewFormationRepo(db *sql.DB) *FormationRepo { return &FormationRepo{db: db} }

// GetByID returns a single formation.  sql.ErrNoRows when absent.
func (r *FormationRepo) GetByID(ctx context.Context, id uint64) (*model.Formation, error) {
    var f model.Formation
    err := r.db.QueryRowContext(ctx,
        `SELECT id, title, price, access_days, is_active, created_at FROM formations WHERE id = ?`, id,
    ).Scan(&f.ID, &f.Title, &f.Price, &f.AccessDays, &f.IsActive, &f.CreatedAt)
    if err != nil {
        return nil, err
    }
    return &f, nil
}

// ListActive returns all formations open for enrollment.
func (r *FormationRepo) ListActive(ctx context.Context) ([]model.Formation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, title, price, access_days, is_active, created_at FROM formations WHERE is_active = 1 ORDER BY title`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Formation, 0)
    for rows.Next() {
        var f model.Formation
        if err := rows.Scan(&f.ID, &f.Title, &f.Price, &f.AccessDays, &f.IsActive, &f.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, f)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// CreateEnrollment inserts a PENDING enrollment and populates its ID.
func (r *FormationRepo) CreateEnrollment(ctx context.Context, e *model.Enrollment) error {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO enrollments (user_id, formation_id, status, progress_pct) VALUES (?, ?, ?, 0)`,
        e.UserID, e.FormationID, string(e.Status),
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    e.ID = uint64(id)
    return nil
}

// GetEnrollmentByID returns a single enrollment.
func (r *FormationRepo) GetEnrollmentByID(ctx context.Context, id uint64) (*model.Enrollment, error) {
    var e model.Enrollment
    var status string
    var activatedAt, accessUntil sql.NullTime
    err := r.db.QueryRowContext(ctx,
        `SELECT id, user_id, formation_id, status, progress_pct, activated_at, access_until, created_at, updated_at
         FROM enrollments WHERE id = ?`, id,
    ).Scan(&e.ID, &e.UserID, &e.FormationID, &status, &e.ProgressPct, &activatedAt, &accessUntil, &e.CreatedAt, &e.UpdatedAt)
    if err != nil {
        return nil, err
    }
    e.Status = model.EnrollmentStatus(status)
    if activatedAt.Valid {
        t := activatedAt.Time
        e.ActivatedAt = &t
    }
    if accessUntil.Valid {
        t := accessUntil.Time
        e.AccessUntil = &t
    }
    return &e, nil
}

// ActivateTx moves a PENDING enrollment to ACTIVE within an existing
// transaction, stamping the access window from the formation's
// access_days.  Activating an already ACTIVE enrollment is a no-op;
// any other state returns ErrInvalidTransition.
func (r *FormationRepo) ActivateTx(ctx context.Context, tx *sql.Tx, id uint64, now time.Time) error {
    var status string
    var accessDays int
    err := tx.QueryRowContext(ctx,
        `SELECT e.status, f.access_days FROM enrollments e
         JOIN formations f ON f.id = e.formation_id
         WHERE e.id = ? FOR UPDATE`, id,
    ).Scan(&status, &accessDays)
    if err != nil {
        return err
    }
    switch model.EnrollmentStatus(status) {
    case model.EnrollmentActive:
        return nil
    case model.EnrollmentPending:
        until := now.UTC().Add(time.Duration(accessDays) * 24 * time.Hour)
        _, err = tx.ExecContext(ctx,
            `UPDATE enrollments SET status = ?, activated_at = ?, access_until = ? WHERE id = ?`,
            string(model.EnrollmentActive),
            now.UTC().Format("2006-01-02 15:04:05"),
            until.Format("2006-01-02 15:04:05"),
            id,
        )
        return err
    default:
        return ErrInvalidTransition
    }
}

// CancelTx marks a PENDING enrollment CANCELLED after a failed
// payment.  No-op for any other state.
func (r *FormationRepo) CancelTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    _, err := tx.ExecContext(ctx,
        `UPDATE enrollments SET status = ? WHERE id = ? AND status = ?`,
        string(model.EnrollmentCancelled), id, string(model.EnrollmentPending),
    )
    return err
}

// UpdateProgress sets the progress percentage on an ACTIVE enrollment
// owned by the given user.  Returns ErrForbidden when the enrollment
// belongs to someone else and ErrInvalidTransition when it is not
// active.
func (r *FormationRepo) UpdateProgress(ctx context.Context, id, userID uint64, pct int) error {
    var ownerID uint64
    var status string
    err := r.db.QueryRowContext(ctx,
        `SELECT user_id, status FROM enrollments WHERE id = ?`, id,
    ).Scan(&ownerID, &status)
    if err != nil {
        return err
    }
    if ownerID != userID {
        return ErrForbidden
    }
    if model.EnrollmentStatus(status) != model.EnrollmentActive {
        return ErrInvalidTransition
    }
    _, err = r.db.ExecContext(ctx,
        `UPDATE enrollments SET progress_pct = ? WHERE id = ?`, pct, id)
    return err
}

// ExpireOverdue transitions ACTIVE enrollments whose access window
// has passed to EXPIRED and returns how many rows changed.  Run by
// the scheduled job; idempotent by construction.
func (r *FormationRepo) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE enrollments SET status = ? WHERE status = ? AND access_until IS NOT NULL AND access_until <= ?`,
        string(model.EnrollmentExpired), string(model.EnrollmentActive),
        now.UTC().Format("2006-01-02 15:04:05"),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// ListEnrollmentsByUser returns the user's enrollments with formation
// titles joined in, newest first.
func (r *FormationRepo) ListEnrollmentsByUser(ctx context.Context, userID uint64) ([]EnrollmentDetail, error) {
    const q = `SELECT e.id, e.formation_id, f.title, e.status, e.progress_pct, e.access_until, e.created_at
               FROM enrollments e
               JOIN formations f ON f.id = e.formation_id
               WHERE e.user_id = ?
               ORDER BY e.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]EnrollmentDetail, 0)
    for rows.Next() {
        var d EnrollmentDetail
        var accessUntil sql.NullTime
        if err := rows.Scan(&d.ID, &d.FormationID, &d.Title, &d.Status, &d.ProgressPct, &accessUntil, &d.CreatedAt); err != nil {
            return nil, err
        }
        if accessUntil.Valid {
            iso := accessUntil.Time.UTC().Format(time.RFC3339)
            d.AccessUntil = &iso
        }
        out = append(out, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// EnrollmentDetail is the listing shape returned to customers.
type EnrollmentDetail struct {
    ID          uint64    `json:"id"`
    FormationID uint64    `json:"formation_id"`
    Title       string    `json:"title"`
    Status      string    `json:"status"`
    ProgressPct int       `json:"progress_pct"`
    AccessUntil *string   `json:"access_until,omitempty"`
    CreatedAt   time.Time `json:"created_at"`
}
