package repository

import (
    "context"
    "database/sql"
    "strings"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
)

// SlotRepo provides access to the slots reference table.  Slots are
// created by admins and otherwise immutable; availability per date is
// derived from bookings at query time.
type SlotRepo struct {
    db *sql.DB
}

// NewSlotRepo returns a new SlotRepo bound to the given database.
func NewSlotRepo(db *sql.DB) *SlotRepo { return &SlotRepo{db: db} }

// GetByID returns a single slot.  sql.ErrNoRows when absent.
func (r *SlotRepo) GetByID(ctx context.Context, id uint64) (*model.Slot, error) {
    var s model.Slot
    err := r.db.QueryRowContext(ctx,
        `SELECT id, start_time, label, is_active, created_at FROM slots WHERE id = ?`, id,
    ).Scan(&s.ID, &s.StartTime, &s.Label, &s.IsActive, &s.CreatedAt)
    if err != nil {
        return nil, err
    }
    return &s, nil
}

// Create inserts a new slot and populates its generated ID.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
    res, err := r.db.ExecContext(ctx,
        `INSERT INTO slots (start_time, label, is_active) VALUES (?, ?, ?)`,
        s.StartTime, s.Label, s.IsActive,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    s.ID = uint64(id)
    return nil
}

// SlotAvailability pairs a slot with its occupancy on a given date.
type SlotAvailability struct {
    SlotID    uint64 `json:"slot_id"`
    StartTime string `json:"start_time"`
    Label     string `json:"label"`
    Available bool   `json:"available"`
}

// AvailabilityByDate returns every active slot with a flag telling
// whether an active-occupying booking already claims it on the given
// date.  This is a read-only snapshot; the authoritative check runs
// with locks at reservation time.
func (r *SlotRepo) AvailabilityByDate(ctx context.Context, date string) ([]SlotAvailability, error) {
    in, inArgs := occupyingList()
    q := `SELECT s.id, s.start_time, s.label,
                 NOT EXISTS (
                     SELECT 1 FROM bookings b
                     WHERE b.slot_id = s.id AND b.date = ? AND b.status IN (` + in + `)
                 ) AS available
          FROM slots s
          WHERE s.is_active = 1
          ORDER BY s.start_time`
    args := append([]interface{}{date}, inArgs...)
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]SlotAvailability, 0)
    for rows.Next() {
        var a SlotAvailability
        if err := rows.Scan(&a.SlotID, &a.StartTime, &a.Label, &a.Available); err != nil {
            return nil, err
        }
        out = append(out, a)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ListActive returns all active slots ordered by start time.
func (r *SlotRepo) ListActive(ctx context.Context) ([]model.Slot, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, start_time, label, is_active, created_at FROM slots WHERE is_active = 1 ORDER BY start_time`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Slot, 0)
    for rows.Next() {
        var s model.Slot
        if err := rows.Scan(&s.ID, &s.StartTime, &s.Label, &s.IsActive, &s.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, s)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ValidDate reports whether the string is a calendar date in
// "2006-01-02" form and not in the past relative to now.
func ValidDate(date string, now time.Time) bool {
    d, err := time.Parse("2006-01-02", strings.TrimSpace(date))
    if err != nil {
        return false
    }
    today, _ := time.Parse("2006-01-02", now.UTC().Format("2006-01-02"))
    return !d.Before(today)
}
