package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
)

// BookingRepo provides persistence for bookings.  The occupancy
// invariant (at most one active-occupying booking per (slot, date)
// key) is enforced here: every write that could claim a key runs in a
// transaction that first locks the competing rows with
// SELECT ... FOR UPDATE, so no two writers can observe the key as
// free at the same time.  All timestamps are stored in UTC.
type BookingRepo struct {
    db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so callers can open transactions
// spanning multiple repositories.
func (r *BookingRepo) DB() *sql.DB { return r.db }

// occupyingList builds the IN (...) fragment and args for the
// active-occupying status set.
func occupyingList() (string, []interface{}) {
    ph := make([]string, 0, len(model.ActiveOccupyingStatuses))
    args := make([]interface{}, 0, len(model.ActiveOccupyingStatuses))
    for _, s := range model.ActiveOccupyingStatuses {
        ph = append(ph, "?")
        args = append(args, string(s))
    }
    return strings.Join(ph, ","), args
}

// CreateIfSlotFree atomically checks that no active-occupying booking
// holds (slot_id, date) and inserts the given booking.  The check and
// the insert run in one transaction with the competing rows locked,
// so concurrent callers serialize on the key.  ErrSlotTaken is
// returned when the key is occupied; the booking is not created.
// On success the generated ID and timestamps are populated on b.
func (r *BookingRepo) CreateIfSlotFree(ctx context.Context, b *model.Booking) error {
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
    if err := lockOccupant(ctx, tx, b.SlotID, b.Date); err != nil {
        return err
    }
    const ins = `INSERT INTO bookings
        (user_id, slot_id, date, prestation_id, status, original_amount, discount_amount, total_amount, pending_promo_code)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := tx.ExecContext(ctx, ins,
        b.UserID, b.SlotID, b.Date, b.PrestationID, string(b.Status),
        b.OriginalAmount, b.DiscountAmount, b.TotalAmount, b.PendingPromo,
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    b.ID = uint64(id)
    // Query back the row to populate timestamps set by the DB.
    const sel = `SELECT created_at, updated_at FROM bookings WHERE id = ?`
    if err := tx.QueryRowContext(ctx, sel, b.ID).Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// lockOccupant locks any active-occupying rows for the key and
// returns ErrSlotTaken when one exists.  Must run inside tx.
func lockOccupant(ctx context.Context, tx *sql.Tx, slotID uint64, date string) error {
    in, inArgs := occupyingList()
    q := `SELECT id FROM bookings WHERE slot_id = ? AND date = ? AND status IN (` + in + `) FOR UPDATE`
    args := append([]interface{}{slotID, date}, inArgs...)
    var occupant uint64
    err := tx.QueryRowContext(ctx, q, args...).Scan(&occupant)
    switch {
    case err == nil:
        return ErrSlotTaken
    case errors.Is(err, sql.ErrNoRows):
        return nil
    default:
        return err
    }
}

// GetByID returns a single booking by primary key.  sql.ErrNoRows is
// returned when it does not exist.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (*model.Booking, error) {
    return scanBooking(r.db.QueryRowContext(ctx, selectBooking+` WHERE id = ?`, id))
}

const selectBooking = `SELECT id, user_id, slot_id, date, prestation_id, status,
        original_amount, discount_amount, total_amount,
        promo_code_id, pending_promo_code, prev_slot_id, prev_date, paid,
        created_at, updated_at
        FROM bookings`

type rowScanner interface{ Scan(dest ...interface{}) error }

func scanBooking(row rowScanner) (*model.Booking, error) {
    var b model.Booking
    var date time.Time
    var promoID, prevSlot sql.NullInt64
    var pendingPromo sql.NullString
    var prevDate sql.NullTime
    var status string
    if err := row.Scan(
        &b.ID, &b.UserID, &b.SlotID, &date, &b.PrestationID, &status,
        &b.OriginalAmount, &b.DiscountAmount, &b.TotalAmount,
        &promoID, &pendingPromo, &prevSlot, &prevDate, &b.Paid,
        &b.CreatedAt, &b.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    b.Date = date.Format("2006-01-02")
    b.Status = model.BookingStatus(status)
    if promoID.Valid {
        v := uint64(promoID.Int64)
        b.PromoCodeID = &v
    }
    if pendingPromo.Valid {
        v := pendingPromo.String
        b.PendingPromo = &v
    }
    if prevSlot.Valid {
        v := uint64(prevSlot.Int64)
        b.PrevSlotID = &v
    }
    if prevDate.Valid {
        v := prevDate.Time.Format("2006-01-02")
        b.PrevDate = &v
    }
    return &b, nil
}

// UpdateStatusIf performs a compare-and-swap on the booking status.
// The update only applies when the current status is in the `from`
// set; it reports whether a row was changed.  Used for transitions
// that must tolerate races, such as confirm vs. expire.
func (r *BookingRepo) UpdateStatusIf(ctx context.Context, id uint64, from []model.BookingStatus, to model.BookingStatus) (bool, error) {
    ph := make([]string, 0, len(from))
    args := []interface{}{string(to), id}
    for _, s := range from {
        ph = append(ph, "?")
        args = append(args, string(s))
    }
    q := `UPDATE bookings SET status = ? WHERE id = ? AND status IN (` + strings.Join(ph, ",") + `)`
    res, err := r.db.ExecContext(ctx, q, args...)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// ConfirmTx transitions a booking to CONFIRMED and marks it paid
// within an existing transaction.  The row is locked first so that a
// concurrent expiry cannot interleave.  Confirming an already
// confirmed booking is a no-op; confirming an expired or cancelled
// booking returns ErrInvalidTransition.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, id uint64) error {
    var status string
    err := tx.QueryRowContext(ctx, `SELECT status FROM bookings WHERE id = ? FOR UPDATE`, id).Scan(&status)
    if err != nil {
        return err
    }
    switch model.BookingStatus(status) {
    case model.BookingStatusConfirmed:
        return nil
    case model.BookingStatusTempReserved, model.BookingStatusTaken:
        _, err = tx.ExecContext(ctx,
            `UPDATE bookings SET status = ?, paid = 1 WHERE id = ?`,
            string(model.BookingStatusConfirmed), id)
        return err
    default:
        return ErrInvalidTransition
    }
}

// AttachPromoTx records the confirmed promo code on the booking and
// clears the pending code.  Runs inside the reconcile transaction.
func (r *BookingRepo) AttachPromoTx(ctx context.Context, tx *sql.Tx, id, promoCodeID uint64) error {
    _, err := tx.ExecContext(ctx,
        `UPDATE bookings SET promo_code_id = ?, pending_promo_code = NULL WHERE id = ?`,
        promoCodeID, id)
    return err
}

// ExpireStale transitions every TEMP_RESERVED booking created before
// the cutoff to EXPIRED and returns how many rows changed.  The WHERE
// clause on status makes the operation safe to race with Confirm: a
// booking confirmed in between is simply skipped.
func (r *BookingRepo) ExpireStale(ctx context.Context, cutoff time.Time) (int64, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE bookings SET status = ? WHERE status = ? AND created_at <= ?`,
        string(model.BookingStatusExpired), string(model.BookingStatusTempReserved),
        cutoff.UTC().Format("2006-01-02 15:04:05"),
    )
    if err != nil {
        return 0, err
    }
    return res.RowsAffected()
}

// Reschedule moves a confirmed booking to a new (slot, date) key,
// recording the previous key.  The target key is checked and locked
// the same way as in CreateIfSlotFree; ErrSlotTaken is returned when
// it is occupied.  Only CONFIRMED bookings may be rescheduled.
func (r *BookingRepo) Reschedule(ctx context.Context, id, newSlotID uint64, newDate string) error {
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
    var status string
    var curSlot uint64
    var curDate time.Time
    err = tx.QueryRowContext(ctx,
        `SELECT status, slot_id, date FROM bookings WHERE id = ? FOR UPDATE`, id,
    ).Scan(&status, &curSlot, &curDate)
    if err != nil {
        return err
    }
    if model.BookingStatus(status) != model.BookingStatusConfirmed {
        return ErrInvalidTransition
    }
    if err := lockOccupant(ctx, tx, newSlotID, newDate); err != nil {
        return err
    }
    _, err = tx.ExecContext(ctx,
        `UPDATE bookings SET slot_id = ?, date = ?, prev_slot_id = ?, prev_date = ? WHERE id = ?`,
        newSlotID, newDate, curSlot, curDate.Format("2006-01-02"), id,
    )
    if err != nil {
        return err
    }
    if err := tx.Commit(); err != nil {
        return err
    }
    committed = true
    return nil
}

// ListByUser returns all bookings made by the given user, newest
// first, with the slot label joined in for display.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]BookingDetail, error) {
    const q = `SELECT b.id, b.slot_id, s.label, s.start_time, b.date, b.prestation_id, b.status,
                      b.original_amount, b.discount_amount, b.total_amount, b.paid, b.created_at
               FROM bookings b
               JOIN slots s ON s.id = b.slot_id
               WHERE b.user_id = ?
               ORDER BY b.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, userID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    details := make([]BookingDetail, 0)
    for rows.Next() {
        var d BookingDetail
        var date time.Time
        var status string
        if err := rows.Scan(
            &d.ID, &d.SlotID, &d.SlotLabel, &d.SlotStart, &date, &d.PrestationID, &status,
            &d.OriginalAmount, &d.DiscountAmount, &d.TotalAmount, &d.Paid, &d.CreatedAt,
        ); err != nil {
            return nil, err
        }
        d.Date = date.Format("2006-01-02")
        d.Status = status
        details = append(details, d)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return details, nil
}

// BookingDetail is the listing shape returned to customers.  It joins
// slot display fields onto the booking row.
type BookingDetail struct {
    ID             uint64    `json:"id"`
    SlotID         uint64    `json:"slot_id"`
    SlotLabel      string    `json:"slot_label"`
    SlotStart      string    `json:"slot_start"`
    Date           string    `json:"date"`
    PrestationID   uint64    `json:"prestation_id"`
    Status         string    `json:"status"`
    OriginalAmount int64     `json:"original_amount"`
    DiscountAmount int64     `json:"discount_amount"`
    TotalAmount    int64     `json:"total_amount"`
    Paid           bool      `json:"paid"`
    CreatedAt      time.Time `json:"created_at"`
}

// ListConfirmedOnDate returns confirmed bookings for the given date,
// used by the reminder job.  Each row carries the customer's contact
// fields so the notifier does not need another query.
func (r *BookingRepo) ListConfirmedOnDate(ctx context.Context, date string) ([]ReminderRow, error) {
    const q = `SELECT b.id, b.user_id, u.email, u.phone, u.full_name, s.label, s.start_time, b.date
               FROM bookings b
               JOIN users u ON u.id = b.user_id
               JOIN slots s ON s.id = b.slot_id
               WHERE b.date = ? AND b.status = ?`
    rows, err := r.db.QueryContext(ctx, q, date, string(model.BookingStatusConfirmed))
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    var out []ReminderRow
    for rows.Next() {
        var rr ReminderRow
        var d time.Time
        if err := rows.Scan(&rr.BookingID, &rr.UserID, &rr.Email, &rr.Phone, &rr.FullName, &rr.SlotLabel, &rr.SlotStart, &d); err != nil {
            return nil, err
        }
        rr.Date = d.Format("2006-01-02")
        out = append(out, rr)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}

// ReminderRow carries what the reminder job needs per booking.
type ReminderRow struct {
    BookingID uint64
    UserID    uint64
    Email     string
    Phone     string
    FullName  string
    SlotLabel string
    SlotStart string
    Date      string
}
