package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"

    "github.com/salonova/salon-reservation/internal/model"
)

// PaymentRepo provides persistence for payment attempts.  The pair
// (provider, external_id) is unique so that webhook callbacks resolve
// to exactly one local payment.  Status transitions happen inside the
// reconciliation transaction with the row locked; nothing outside
// that path is allowed to flip a payment's status.
type PaymentRepo struct {
    db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// DB exposes the underlying handle for cross-repository transactions.
func (r *PaymentRepo) DB() *sql.DB { return r.db }

// Create inserts a new pending payment.  The provider reference
// columns must already be populated via Payment.SetExternalID.  A
// duplicate (provider, external_id) pair maps to ErrDuplicate.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
    const q = `INSERT INTO payments
        (entity_type, entity_id, provider, external_id, amount, currency, status,
         orange_txn_id, mtn_reference_id, wave_session_id)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q,
        string(p.EntityType), p.EntityID, string(p.Provider), p.ExternalID,
        p.Amount, p.Currency, string(p.Status),
        p.OrangeTxnID, p.MTNReferenceID, p.WaveSessionID,
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
    return nil
}

// isDuplicateKey detects a MySQL unique-constraint violation (1062)
// without depending on the driver's error type.
func isDuplicateKey(err error) bool {
    return err != nil && strings.Contains(err.Error(), "Error 1062")
}

const selectPayment = `SELECT id, entity_type, entity_id, provider, external_id, amount, currency, status,
        orange_txn_id, mtn_reference_id, wave_session_id, created_at, updated_at
        FROM payments`

func scanPayment(row rowScanner) (*model.Payment, error) {
    var p model.Payment
    var entityType, provider, status string
    var orange, mtn, wave sql.NullString
    if err := row.Scan(
        &p.ID, &entityType, &p.EntityID, &provider, &p.ExternalID, &p.Amount, &p.Currency, &status,
        &orange, &mtn, &wave, &p.CreatedAt, &p.UpdatedAt,
    ); err != nil {
        return nil, err
    }
    p.EntityType = model.EntityType(entityType)
    p.Provider = model.PaymentProvider(provider)
    p.Status = model.PaymentStatus(status)
    if orange.Valid {
        v := orange.String
        p.OrangeTxnID = &v
    }
    if mtn.Valid {
        v := mtn.String
        p.MTNReferenceID = &v
    }
    if wave.Valid {
        v := wave.String
        p.WaveSessionID = &v
    }
    return &p, nil
}

// GetByExternalIDTx looks up a payment by its (provider, external id)
// pair and locks the row for the remainder of the transaction.  This
// is the entry point of webhook reconciliation: the lock totally
// orders competing callbacks for the same transaction.  Returns
// ErrPaymentNotFound when no payment matches.
func (r *PaymentRepo) GetByExternalIDTx(ctx context.Context, tx *sql.Tx, provider model.PaymentProvider, externalID string) (*model.Payment, error) {
    row := tx.QueryRowContext(ctx,
        selectPayment+` WHERE provider = ? AND external_id = ? FOR UPDATE`,
        string(provider), externalID,
    )
    p, err := scanPayment(row)
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrPaymentNotFound
    }
    return p, err
}

// SetStatusTx updates a payment's status within a transaction.  The
// caller must have loaded the row FOR UPDATE and checked that the
// current status is not terminal.
func (r *PaymentRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.PaymentStatus) error {
    _, err := tx.ExecContext(ctx, `UPDATE payments SET status = ? WHERE id = ?`, string(status), id)
    return err
}

// GetByID returns a single payment by primary key.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (*model.Payment, error) {
    return scanPayment(r.db.QueryRowContext(ctx, selectPayment+` WHERE id = ?`, id))
}

// ListByEntity returns every payment attempt recorded against a
// payable entity, newest first.
func (r *PaymentRepo) ListByEntity(ctx context.Context, entityType model.EntityType, entityID uint64) ([]model.Payment, error) {
    rows, err := r.db.QueryContext(ctx,
        selectPayment+` WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC`,
        string(entityType), entityID,
    )
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Payment, 0)
    for rows.Next() {
        p, err := scanPayment(rows)
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
