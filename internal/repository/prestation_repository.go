package repository

import (
    "context"
    "database/sql"

    "github.com/salonova/salon-reservation/internal/model"
)

// PrestationRepo provides access to the prestations catalog.
type PrestationRepo struct {
    db *sql.DB
}

// NewPrestationRepo returns a new PrestationRepo bound to the given database.
func NewPrestationRepo(db *sql.DB) *PrestationRepo { return &PrestationRepo{db: db} }

// GetByID returns a single prestation.  sql.ErrNoRows when absent.
func (r *PrestationRepo) GetByID(ctx context.Context, id uint64) (*model.Prestation, error) {
    var p model.Prestation
    err := r.db.QueryRowContext(ctx,
        `SELECT id, name, price, duration_minutes, is_active, created_at FROM prestations WHERE id = ?`, id,
    ).Scan(&p.ID, &p.Name, &p.Price, &p.DurationMinutes, &p.IsActive, &p.CreatedAt)
    if err != nil {
        return nil, err
    }
    return &p, nil
}

// ListActive returns all bookable prestations.
func (r *PrestationRepo) ListActive(ctx context.Context) ([]model.Prestation, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id, name, price, duration_minutes, is_active, created_at FROM prestations WHERE is_active = 1 ORDER BY name`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := make([]model.Prestation, 0)
    for rows.Next() {
        var p model.Prestation
        if err := rows.Scan(&p.ID, &p.Name, &p.Price, &p.DurationMinutes, &p.IsActive, &p.CreatedAt); err != nil {
            return nil, err
        }
        out = append(out, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return out, nil
}
