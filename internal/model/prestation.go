package model

import "time"

// Prestation is a salon service that can be booked into a slot.
// Price is stored in integer minor units.
//
// Fields:
//  ID              – primary key identifier.
//  Name            – service name shown to customers.
//  Price           – price in minor units.
//  DurationMinutes – nominal duration of the service.
//  IsActive        – whether the prestation can still be booked.
type Prestation struct {
    ID              uint64    // prestations.id
    Name            string    // prestations.name
    Price           int64     // prestations.price
    DurationMinutes int       // prestations.duration_minutes
    IsActive        bool      // prestations.is_active
    CreatedAt       time.Time // prestations.created_at
}
