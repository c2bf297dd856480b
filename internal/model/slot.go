package model

import "time"

// Slot is a recurring daily time window that customers can book.
// Slots are immutable reference data; many bookings may reference
// the same slot across different dates.
//
// Fields:
//  ID        – primary key identifier.
//  StartTime – start of the window in "HH:MM" 24h form.
//  Label     – human readable label shown to customers.
//  IsActive  – whether the slot is currently bookable at all.
//  CreatedAt – creation timestamp.
type Slot struct {
    ID        uint64    // slots.id
    StartTime string    // slots.start_time
    Label     string    // slots.label
    IsActive  bool      // slots.is_active
    CreatedAt time.Time // slots.created_at
}
