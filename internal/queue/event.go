// Package queue defines message payloads exchanged over the message broker.
package queue

// Queue names.  Both are declared durable by publishers and consumers
// alike so whichever side starts first creates them.
const (
    ReceiptQueueName  = "payment.receipt"
    ReminderQueueName = "booking.reminder"
)

// PaymentReceiptEvent is published after a payment reaches a terminal
// state.  It carries enough information for downstream consumers to
// log, notify, or trigger analytics without querying the primary
// database.
type PaymentReceiptEvent struct {
    PaymentID      uint64 `json:"payment_id"`
    EntityType     string `json:"entity_type"` // booking or enrollment
    EntityID       uint64 `json:"entity_id"`
    Provider       string `json:"provider"`
    ExternalID     string `json:"external_id"`
    AmountMinor    int64  `json:"amount_minor"`
    Currency       string `json:"currency"`
    Status         string `json:"status"` // COMPLETED or FAILED
    ReconciledAt   string `json:"reconciled_at"`
}

// BookingReminderEvent is published by the reminder job for every
// confirmed booking on an upcoming date.
type BookingReminderEvent struct {
    BookingID    uint64 `json:"booking_id"`
    UserID       uint64 `json:"user_id"`
    UserEmail    string `json:"user_email"`
    UserPhone    string `json:"user_phone"`
    UserFullName string `json:"user_full_name"`
    SlotLabel    string `json:"slot_label"`
    Date         string `json:"date"`       // 2006-01-02
    StartTime    string `json:"start_time"` // HH:MM
    SentAt       string `json:"sent_at"`
}
