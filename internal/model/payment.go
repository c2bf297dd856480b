package model

import (
    "fmt"
    "time"
)

// PaymentProvider identifies one of the supported mobile-money providers.
type PaymentProvider string

const (
    ProviderOrange PaymentProvider = "orange" // Orange Money
    ProviderMTN    PaymentProvider = "mtn"    // MTN Mobile Money
    ProviderWave   PaymentProvider = "wave"   // Wave
)

// KnownProvider reports whether p is one of the supported providers.
func KnownProvider(p PaymentProvider) bool {
    return p == ProviderOrange || p == ProviderMTN || p == ProviderWave
}

// PaymentStatus enumerates the lifecycle states of a payment attempt.
// A payment is created PENDING and moves exactly once to COMPLETED or
// FAILED; both are terminal.
type PaymentStatus string

const (
    PaymentStatusPending   PaymentStatus = "PENDING"
    PaymentStatusCompleted PaymentStatus = "COMPLETED"
    PaymentStatusFailed    PaymentStatus = "FAILED"
)

// Terminal reports whether the status is final.
func (s PaymentStatus) Terminal() bool {
    return s == PaymentStatusCompleted || s == PaymentStatusFailed
}

// EntityType discriminates what a payment pays for.
type EntityType string

const (
    EntityBooking    EntityType = "booking"
    EntityEnrollment EntityType = "enrollment"
)

// Payment is one payment attempt against a payable entity.  Amounts
// are integer minor units.  Exactly one of the provider-specific
// reference fields is populated, matching Provider; ExternalID holds
// the same value and is what webhooks are matched against.  The pair
// (provider, external_id) is unique.
//
// Fields:
//  ID             – primary key identifier.
//  EntityType     – what is being paid for (booking or enrollment).
//  EntityID       – identifier of the payable entity.
//  Provider       – mobile-money provider handling the attempt.
//  ExternalID     – provider transaction identifier.
//  Amount         – amount due in minor units.
//  Currency       – ISO currency code (XOF).
//  Status         – see PaymentStatus.
//  OrangeTxnID    – Orange Money transaction id (nullable).
//  MTNReferenceID – MTN MoMo reference id (nullable).
//  WaveSessionID  – Wave checkout session id (nullable).
type Payment struct {
    ID             uint64          // payments.id
    EntityType     EntityType      // payments.entity_type
    EntityID       uint64          // payments.entity_id
    Provider       PaymentProvider // payments.provider
    ExternalID     string          // payments.external_id
    Amount         int64           // payments.amount
    Currency       string          // payments.currency
    Status         PaymentStatus   // payments.status
    OrangeTxnID    *string         // payments.orange_txn_id (nullable)
    MTNReferenceID *string         // payments.mtn_reference_id (nullable)
    WaveSessionID  *string         // payments.wave_session_id (nullable)
    CreatedAt      time.Time       // payments.created_at
    UpdatedAt      time.Time       // payments.updated_at
}

// SetExternalID records the provider transaction id in both the
// generic column and the column dedicated to the payment's provider.
// It enforces the one-populated-reference invariant at write time.
func (p *Payment) SetExternalID(id string) error {
    p.ExternalID = id
    p.OrangeTxnID, p.MTNReferenceID, p.WaveSessionID = nil, nil, nil
    switch p.Provider {
    case ProviderOrange:
        p.OrangeTxnID = &id
    case ProviderMTN:
        p.MTNReferenceID = &id
    case ProviderWave:
        p.WaveSessionID = &id
    default:
        return fmt.Errorf("unknown payment provider %q", p.Provider)
    }
    return nil
}
