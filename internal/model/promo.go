package model

import "time"

// DiscountType describes how a promo code reduces an amount.
type DiscountType string

const (
    DiscountPercentage DiscountType = "PERCENTAGE"
    DiscountFixed      DiscountType = "FIXED"
)

// PromoCode is a reusable discount rule.  Codes are stored in their
// canonical uppercase form so that lookups are case-insensitive via a
// unique index.  The usage counter only ever moves through the
// confirm/revoke operations in the promo repository, never by direct
// edits.
//
// Fields:
//  ID              – primary key identifier.
//  Code            – unique uppercase code string.
//  DiscountType    – percentage or fixed amount.
//  DiscountValue   – percent (0–100) or fixed minor units, per type.
//  MinAmount       – minimum eligible amount, zero when unset.
//  MaxDiscount     – cap on the computed discount, zero when unset.
//  ValidFrom       – start of the validity window.
//  ValidUntil      – end of the validity window.
//  MaxUsage        – global usage cap, zero when unlimited.
//  MaxUsagePerUser – per-user cap, zero when unlimited.
//  UsageCount      – validated usages so far (<= MaxUsage when capped).
//  IsActive        – kill switch.
//  PrestationIDs   – eligible prestations; empty means all eligible.
type PromoCode struct {
    ID              uint64       // promo_codes.id
    Code            string       // promo_codes.code
    DiscountType    DiscountType // promo_codes.discount_type
    DiscountValue   int64        // promo_codes.discount_value
    MinAmount       int64        // promo_codes.min_amount
    MaxDiscount     int64        // promo_codes.max_discount
    ValidFrom       time.Time    // promo_codes.valid_from
    ValidUntil      time.Time    // promo_codes.valid_until
    MaxUsage        int          // promo_codes.max_usage
    MaxUsagePerUser int          // promo_codes.max_usage_per_user
    UsageCount      int          // promo_codes.usage_count
    IsActive        bool         // promo_codes.is_active
    PrestationIDs   []uint64     // promo_code_prestations.prestation_id
    CreatedAt       time.Time    // promo_codes.created_at
    UpdatedAt       time.Time    // promo_codes.updated_at
}

// EligibleFor reports whether the code applies to the given
// prestation.  An empty eligibility set means every prestation
// qualifies.
func (p *PromoCode) EligibleFor(prestationID uint64) bool {
    if len(p.PrestationIDs) == 0 {
        return true
    }
    for _, id := range p.PrestationIDs {
        if id == prestationID {
            return true
        }
    }
    return false
}

// PromoUsageStatus enumerates the states of one promo application.
type PromoUsageStatus string

const (
    PromoUsageAttempted PromoUsageStatus = "ATTEMPTED" // recorded on every validation attempt
    PromoUsageValidated PromoUsageStatus = "VALIDATED" // booking paid, counted against the caps
    PromoUsageRevoked   PromoUsageStatus = "REVOKED"   // booking cancelled after validation
)

// PromoCodeUsage is the audit record of one attempt to apply a promo
// code.  A row is written for every attempt, successful or not, so
// that abuse can be traced back to a client IP and user agent.
//
// Fields:
//  ID             – primary key identifier.
//  PromoCodeID    – code that was attempted (null when the entered
//                   code matched nothing; the row still counts toward
//                   the abuse window).
//  UserID         – user who attempted it.
//  BookingID      – booking it was attached to, once known (nullable).
//  Status         – see PromoUsageStatus.
//  OriginalAmount – amount before discount at attempt time.
//  DiscountAmount – discount computed, zero for failed attempts.
//  FinalAmount    – amount after discount.
//  ClientIP       – requesting IP, for abuse tracking.
//  UserAgent      – requesting user agent, for abuse tracking.
//  Notes          – failure reason or revocation reason.
//  AttemptedAt    – when the attempt happened.
//  ValidatedAt    – when the usage was confirmed (nullable).
//  RevokedAt      – when the usage was revoked (nullable).
type PromoCodeUsage struct {
    ID             uint64           // promo_code_usages.id
    PromoCodeID    *uint64          // promo_code_usages.promo_code_id (nullable)
    UserID         uint64           // promo_code_usages.user_id
    BookingID      *uint64          // promo_code_usages.booking_id (nullable)
    Status         PromoUsageStatus // promo_code_usages.status
    OriginalAmount int64            // promo_code_usages.original_amount
    DiscountAmount int64            // promo_code_usages.discount_amount
    FinalAmount    int64            // promo_code_usages.final_amount
    ClientIP       string           // promo_code_usages.client_ip
    UserAgent      string           // promo_code_usages.user_agent
    Notes          string           // promo_code_usages.notes
    AttemptedAt    time.Time        // promo_code_usages.attempted_at
    ValidatedAt    *time.Time       // promo_code_usages.validated_at (nullable)
    RevokedAt      *time.Time       // promo_code_usages.revoked_at (nullable)
}
