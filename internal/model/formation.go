package model

import "time"

// Formation is a training course users can enroll into.  Access is
// time-boxed: once an enrollment is activated by payment, it remains
// usable for AccessDays days.
//
// Fields:
//  ID         – primary key identifier.
//  Title      – course title.
//  Price      – enrollment price in minor units.
//  AccessDays – number of days of access after activation.
//  IsActive   – whether new enrollments are accepted.
type Formation struct {
    ID         uint64    // formations.id
    Title      string    // formations.title
    Price      int64     // formations.price
    AccessDays int       // formations.access_days
    IsActive   bool      // formations.is_active
    CreatedAt  time.Time // formations.created_at
}

// EnrollmentStatus enumerates the lifecycle states of an enrollment.
type EnrollmentStatus string

const (
    EnrollmentPending   EnrollmentStatus = "PENDING"   // created, awaiting payment
    EnrollmentActive    EnrollmentStatus = "ACTIVE"    // payment completed
    EnrollmentExpired   EnrollmentStatus = "EXPIRED"   // access window elapsed
    EnrollmentCancelled EnrollmentStatus = "CANCELLED"
)

// Enrollment ties a user to a formation.  It is created PENDING and
// only becomes ACTIVE through payment reconciliation; the scheduled
// expiry job moves it to EXPIRED once AccessUntil has passed.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – enrolled user.
//  FormationID – formation enrolled into.
//  Status      – see EnrollmentStatus.
//  ProgressPct – completion percentage, 0–100.
//  ActivatedAt – when payment activated the enrollment (nullable).
//  AccessUntil – end of the access window (nullable until activated).
type Enrollment struct {
    ID          uint64           // enrollments.id
    UserID      uint64           // enrollments.user_id
    FormationID uint64           // enrollments.formation_id
    Status      EnrollmentStatus // enrollments.status
    ProgressPct int              // enrollments.progress_pct
    ActivatedAt *time.Time       // enrollments.activated_at (nullable)
    AccessUntil *time.Time       // enrollments.access_until (nullable)
    CreatedAt   time.Time        // enrollments.created_at
    UpdatedAt   time.Time        // enrollments.updated_at
}
