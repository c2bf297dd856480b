package promo

import (
    "context"
    "database/sql"
    "fmt"
    "strings"
    "testing"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
    codes       map[string]*model.PromoCode
    attempts    []*model.PromoCodeUsage
    validated   map[uint64]int // promoCodeID -> validated count for the test user
    confirmMap  map[uint64]struct {
        promoID uint64
        applied bool
    }
    revoked map[uint64]bool
}

func newFakeStore() *fakeStore {
    return &fakeStore{
        codes:     make(map[string]*model.PromoCode),
        validated: make(map[uint64]int),
        confirmMap: make(map[uint64]struct {
            promoID uint64
            applied bool
        }),
        revoked: make(map[uint64]bool),
    }
}

func (f *fakeStore) ByCode(_ context.Context, code string) (*model.PromoCode, error) {
    p, ok := f.codes[strings.ToUpper(code)]
    if !ok {
        return nil, sql.ErrNoRows
    }
    return p, nil
}

func (f *fakeStore) CodeExists(_ context.Context, code string) (bool, error) {
    _, ok := f.codes[strings.ToUpper(code)]
    return ok, nil
}

func (f *fakeStore) CountValidatedForUser(_ context.Context, promoCodeID, _ uint64) (int, error) {
    return f.validated[promoCodeID], nil
}

func (f *fakeStore) CountAttemptsSince(_ context.Context, _ uint64, since time.Time) (int, error) {
    n := 0
    for _, a := range f.attempts {
        if !a.AttemptedAt.Before(since) {
            n++
        }
    }
    return n, nil
}

func (f *fakeStore) RecordAttempt(_ context.Context, u *model.PromoCodeUsage) error {
    u.ID = uint64(len(f.attempts) + 1)
    if u.AttemptedAt.IsZero() {
        u.AttemptedAt = time.Now().UTC()
    }
    f.attempts = append(f.attempts, u)
    return nil
}

func (f *fakeStore) AttachBooking(_ context.Context, usageID, bookingID uint64) error {
    for _, a := range f.attempts {
        if a.ID == usageID {
            id := bookingID
            a.BookingID = &id
        }
    }
    return nil
}

func (f *fakeStore) ConfirmUsage(_ context.Context, bookingID uint64) (uint64, bool, error) {
    c, ok := f.confirmMap[bookingID]
    if !ok {
        return 0, false, nil
    }
    return c.promoID, c.applied, nil
}

func (f *fakeStore) RevokeUsage(_ context.Context, bookingID uint64, _ string) (bool, error) {
    if f.revoked[bookingID] {
        return false, nil
    }
    f.revoked[bookingID] = true
    return true, nil
}

func activeCode(code string) *model.PromoCode {
    now := time.Now().UTC()
    return &model.PromoCode{
        ID:            1,
        Code:          code,
        DiscountType:  model.DiscountPercentage,
        DiscountValue: 10,
        ValidFrom:     now.Add(-time.Hour),
        ValidUntil:    now.Add(time.Hour),
        IsActive:      true,
    }
}

func newTestEngine(store Store) *Engine {
    return NewEngine(store, nil, nil)
}

func TestComputeDiscount(t *testing.T) {
    cases := []struct {
        name   string
        promo  model.PromoCode
        amount int64
        want   int64
    }{
        {"percentage", model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: 10}, 10000, 1000},
        {"percentage floors", model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: 33}, 100, 33},
        {"percentage capped", model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: 10, MaxDiscount: 500}, 10000, 500},
        {"fixed", model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: 2000}, 5000, 2000},
        {"fixed clamped to amount", model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: 2000}, 1500, 1500},
        {"fixed capped", model.PromoCode{DiscountType: model.DiscountFixed, DiscountValue: 2000, MaxDiscount: 800}, 5000, 800},
        {"zero amount", model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: 50}, 0, 0},
        {"full percentage", model.PromoCode{DiscountType: model.DiscountPercentage, DiscountValue: 100}, 7500, 7500},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            if got := ComputeDiscount(&tc.promo, tc.amount); got != tc.want {
                t.Fatalf("ComputeDiscount = %d, want %d", got, tc.want)
            }
        })
    }
}

func TestValidateUnknownCode(t *testing.T) {
    e := newTestEngine(newFakeStore())
    p, res, err := e.Validate(context.Background(), "NOPE", 1, 1, 5000)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if p != nil || res.OK || res.Reason != ReasonUnknownCode {
        t.Fatalf("got %+v, want unknown_code rejection", res)
    }
}

func TestValidateLifecycleRules(t *testing.T) {
    now := time.Now().UTC()
    mk := func(mut func(*model.PromoCode)) *fakeStore {
        s := newFakeStore()
        p := activeCode("SAVE10")
        mut(p)
        s.codes[p.Code] = p
        return s
    }
    cases := []struct {
        name   string
        store  *fakeStore
        amount int64
        reason string
    }{
        {"inactive", mk(func(p *model.PromoCode) { p.IsActive = false }), 5000, ReasonInactive},
        {"not started", mk(func(p *model.PromoCode) { p.ValidFrom = now.Add(time.Hour) }), 5000, ReasonNotStarted},
        {"expired", mk(func(p *model.PromoCode) { p.ValidUntil = now.Add(-time.Minute) }), 5000, ReasonExpired},
        {"wrong prestation", mk(func(p *model.PromoCode) { p.PrestationIDs = []uint64{99} }), 5000, ReasonNotEligible},
        {"below minimum", mk(func(p *model.PromoCode) { p.MinAmount = 10000 }), 5000, ReasonBelowMinimum},
        {"global cap", mk(func(p *model.PromoCode) { p.MaxUsage = 3; p.UsageCount = 3 }), 5000, ReasonGlobalCap},
    }
    for _, tc := range cases {
        t.Run(tc.name, func(t *testing.T) {
            e := newTestEngine(tc.store)
            _, res, err := e.Validate(context.Background(), "SAVE10", 1, 1, tc.amount)
            if err != nil {
                t.Fatalf("unexpected error: %v", err)
            }
            if res.OK || res.Reason != tc.reason {
                t.Fatalf("got %+v, want reason %s", res, tc.reason)
            }
        })
    }
}

func TestValidatePerUserCap(t *testing.T) {
    s := newFakeStore()
    p := activeCode("ONCE")
    p.MaxUsagePerUser = 1
    s.codes[p.Code] = p
    s.validated[p.ID] = 1
    e := newTestEngine(s)
    _, res, err := e.Validate(context.Background(), "ONCE", 7, 1, 5000)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if res.OK || res.Reason != ReasonUserCap {
        t.Fatalf("got %+v, want user cap rejection", res)
    }
}

func TestValidateCaseInsensitive(t *testing.T) {
    s := newFakeStore()
    s.codes["SAVE10"] = activeCode("SAVE10")
    e := newTestEngine(s)
    _, res, err := e.Validate(context.Background(), "save10", 1, 1, 5000)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if !res.OK {
        t.Fatalf("lowercase lookup rejected: %+v", res)
    }
}

func TestApplyTentativeRecordsAudit(t *testing.T) {
    s := newFakeStore()
    s.codes["SAVE10"] = activeCode("SAVE10")
    e := newTestEngine(s)
    out, err := e.ApplyTentative(context.Background(), ApplyInput{
        Code: "SAVE10", UserID: 1, PrestationID: 1, Amount: 10000,
        ClientIP: "203.0.113.9", UserAgent: "curl/8.0",
    })
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if !out.Valid || out.DiscountAmount != 1000 || out.FinalAmount != 9000 {
        t.Fatalf("got %+v, want 1000 off 10000", out)
    }
    if len(s.attempts) != 1 {
        t.Fatalf("attempts recorded = %d, want 1", len(s.attempts))
    }
    a := s.attempts[0]
    if a.Status != model.PromoUsageAttempted || a.ClientIP != "203.0.113.9" || a.UserAgent != "curl/8.0" {
        t.Fatalf("audit row = %+v", a)
    }
    if out.UsageID != a.ID {
        t.Fatalf("UsageID = %d, want %d", out.UsageID, a.ID)
    }
}

func TestApplyTentativeRecordsFailedAttempts(t *testing.T) {
    s := newFakeStore()
    p := activeCode("SAVE10")
    p.MinAmount = 20000
    s.codes[p.Code] = p
    e := newTestEngine(s)
    out, err := e.ApplyTentative(context.Background(), ApplyInput{
        Code: "SAVE10", UserID: 1, PrestationID: 1, Amount: 5000,
    })
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if out.Valid || out.Reason != ReasonBelowMinimum {
        t.Fatalf("got %+v, want below-minimum rejection", out)
    }
    if out.FinalAmount != 5000 || out.DiscountAmount != 0 {
        t.Fatalf("amounts not preserved on rejection: %+v", out)
    }
    if len(s.attempts) != 1 || s.attempts[0].Notes != ReasonBelowMinimum {
        t.Fatalf("rejected attempt not audited: %+v", s.attempts)
    }
}

func TestAbuseWindowFallsBackToDB(t *testing.T) {
    s := newFakeStore()
    s.codes["SAVE10"] = activeCode("SAVE10")
    now := time.Now().UTC()
    for i := 0; i < abuseMaxAttempts; i++ {
        s.attempts = append(s.attempts, &model.PromoCodeUsage{
            UserID: 1, Status: model.PromoUsageAttempted,
            AttemptedAt: now.Add(-time.Minute),
        })
    }
    e := newTestEngine(s)
    _, res, err := e.Validate(context.Background(), "SAVE10", 1, 1, 5000)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if res.OK || res.Reason != ReasonTooManyAttempts {
        t.Fatalf("got %+v, want too-many-attempts rejection", res)
    }
}

func TestAbuseWindowIgnoresOldAttempts(t *testing.T) {
    s := newFakeStore()
    s.codes["SAVE10"] = activeCode("SAVE10")
    now := time.Now().UTC()
    for i := 0; i < abuseMaxAttempts*2; i++ {
        s.attempts = append(s.attempts, &model.PromoCodeUsage{
            UserID: 1, Status: model.PromoUsageAttempted,
            AttemptedAt: now.Add(-abuseWindow - time.Minute),
        })
    }
    e := newTestEngine(s)
    _, res, err := e.Validate(context.Background(), "SAVE10", 1, 1, 5000)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if !res.OK {
        t.Fatalf("stale attempts should not trip the window: %+v", res)
    }
}

func TestAbuseWindowCountsUnknownCodeGuesses(t *testing.T) {
    s := newFakeStore()
    e := newTestEngine(s)
    for i := 0; i < abuseMaxAttempts; i++ {
        out, err := e.ApplyTentative(context.Background(), ApplyInput{
            Code: fmt.Sprintf("GUESS%02d", i), UserID: 1, PrestationID: 1, Amount: 5000,
        })
        if err != nil {
            t.Fatalf("guess %d: unexpected error: %v", i, err)
        }
        if out.Valid || out.Reason != ReasonUnknownCode {
            t.Fatalf("guess %d: got %+v, want unknown_code rejection", i, out)
        }
        if out.UsageID == 0 {
            t.Fatalf("guess %d was not audited", i)
        }
    }
    if len(s.attempts) != abuseMaxAttempts {
        t.Fatalf("attempts recorded = %d, want %d", len(s.attempts), abuseMaxAttempts)
    }
    if s.attempts[0].PromoCodeID != nil {
        t.Fatalf("unresolved guess carries a promo reference: %+v", s.attempts[0])
    }
    out, err := e.ApplyTentative(context.Background(), ApplyInput{
        Code: "GUESSXX", UserID: 1, PrestationID: 1, Amount: 5000,
    })
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if out.Valid || out.Reason != ReasonTooManyAttempts {
        t.Fatalf("got %+v, want too-many-attempts rejection after %d guesses", out, abuseMaxAttempts)
    }
}

func TestConfirmAndRevokeSymmetry(t *testing.T) {
    s := newFakeStore()
    s.confirmMap[42] = struct {
        promoID uint64
        applied bool
    }{promoID: 1, applied: true}
    e := newTestEngine(s)

    applied, err := e.ConfirmUsage(context.Background(), 42)
    if err != nil || !applied {
        t.Fatalf("ConfirmUsage = %v, %v, want applied", applied, err)
    }
    ok, err := e.RevokeUsage(context.Background(), 42, "booking cancelled")
    if err != nil || !ok {
        t.Fatalf("RevokeUsage = %v, %v, want revoked", ok, err)
    }
    // Revoking again is a no-op.
    ok, err = e.RevokeUsage(context.Background(), 42, "booking cancelled")
    if err != nil || ok {
        t.Fatalf("second RevokeUsage = %v, %v, want no-op", ok, err)
    }
}

func TestGenerateRandomCode(t *testing.T) {
    s := newFakeStore()
    e := newTestEngine(s)
    code, err := e.GenerateRandomCode(context.Background(), 8)
    if err != nil {
        t.Fatalf("unexpected error: %v", err)
    }
    if len(code) != 8 {
        t.Fatalf("len = %d, want 8", len(code))
    }
    for _, c := range code {
        if !strings.ContainsRune(codeCharset, c) {
            t.Fatalf("character %q outside charset", c)
        }
    }
}

func TestGenerateRandomCodeAvoidsCollision(t *testing.T) {
    s := newFakeStore()
    e := newTestEngine(s)
    seen := make(map[string]bool)
    for i := 0; i < 20; i++ {
        code, err := e.GenerateRandomCode(context.Background(), 8)
        if err != nil {
            t.Fatalf("unexpected error: %v", err)
        }
        if seen[code] {
            t.Fatalf("duplicate code %s", code)
        }
        seen[code] = true
        s.codes[code] = activeCode(code)
    }
}
