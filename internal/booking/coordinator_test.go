package booking

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "testing"
    "time"

    "github.com/salonova/salon-reservation/internal/model"
    "github.com/salonova/salon-reservation/internal/repository"
)

// fakeStore is an in-memory Store that enforces the same occupancy
// rule as the real repository: at most one active-occupying booking
// per (slot, date).
type fakeStore struct {
    mu     sync.Mutex
    nextID uint64
    rows   map[uint64]*model.Booking
}

func newFakeStore() *fakeStore {
    return &fakeStore{rows: make(map[uint64]*model.Booking)}
}

func (f *fakeStore) CreateIfSlotFree(_ context.Context, b *model.Booking) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    for _, r := range f.rows {
        if r.SlotID == b.SlotID && r.Date == b.Date && r.Status.Occupying() {
            return repository.ErrSlotTaken
        }
    }
    f.nextID++
    b.ID = f.nextID
    cp := *b
    f.rows[b.ID] = &cp
    return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uint64) (*model.Booking, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[id]
    if !ok {
        return nil, fmt.Errorf("booking %d not found", id)
    }
    cp := *r
    return &cp, nil
}

func (f *fakeStore) UpdateStatusIf(_ context.Context, id uint64, from []model.BookingStatus, to model.BookingStatus) (bool, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[id]
    if !ok {
        return false, nil
    }
    for _, s := range from {
        if r.Status == s {
            r.Status = to
            return true, nil
        }
    }
    return false, nil
}

func (f *fakeStore) ExpireStale(_ context.Context, cutoff time.Time) (int64, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    var n int64
    for _, r := range f.rows {
        if r.Status == model.BookingStatusTempReserved && r.CreatedAt.Before(cutoff) {
            r.Status = model.BookingStatusExpired
            n++
        }
    }
    return n, nil
}

func (f *fakeStore) Reschedule(_ context.Context, id, newSlotID uint64, newDate string) error {
    f.mu.Lock()
    defer f.mu.Unlock()
    r, ok := f.rows[id]
    if !ok {
        return fmt.Errorf("booking %d not found", id)
    }
    if r.Status != model.BookingStatusConfirmed {
        return repository.ErrInvalidTransition
    }
    for _, other := range f.rows {
        if other.ID != id && other.SlotID == newSlotID && other.Date == newDate && other.Status.Occupying() {
            return repository.ErrSlotTaken
        }
    }
    r.SlotID, r.Date = newSlotID, newDate
    return nil
}

// fakeRevoker records revocations.
type fakeRevoker struct {
    mu      sync.Mutex
    revoked []uint64
}

func (f *fakeRevoker) RevokeUsage(_ context.Context, bookingID uint64, _ string) (bool, error) {
    f.mu.Lock()
    defer f.mu.Unlock()
    f.revoked = append(f.revoked, bookingID)
    return true, nil
}

func newTestCoordinator(store Store) (*Coordinator, *fakeRevoker) {
    rev := &fakeRevoker{}
    return NewCoordinator(store, NewLocalLocker(time.Second), rev, nil), rev
}

func TestReserveConcurrentSameKey(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    const n = 32
    var wg sync.WaitGroup
    results := make(chan error, n)
    for i := 0; i < n; i++ {
        wg.Add(1)
        go func(user uint64) {
            defer wg.Done()
            b := &model.Booking{UserID: user, SlotID: 3, Date: "2026-09-10", PrestationID: 1}
            results <- c.Reserve(context.Background(), b)
        }(uint64(i + 1))
    }
    wg.Wait()
    close(results)

    var ok, taken int
    for err := range results {
        switch {
        case err == nil:
            ok++
        case errors.Is(err, repository.ErrSlotTaken):
            taken++
        default:
            t.Fatalf("unexpected error: %v", err)
        }
    }
    if ok != 1 || taken != n-1 {
        t.Fatalf("ok=%d taken=%d, want 1 and %d", ok, taken, n-1)
    }
}

func TestReserveDifferentKeysDoNotContend(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    for i := 0; i < 5; i++ {
        b := &model.Booking{UserID: 1, SlotID: uint64(i + 1), Date: "2026-09-10"}
        if err := c.Reserve(context.Background(), b); err != nil {
            t.Fatalf("slot %d: %v", i+1, err)
        }
    }
    b := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-11"}
    if err := c.Reserve(context.Background(), b); err != nil {
        t.Fatalf("same slot, other date: %v", err)
    }
}

func TestConfirmIsIdempotent(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    b := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-10"}
    if err := c.Reserve(context.Background(), b); err != nil {
        t.Fatal(err)
    }
    if err := c.Confirm(context.Background(), b.ID); err != nil {
        t.Fatalf("first confirm: %v", err)
    }
    if err := c.Confirm(context.Background(), b.ID); err != nil {
        t.Fatalf("second confirm: %v", err)
    }
    got, _ := store.GetByID(context.Background(), b.ID)
    if got.Status != model.BookingStatusConfirmed {
        t.Fatalf("status = %s", got.Status)
    }
}

func TestConfirmAfterExpiry(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    b := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-10"}
    if err := c.Reserve(context.Background(), b); err != nil {
        t.Fatal(err)
    }
    // The expiry job wins the race.
    if ok, _ := store.UpdateStatusIf(context.Background(), b.ID,
        []model.BookingStatus{model.BookingStatusTempReserved}, model.BookingStatusExpired); !ok {
        t.Fatal("setup: could not expire")
    }
    if err := c.Confirm(context.Background(), b.ID); !errors.Is(err, repository.ErrInvalidTransition) {
        t.Fatalf("err = %v, want ErrInvalidTransition", err)
    }
}

func TestExpireStaleFreesTheSlot(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    b := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-10"}
    if err := c.Reserve(context.Background(), b); err != nil {
        t.Fatal(err)
    }
    store.mu.Lock()
    store.rows[b.ID].CreatedAt = time.Now().UTC().Add(-time.Hour)
    store.mu.Unlock()

    n, err := c.ExpireStale(context.Background(), 15*time.Minute)
    if err != nil || n != 1 {
        t.Fatalf("ExpireStale = %d, %v; want 1", n, err)
    }
    b2 := &model.Booking{UserID: 2, SlotID: 1, Date: "2026-09-10"}
    if err := c.Reserve(context.Background(), b2); err != nil {
        t.Fatalf("slot should be free again: %v", err)
    }
}

func TestCancelRevokesPromo(t *testing.T) {
    store := newFakeStore()
    c, rev := newTestCoordinator(store)

    b := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-10"}
    if err := c.Reserve(context.Background(), b); err != nil {
        t.Fatal(err)
    }
    if err := c.Confirm(context.Background(), b.ID); err != nil {
        t.Fatal(err)
    }
    if err := c.Cancel(context.Background(), b.ID, "customer request"); err != nil {
        t.Fatalf("cancel: %v", err)
    }
    if len(rev.revoked) != 1 || rev.revoked[0] != b.ID {
        t.Fatalf("revocations = %v", rev.revoked)
    }
    // Cancelling again is a no-op and must not revoke twice.
    if err := c.Cancel(context.Background(), b.ID, "customer request"); err != nil {
        t.Fatalf("second cancel: %v", err)
    }
    if len(rev.revoked) != 1 {
        t.Fatalf("revocations after repeat = %v", rev.revoked)
    }
}

func TestMarkOnLeaveBlocksReservation(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    if err := c.MarkOnLeave(context.Background(), 2, "2026-09-12"); err != nil {
        t.Fatal(err)
    }
    b := &model.Booking{UserID: 1, SlotID: 2, Date: "2026-09-12"}
    if err := c.Reserve(context.Background(), b); !errors.Is(err, repository.ErrSlotTaken) {
        t.Fatalf("err = %v, want ErrSlotTaken", err)
    }
}

func TestRescheduleIntoTakenKey(t *testing.T) {
    store := newFakeStore()
    c, _ := newTestCoordinator(store)

    first := &model.Booking{UserID: 1, SlotID: 1, Date: "2026-09-10"}
    second := &model.Booking{UserID: 2, SlotID: 2, Date: "2026-09-10"}
    for _, b := range []*model.Booking{first, second} {
        if err := c.Reserve(context.Background(), b); err != nil {
            t.Fatal(err)
        }
        if err := c.Confirm(context.Background(), b.ID); err != nil {
            t.Fatal(err)
        }
    }
    if err := c.Reschedule(context.Background(), second.ID, 1, "2026-09-10"); !errors.Is(err, repository.ErrSlotTaken) {
        t.Fatalf("err = %v, want ErrSlotTaken", err)
    }
    if err := c.Reschedule(context.Background(), second.ID, 3, "2026-09-10"); err != nil {
        t.Fatalf("reschedule to free key: %v", err)
    }
}

func TestLocalLockerTimesOut(t *testing.T) {
    l := NewLocalLocker(50 * time.Millisecond)
    release, err := l.Acquire(context.Background(), "k")
    if err != nil {
        t.Fatal(err)
    }
    if _, err := l.Acquire(context.Background(), "k"); !errors.Is(err, ErrLockTimeout) {
        t.Fatalf("err = %v, want ErrLockTimeout", err)
    }
    release()
    release2, err := l.Acquire(context.Background(), "k")
    if err != nil {
        t.Fatalf("after release: %v", err)
    }
    release2()
}
