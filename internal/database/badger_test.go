package database

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"consultation-relay/internal/booking"
)

func setupBadgerStore(t *testing.T) *BadgerStore {
	db, err := OpenBadger(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db, logs.GetLoggerFromLevel(slog.LevelDebug))
}

func TestBadgerStore_CreateGetList(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)

	later, err := store.Create(ctx, booking.Booking{
		Date: "2025-06-03", Time: "09:00", PhoneNumber: "+79990000001",
		SpecialistName: "Dr. Petrov", Status: booking.StatusPending, CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)
	req.NotEmpty(later.ID)

	sooner, err := store.Create(ctx, booking.Booking{
		ID: "fixed-id", Date: "2025-06-02", Time: "18:00", PhoneNumber: "+79990000002",
		SpecialistName: "Dr. Ivanova", Status: booking.StatusPending, CreatedAt: time.Now().UTC(),
	})
	req.NoError(err)
	req.Equal("fixed-id", sooner.ID)

	got, err := store.Get(ctx, "fixed-id")
	req.NoError(err)
	req.Equal("Dr. Ivanova", got.SpecialistName)

	all, err := store.List(ctx)
	req.NoError(err)
	req.Len(all, 2)
	req.Equal("fixed-id", all[0].ID)
	req.Equal(later.ID, all[1].ID)
}

func TestBadgerStore_CreateDuplicate(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)

	_, err := store.Create(ctx, booking.Booking{ID: "b1", Date: "2025-06-02", Time: "10:00"})
	req.NoError(err)
	_, err = store.Create(ctx, booking.Booking{ID: "b1", Date: "2025-06-02", Time: "11:00"})
	req.Error(err)
}

func TestBadgerStore_UpdatePersistsReminder(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)

	b, err := store.Create(ctx, booking.Booking{ID: "b1", Date: "2025-06-02", Time: "10:00", Status: booking.StatusPending})
	req.NoError(err)

	sentAt := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	b.ReminderSent = true
	b.ReminderSentAt = &sentAt
	req.NoError(store.Update(ctx, b))

	got, err := store.Get(ctx, "b1")
	req.NoError(err)
	req.True(got.ReminderSent)
	req.NotNil(got.ReminderSentAt)
	req.True(sentAt.Equal(*got.ReminderSentAt))
}

func TestBadgerStore_NotFound(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)

	_, err := store.Get(ctx, "missing")
	req.ErrorIs(err, booking.ErrNotFound)
	req.ErrorIs(store.Update(ctx, booking.Booking{ID: "missing"}), booking.ErrNotFound)
}

func TestBadgerStore_ListSkipsUnreadable(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)

	_, err := store.Create(ctx, booking.Booking{ID: "b1", Date: "2025-06-02", Time: "10:00"})
	req.NoError(err)
	req.NoError(store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(bookingKey("broken"), []byte("{not json"))
	}))

	all, err := store.List(ctx)
	req.NoError(err)
	req.Len(all, 1)
	req.Equal("b1", all[0].ID)
}

func TestBadgerStore_SchedulerSweep(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	store := setupBadgerStore(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Create(ctx, booking.Booking{ID: "due", Date: "2025-06-02", Time: "10:00", Status: booking.StatusPending})
	req.NoError(err)
	_, err = store.Create(ctx, booking.Booking{ID: "early", Date: "2025-06-02", Time: "08:00", Status: booking.StatusPending})
	req.NoError(err)

	notifier := &recordingNotifier{}
	scheduler := booking.NewScheduler(store, notifier, booking.SchedulerConfig{
		Interval: time.Minute, Lead: 24 * time.Hour, Tolerance: time.Hour, Location: time.UTC,
	}, logs.GetLoggerFromLevel(slog.LevelDebug)).WithClock(func() time.Time { return now })

	result, err := scheduler.Sweep(ctx)
	req.NoError(err)
	req.Equal(1, result.Sent)

	result, err = scheduler.Sweep(ctx)
	req.NoError(err)
	req.Equal(0, result.Due)
	req.Equal([]string{"due"}, notifier.ids)

	due, err := store.Get(ctx, "due")
	req.NoError(err)
	req.True(due.ReminderSent)
	early, err := store.Get(ctx, "early")
	req.NoError(err)
	req.False(early.ReminderSent)
}

type recordingNotifier struct {
	ids []string
}

func (n *recordingNotifier) Notify(_ context.Context, r booking.Reminder) error {
	n.ids = append(n.ids, r.BookingID)
	return nil
}
