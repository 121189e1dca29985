package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"consultation-relay/internal/booking"
)

const bookingPrefix = "booking:"

// BadgerStore keeps bookings as JSON values under booking:{id}.
type BadgerStore struct {
	db  *badger.DB
	log *slog.Logger
}

// OpenBadger opens (or creates) the on-disk store at path.
func OpenBadger(path string) (*badger.DB, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return db, nil
}

// NewBadgerStore creates a store on db.
func NewBadgerStore(db *badger.DB, log *slog.Logger) *BadgerStore {
	return &BadgerStore{db: db, log: log}
}

func bookingKey(id string) []byte {
	return []byte(bookingPrefix + id)
}

func (s *BadgerStore) List(_ context.Context) ([]booking.Booking, error) {
	var bookings []booking.Booking
	prefix := []byte(bookingPrefix)

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(v []byte) error {
				var b booking.Booking
				if err := json.Unmarshal(v, &b); err != nil {
					s.log.Warn("skipping unreadable booking", "key", string(item.Key()), "error", err)
					return nil
				}
				bookings = append(bookings, b)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing bookings: %w", err)
	}

	booking.SortByAppointment(bookings)
	return bookings, nil
}

func (s *BadgerStore) Get(_ context.Context, id string) (booking.Booking, error) {
	var b booking.Booking
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(bookingKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &b)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return booking.Booking{}, booking.ErrNotFound
	}
	if err != nil {
		return booking.Booking{}, fmt.Errorf("error reading booking %s: %w", id, err)
	}
	return b, nil
}

func (s *BadgerStore) Create(_ context.Context, b booking.Booking) (booking.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	data, err := json.Marshal(b)
	if err != nil {
		return booking.Booking{}, err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(bookingKey(b.ID)); err == nil {
			return fmt.Errorf("booking %s already exists", b.ID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(bookingKey(b.ID), data)
	})
	if err != nil {
		return booking.Booking{}, fmt.Errorf("error creating booking: %w", err)
	}
	return b, nil
}

func (s *BadgerStore) Update(_ context.Context, b booking.Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(bookingKey(b.ID)); err != nil {
			return err
		}
		return txn.Set(bookingKey(b.ID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return booking.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("error updating booking %s: %w", b.ID, err)
	}
	return nil
}
