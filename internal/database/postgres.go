package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"consultation-relay/internal/booking"
)

const bookingsSchema = `
CREATE TABLE IF NOT EXISTS bookings (
	id               TEXT PRIMARY KEY,
	booking_date     TEXT NOT NULL,
	booking_time     TEXT NOT NULL,
	phone_number     TEXT NOT NULL,
	specialist_name  TEXT NOT NULL,
	client_name      TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'pending',
	reminder_sent    BOOLEAN NOT NULL DEFAULT FALSE,
	reminder_sent_at TIMESTAMPTZ,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS bookings_pending_idx ON bookings (booking_date) WHERE status = 'pending' AND NOT reminder_sent;
`

const bookingColumns = `id, booking_date, booking_time, phone_number, specialist_name, client_name,
	status, reminder_sent, reminder_sent_at, created_at`

// PostgresStore keeps bookings in the bookings table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the bookings table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, bookingsSchema); err != nil {
		return fmt.Errorf("failed to create bookings schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]booking.Booking, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY booking_date, booking_time, created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	defer rows.Close()

	var bookings []booking.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	return bookings, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (booking.Booking, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return booking.Booking{}, booking.ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) Create(ctx context.Context, b booking.Booking) (booking.Booking, error) {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO bookings (id, booking_date, booking_time, phone_number, specialist_name, client_name,
			status, reminder_sent, reminder_sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, NOW()))
		RETURNING created_at
	`,
		b.ID, b.Date, b.Time, b.PhoneNumber, b.SpecialistName, b.ClientName,
		string(b.Status), b.ReminderSent, b.ReminderSentAt, nullTime(b.CreatedAt),
	).Scan(&b.CreatedAt)
	if err != nil {
		return booking.Booking{}, fmt.Errorf("failed to create booking: %w", err)
	}
	return b, nil
}

func (s *PostgresStore) Update(ctx context.Context, b booking.Booking) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET booking_date = $2, booking_time = $3, phone_number = $4, specialist_name = $5,
			client_name = $6, status = $7, reminder_sent = $8, reminder_sent_at = $9
		WHERE id = $1
	`,
		b.ID, b.Date, b.Time, b.PhoneNumber, b.SpecialistName,
		b.ClientName, string(b.Status), b.ReminderSent, b.ReminderSentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if affected == 0 {
		return booking.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (booking.Booking, error) {
	var (
		b      booking.Booking
		status string
		sentAt sql.NullTime
	)
	err := row.Scan(&b.ID, &b.Date, &b.Time, &b.PhoneNumber, &b.SpecialistName, &b.ClientName,
		&status, &b.ReminderSent, &sentAt, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return booking.Booking{}, err
		}
		return booking.Booking{}, fmt.Errorf("failed to scan booking: %w", err)
	}
	b.Status = booking.Status(status)
	if sentAt.Valid {
		t := sentAt.Time
		b.ReminderSentAt = &t
	}
	return b, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
