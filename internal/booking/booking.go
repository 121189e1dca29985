// Package booking owns the appointment records and the reminder sweep
// that runs over them.
package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound        = errors.New("booking not found")
	ErrSweepInProgress = errors.New("reminder sweep already in progress")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Booking is one consultation appointment. Date and Time are kept as the
// client sent them and combined in the configured time zone.
type Booking struct {
	ID             string     `json:"id"`
	Date           string     `json:"date" validate:"required,datetime=2006-01-02"`
	Time           string     `json:"time" validate:"required,datetime=15:04"`
	PhoneNumber    string     `json:"phoneNumber" validate:"required,min=5,max=32"`
	SpecialistName string     `json:"specialistName" validate:"required,max=128"`
	ClientName     string     `json:"clientName,omitempty" validate:"max=128"`
	Status         Status     `json:"status" validate:"omitempty,oneof=pending confirmed cancelled completed"`
	ReminderSent   bool       `json:"reminderSent"`
	ReminderSentAt *time.Time `json:"reminderSentAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AppointmentAt combines Date and Time in loc.
func (b Booking) AppointmentAt(loc *time.Location) (time.Time, error) {
	at, err := time.ParseInLocation(DateLayout+" "+TimeLayout, b.Date+" "+b.Time, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("booking %s has invalid date/time: %w", b.ID, err)
	}
	return at, nil
}

// AwaitingReminder reports whether the booking can still be reminded.
func (b Booking) AwaitingReminder() bool {
	return b.Status == StatusPending && !b.ReminderSent
}
