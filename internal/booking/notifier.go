//go:generate go run go.uber.org/mock/mockgen -source=notifier.go -destination=../mocks/mock_notifier.go -package=mocks
package booking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Reminder is what gets sent for one booking.
type Reminder struct {
	BookingID      string    `json:"bookingId"`
	PhoneNumber    string    `json:"to"`
	SpecialistName string    `json:"specialistName"`
	ClientName     string    `json:"clientName,omitempty"`
	AppointmentAt  time.Time `json:"appointmentAt"`
	Message        string    `json:"message"`
}

// Notifier delivers a reminder through an external channel.
type Notifier interface {
	Notify(ctx context.Context, reminder Reminder) error
}

func newReminder(b Booking, at time.Time) Reminder {
	return Reminder{
		BookingID:      b.ID,
		PhoneNumber:    b.PhoneNumber,
		SpecialistName: b.SpecialistName,
		ClientName:     b.ClientName,
		AppointmentAt:  at,
		Message: fmt.Sprintf("Reminder: your consultation with %s is on %s at %s.",
			b.SpecialistName, b.Date, b.Time),
	}
}

// HTTPNotifier posts reminders to an SMS/messaging gateway.
type HTTPNotifier struct {
	URL        string
	HTTPClient *http.Client
}

// NewHTTPNotifier creates a notifier posting to url.
func NewHTTPNotifier(url string, timeout time.Duration) *HTTPNotifier {
	return &HTTPNotifier{URL: url, HTTPClient: &http.Client{Timeout: timeout}}
}

func (n *HTTPNotifier) Notify(ctx context.Context, reminder Reminder) error {
	body, err := json.Marshal(reminder)
	if err != nil {
		return fmt.Errorf("marshal reminder: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := n.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("notification gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// LogNotifier only logs reminders. Used when no gateway is configured.
type LogNotifier struct {
	Log *slog.Logger
}

func (n LogNotifier) Notify(_ context.Context, reminder Reminder) error {
	n.Log.Info("reminder", "booking", reminder.BookingID, "to", reminder.PhoneNumber, "message", reminder.Message)
	return nil
}

// NewNotifier posts to url when set and only logs otherwise.
func NewNotifier(url string, log *slog.Logger) Notifier {
	if url == "" {
		return LogNotifier{Log: log}
	}
	return NewHTTPNotifier(url, 10*time.Second)
}
