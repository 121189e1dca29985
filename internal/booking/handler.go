package booking

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Sweeper starts an out-of-band reminder sweep.
type Sweeper interface {
	Trigger()
}

// Handler serves /api/bookings: GET lists every booking, POST creates one.
type Handler struct {
	store    Store
	sweeper  Sweeper
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

// NewHandler creates the bookings handler.
func NewHandler(store Store, sweeper Sweeper, log *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		sweeper:  sweeper,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// ServeHTTP routes by method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		sendJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.store.List(r.Context())
	if err != nil {
		h.log.Error("list bookings failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "Failed to load bookings")
		return
	}
	if bookings == nil {
		bookings = []Booking{}
	}
	SortByAppointment(bookings)
	writeJSON(w, http.StatusOK, bookings)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req Booking
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		sendJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			sendJSONError(w, http.StatusBadRequest, "Invalid field: "+verrs[0].Field())
			return
		}
		sendJSONError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	req.ID = uuid.NewString()
	if req.Status == "" {
		req.Status = StatusPending
	}
	req.ReminderSent = false
	req.ReminderSentAt = nil
	req.CreatedAt = h.now().UTC()

	created, err := h.store.Create(r.Context(), req)
	if err != nil {
		h.log.Error("create booking failed", "error", err)
		sendJSONError(w, http.StatusInternalServerError, "Failed to store booking")
		return
	}
	h.log.Info("booking created", "booking", created.ID, "date", created.Date, "time", created.Time)

	if h.sweeper != nil {
		h.sweeper.Trigger()
	}
	writeJSON(w, http.StatusCreated, created)
}

// SortByAppointment orders bookings by date and time, then creation.
func SortByAppointment(bookings []Booking) {
	sort.SliceStable(bookings, func(i, j int) bool {
		a, b := bookings[i], bookings[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if a.Time != b.Time {
			return a.Time < b.Time
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]any{
		"success": false,
		"error":   message,
	})
}
