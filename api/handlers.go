/*
handlers.go - HTTP API handlers for the rehearsal room

PURPOSE:
  Exposes the booking engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to booking.Service.

ENDPOINTS:
  Public:
    GET    /healthz                            Liveness and store ping
    GET    /api/window                         Bookable days
    GET    /api/leaderboard?limit=N            Practice time per band
    GET    /api/days/{dayKey}/reservations     Day schedule

  Authenticated:
    GET    /api/me/reservations/{dayKey}       Own booking on a day
    GET    /api/me/days?days=d1,d2             Which days are already booked
    POST   /api/reservations                   Book
    PUT    /api/reservations/{dayKey}          Move within the day
    DELETE /api/reservations/{dayKey}          Cancel

REQUEST FLOW:
  1. Parse HTTP request (date + HH:MM in the room's zone)
  2. Call booking.Service
  3. Map the error kind to a status, or serialize the result

ERROR HANDLING:
  Errors are returned as JSON {error, kind, details}:
  - 400: Malformed input, InvalidInterval, DurationExceeded,
         OutOfBookingWindow, DayMismatch
  - 401: Missing or invalid token (auth.go)
  - 403: Forbidden
  - 404: NotFound
  - 409: AlreadyBookedToday, SlotConflict
  - 422: CooldownViolation, PastBooking
  - 429: Rate limited (ratelimit.go)
  - 503: StoreUnavailable

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger is implemented by stores that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *booking.Service
	Logger  *zap.Logger

	// Store is pinged by /healthz when set.
	Store Pinger

	// LeaderboardLimit is used when the request has no limit.
	LeaderboardLimit int
}

// NewHandler creates a handler around svc.
func NewHandler(svc *booking.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:          svc,
		Logger:           logger,
		LeaderboardLimit: booking.DefaultLeaderboardLimit,
	}
}

func (h *Handler) loc() *time.Location {
	return h.Service.Location()
}

// =============================================================================
// PUBLIC READS
// =============================================================================

// Health reports liveness.
// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.Store != nil {
		if err := h.Store.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unreachable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetWindow returns the days a booking may currently start on.
// GET /api/window
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	win := h.Service.Window()
	writeJSON(w, http.StatusOK, WindowDTO{
		MinDay:   string(win.MinDay),
		MaxDay:   string(win.MaxDay),
		Timezone: h.loc().String(),
	})
}

// GetLeaderboard returns bands ordered by practice time.
// GET /api/leaderboard?limit=10
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := h.LeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100", err)
			return
		}
		limit = n
	}

	entries, err := h.Service.TopByMinutes(r.Context(), limit)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaderboardDTOs(entries))
}

// ListDay returns the merged schedule of one day.
// GET /api/days/{dayKey}/reservations
func (h *Handler) ListDay(w http.ResponseWriter, r *http.Request) {
	day, err := booking.ParseDayKey(chi.URLParam(r, "dayKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	rows, err := h.Service.ListForDay(r.Context(), day)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDaySummaryDTOs(rows, h.loc()))
}

// =============================================================================
// AUTHENTICATED READS
// =============================================================================

// GetMyReservation returns the caller's booking on a day.
// GET /api/me/reservations/{dayKey}
func (h *Handler) GetMyReservation(w http.ResponseWriter, r *http.Request) {
	user, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not signed in", nil)
		return
	}
	day, err := booking.ParseDayKey(chi.URLParam(r, "dayKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	res, err := h.Service.GetReservation(r.Context(), user, day)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res, h.loc()))
}

// GetMyDays reports which days the caller already booked. Without a days
// parameter it checks the current window.
// GET /api/me/days?days=2024-06-01,2024-06-02
func (h *Handler) GetMyDays(w http.ResponseWriter, r *http.Request) {
	user, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not signed in", nil)
		return
	}

	var days []booking.DayKey
	if raw := r.URL.Query().Get("days"); raw != "" {
		parts := strings.Split(raw, ",")
		if len(parts) > 31 {
			writeError(w, http.StatusBadRequest, "At most 31 days per request", nil)
			return
		}
		for _, p := range parts {
			d, err := booking.ParseDayKey(strings.TrimSpace(p))
			if err != nil {
				writeError(w, http.StatusBadRequest, "Invalid day", err)
				return
			}
			days = append(days, d)
		}
	} else {
		win := h.Service.Window()
		for d := win.MinDay; !d.After(win.MaxDay); d = d.AddDays(1) {
			days = append(days, d)
		}
	}

	found, err := h.Service.UserDayKeys(r.Context(), user, days)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	out := BookedDaysDTO{Days: make([]string, len(found))}
	for i, d := range found {
		out.Days[i] = string(d)
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// MUTATIONS
// =============================================================================

// CreateReservation books the room.
// POST /api/reservations
func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	user, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not signed in", nil)
		return
	}

	var req CreateReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.BandName) == "" {
		writeError(w, http.StatusBadRequest, "bandName is required", nil)
		return
	}
	if err := h.checkDurationMin(req.DurationMin); err != nil {
		h.writeBookingError(w, err)
		return
	}
	start, end, err := h.parseInterval(req.Date, req.StartTime, req.DurationMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date or time", err)
		return
	}

	res, err := h.Service.Create(r.Context(), user, req.BandName, start, end)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateReservationResponse{
		DayKey:  string(res.DayKey),
		GroupID: string(res.GroupID),
	})
}

// EditReservation moves the caller's booking within its day.
// PUT /api/reservations/{dayKey}
func (h *Handler) EditReservation(w http.ResponseWriter, r *http.Request) {
	user, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not signed in", nil)
		return
	}
	day, err := booking.ParseDayKey(chi.URLParam(r, "dayKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	var req EditReservationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date := req.Date
	if date == "" {
		date = string(day)
	}
	if err := h.checkDurationMin(req.DurationMin); err != nil {
		h.writeBookingError(w, err)
		return
	}
	start, end, err := h.parseInterval(date, req.StartTime, req.DurationMin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date or time", err)
		return
	}

	if err := h.Service.Edit(r.Context(), user, day, start, end); err != nil {
		h.writeBookingError(w, err)
		return
	}

	res, err := h.Service.GetReservation(r.Context(), user, day)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReservationDTO(*res, h.loc()))
}

// DeleteReservation cancels the caller's booking on a day.
// DELETE /api/reservations/{dayKey}
func (h *Handler) DeleteReservation(w http.ResponseWriter, r *http.Request) {
	user, ok := UserIDFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Not signed in", nil)
		return
	}
	day, err := booking.ParseDayKey(chi.URLParam(r, "dayKey"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid day", err)
		return
	}

	deleted, err := h.Service.Delete(r.Context(), user, day)
	if err != nil {
		h.writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteReservationResponse{DayKey: string(deleted)})
}

// =============================================================================
// HELPERS
// =============================================================================

// checkDurationMin bounds durationMin before it is turned into a
// time.Duration, which would wrap for huge values.
func (h *Handler) checkDurationMin(durationMin int) error {
	maxMin := int(h.Service.Rules().MaxDuration / time.Minute)
	switch {
	case durationMin <= 0:
		return &booking.Error{Kind: booking.ErrInvalidInterval, Reason: "durationMin must be positive"}
	case durationMin > maxMin:
		return &booking.Error{Kind: booking.ErrDurationExceeded,
			Reason: fmt.Sprintf("durationMin must be at most %d", maxMin)}
	}
	return nil
}

// parseInterval reads the form fields in the room's zone. durationMin must
// already be checked.
func (h *Handler) parseInterval(date, clock string, durationMin int) (time.Time, time.Time, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date must be YYYY-MM-DD: %w", err)
	}
	start, err := time.ParseInLocation(dateLayout+" "+clockLayout, date+" "+clock, h.loc())
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("startTime must be HH:MM: %w", err)
	}
	return start, start.Add(time.Duration(durationMin) * time.Minute), nil
}

var kindNames = map[error]string{
	booking.ErrInvalidInterval:    "InvalidInterval",
	booking.ErrDurationExceeded:   "DurationExceeded",
	booking.ErrOutOfBookingWindow: "OutOfBookingWindow",
	booking.ErrCooldownViolation:  "CooldownViolation",
	booking.ErrAlreadyBookedToday: "AlreadyBookedToday",
	booking.ErrSlotConflict:       "SlotConflict",
	booking.ErrNotFound:           "NotFound",
	booking.ErrForbidden:          "Forbidden",
	booking.ErrPastBooking:        "PastBooking",
	booking.ErrDayMismatch:        "DayMismatch",
	booking.ErrStoreUnavailable:   "StoreUnavailable",
}

// statusFor maps a booking error kind to an HTTP status.
func statusFor(kind error) int {
	switch kind {
	case booking.ErrInvalidInterval, booking.ErrDurationExceeded,
		booking.ErrOutOfBookingWindow, booking.ErrDayMismatch:
		return http.StatusBadRequest
	case booking.ErrCooldownViolation, booking.ErrPastBooking:
		return http.StatusUnprocessableEntity
	case booking.ErrAlreadyBookedToday, booking.ErrSlotConflict:
		return http.StatusConflict
	case booking.ErrNotFound:
		return http.StatusNotFound
	case booking.ErrForbidden:
		return http.StatusForbidden
	case booking.ErrStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeBookingError(w http.ResponseWriter, err error) {
	kind := booking.KindOf(err)
	status := statusFor(kind)

	resp := ErrorResponse{Error: err.Error(), Kind: kindNames[kind]}
	var be *booking.Error
	if errors.As(err, &be) && be.Reason != "" {
		resp.Error = be.Reason
	}
	if status >= http.StatusInternalServerError {
		// Store internals stay in the log.
		h.Logger.Error("booking request failed", zap.Error(err))
		resp.Error = "The booking service is temporarily unavailable, please retry"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
