/*
handlers_test.go - HTTP tests for the booking API

Tests for:
- Create / edit / delete round trips and their status codes
- Error kind to status mapping
- Bearer token handling and rate limiting
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tnsmusic/rehearsal-booking/api"
	"github.com/tnsmusic/rehearsal-booking/booking"
	"github.com/tnsmusic/rehearsal-booking/booking/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var (
	secret = []byte("test-secret")
	bkk    = time.FixedZone("ICT", 7*60*60)
	june1  = time.Date(2024, 6, 1, 9, 0, 0, 0, bkk)
)

func newTestServer(t *testing.T, perMin int) http.Handler {
	t.Helper()
	rules := booking.DefaultRules()
	rules.Location = bkk
	ids := booking.NewIdentityTable("v1", map[string]string{"tns band": "TNS Band"})
	svc := booking.NewService(store.NewMemory(), rules,
		booking.WithClock(booking.FixedClock(june1)),
		booking.WithIdentityTable(ids),
	)
	h := api.NewHandler(svc, nil)
	return api.NewRouter(h, api.RouterOptions{JWTSecret: secret, RateLimitPerMin: perMin})
}

func tokenFor(t *testing.T, user string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{UserID: user}).SignedString(secret)
	require.NoError(t, err)
	return tok
}

func do(t *testing.T, srv http.Handler, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, user))
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createReq(band, date, start string, minutes int) api.CreateReservationRequest {
	return api.CreateReservationRequest{BandName: band, Date: date, StartTime: start, DurationMin: minutes}
}

// =============================================================================
// CREATE
// =============================================================================

func TestCreateReservation_Success(t *testing.T) {
	srv := newTestServer(t, 0)

	rec := do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("tns  band", "2024-06-02", "18:00", 90))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	created := decode[api.CreateReservationResponse](t, rec)
	assert.Equal(t, "2024-06-02", created.DayKey)
	assert.Equal(t, "u1_2024-06-02", created.GroupID)

	rec = do(t, srv, http.MethodGet, "/api/me/reservations/2024-06-02", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, "TNS Band", mine.BandName)
	assert.Equal(t, "18:00", mine.StartTime)
	assert.Equal(t, "19:30", mine.EndTime)
	assert.Equal(t, 90, mine.DurationMin)

	rec = do(t, srv, http.MethodGet, "/api/days/2024-06-02/reservations", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	day := decode[[]api.DaySummaryDTO](t, rec)
	require.Len(t, day, 1)
	assert.Equal(t, "u1", day[0].UserID)
	assert.Equal(t, "2024-06-02T18:00:00+07:00", day[0].Start)
}

func TestCreateReservation_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("A", "2024-06-02", "18:00", 60)).Code)

	tests := []struct {
		name   string
		user   string
		req    api.CreateReservationRequest
		status int
		kind   string
	}{
		{"slot taken", "u2", createReq("B", "2024-06-02", "18:30", 60), http.StatusConflict, "SlotConflict"},
		{"cooldown", "u1", createReq("A", "2024-06-03", "10:00", 60), http.StatusUnprocessableEntity, "CooldownViolation"},
		{"too long", "u2", createReq("B", "2024-06-02", "08:00", 181), http.StatusBadRequest, "DurationExceeded"},
		{"zero length", "u2", createReq("B", "2024-06-02", "08:00", 0), http.StatusBadRequest, "InvalidInterval"},
		{"negative length", "u2", createReq("B", "2024-06-02", "08:00", -30), http.StatusBadRequest, "InvalidInterval"},
		{"duration that would wrap", "u2", createReq("B", "2024-06-02", "08:00", 1<<40), http.StatusBadRequest, "DurationExceeded"},
		{"beyond horizon", "u2", createReq("B", "2024-06-04", "08:00", 60), http.StatusBadRequest, "OutOfBookingWindow"},
		{"blank band", "u2", createReq("   ", "2024-06-02", "08:00", 60), http.StatusBadRequest, ""},
		{"bad clock", "u2", createReq("B", "2024-06-02", "8am", 60), http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, srv, http.MethodPost, "/api/reservations", tt.user, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			body := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, tt.kind, body.Kind)
			assert.NotEmpty(t, body.Error)
		})
	}
}

// =============================================================================
// EDIT / DELETE
// =============================================================================

func TestEditReservation(t *testing.T) {
	srv := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("A", "2024-06-02", "18:00", 60)).Code)

	rec := do(t, srv, http.MethodPut, "/api/reservations/2024-06-02", "u1",
		api.EditReservationRequest{StartTime: "19:00", DurationMin: 120})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	edited := decode[api.ReservationDTO](t, rec)
	assert.Equal(t, "19:00", edited.StartTime)
	assert.Equal(t, "21:00", edited.EndTime)

	rec = do(t, srv, http.MethodPut, "/api/reservations/2024-06-02", "u1",
		api.EditReservationRequest{Date: "2024-06-03", StartTime: "19:00", DurationMin: 60})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DayMismatch", decode[api.ErrorResponse](t, rec).Kind)

	rec = do(t, srv, http.MethodPut, "/api/reservations/2024-06-02", "u2",
		api.EditReservationRequest{StartTime: "19:00", DurationMin: 60})
	assert.Equal(t, http.StatusNotFound, rec.Code, "another user has no booking to edit")

	rec = do(t, srv, http.MethodPut, "/api/reservations/2024-06-02", "u1",
		api.EditReservationRequest{StartTime: "19:00", DurationMin: 1 << 40})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "DurationExceeded", decode[api.ErrorResponse](t, rec).Kind)
}

func TestDeleteReservation(t *testing.T) {
	srv := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("A", "2024-06-02", "18:00", 60)).Code)

	rec := do(t, srv, http.MethodDelete, "/api/reservations/2024-06-02", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2024-06-02", decode[api.DeleteReservationResponse](t, rec).DayKey)

	rec = do(t, srv, http.MethodDelete, "/api/reservations/2024-06-02", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/reservations/not-a-day", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// READS
// =============================================================================

func TestLeaderboardAndWindow(t *testing.T) {
	srv := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("TNS Band", "2024-06-02", "18:00", 90)).Code)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u2", createReq("Other", "2024-06-02", "10:00", 30)).Code)

	rec := do(t, srv, http.MethodGet, "/api/leaderboard?limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &board))
	require.Len(t, board, 2)
	assert.Equal(t, "TNS Band", board[0]["bandName"])
	assert.Equal(t, float64(90), board[0]["minutes"])
	assert.Equal(t, "1.5", board[0]["hours"])
	assert.Equal(t, float64(1), board[0]["rank"])

	rec = do(t, srv, http.MethodGet, "/api/leaderboard?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/window", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	win := decode[api.WindowDTO](t, rec)
	assert.Equal(t, "2024-06-01", win.MinDay)
	assert.Equal(t, "2024-06-03", win.MaxDay)
}

func TestGetMyDays(t *testing.T) {
	srv := newTestServer(t, 0)
	require.Equal(t, http.StatusCreated,
		do(t, srv, http.MethodPost, "/api/reservations", "u1", createReq("A", "2024-06-02", "18:00", 60)).Code)

	rec := do(t, srv, http.MethodGet, "/api/me/days", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"2024-06-02"}, decode[api.BookedDaysDTO](t, rec).Days)

	rec = do(t, srv, http.MethodGet, "/api/me/days?days=2024-06-03,2024-06-04", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[api.BookedDaysDTO](t, rec).Days)
}

func TestHealth(t *testing.T) {
	rec := do(t, newTestServer(t, 0), http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// AUTH AND RATE LIMIT
// =============================================================================

func TestAuth(t *testing.T) {
	srv := newTestServer(t, 0)
	body := createReq("A", "2024-06-02", "18:00", 60)

	rec := do(t, srv, http.MethodPost, "/api/reservations", "", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "missing token")

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/api/reservations", &buf)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, api.Claims{UserID: "u1"}).SignedString([]byte("wrong"))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "wrong signing key")

	req = httptest.NewRequest(http.MethodGet, "/api/me/days", nil)
	req.Header.Set("Authorization", "Token abc")
	rr = httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "wrong scheme")

	rec = do(t, srv, http.MethodGet, "/api/days/2024-06-02/reservations", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "day schedule is public")
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodDelete, "/api/reservations/2024-06-02", "u1", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}
	rec := do(t, srv, http.MethodDelete, "/api/reservations/2024-06-02", "u1", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/reservations/2024-06-02", "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "limits are per user")
}
