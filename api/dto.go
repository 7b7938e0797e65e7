/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the booking model from the frontend contract. Field names are camelCase
  because the existing booking frontend reads them that way.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Small response wrappers

TIMES:
  Instants are RFC 3339 in the room's zone. StartTime/EndTime repeat the
  wall clock as HH:MM for display.

VALIDATION:
  Validation is done in handlers and the booking service, not in DTOs.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tnsmusic/rehearsal-booking/booking"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateReservationRequest is the booking form as the frontend submits it.
type CreateReservationRequest struct {
	BandName    string `json:"bandName"`
	Date        string `json:"date"`      // 2006-01-02
	StartTime   string `json:"startTime"` // 15:04
	DurationMin int    `json:"durationMin"`
}

// EditReservationRequest moves a booking within its day. Date defaults to
// the day in the URL.
type EditReservationRequest struct {
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"startTime"`
	DurationMin int    `json:"durationMin"`
}

// =============================================================================
// RESPONSES
// =============================================================================

type CreateReservationResponse struct {
	DayKey  string `json:"dayKey"`
	GroupID string `json:"groupId"`
}

type DeleteReservationResponse struct {
	DayKey string `json:"dayKey"`
}

// ReservationDTO is a user's head record.
type ReservationDTO struct {
	UserID      string `json:"userId"`
	BandKey     string `json:"bandKey"`
	BandName    string `json:"bandName"`
	DayKey      string `json:"dayKey"`
	GroupID     string `json:"groupId"`
	Start       string `json:"start"`
	End         string `json:"end"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	DurationMin int    `json:"durationMin"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// DaySummaryDTO is one row of a day's schedule.
type DaySummaryDTO struct {
	UserID    string `json:"userId"`
	BandName  string `json:"bandName"`
	DayKey    string `json:"dayKey"`
	GroupID   string `json:"groupId"`
	Start     string `json:"start"`
	End       string `json:"end"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

type LeaderboardEntryDTO struct {
	Rank     int             `json:"rank"`
	BandKey  string          `json:"bandKey"`
	BandName string          `json:"bandName"`
	Minutes  int             `json:"minutes"`
	Hours    decimal.Decimal `json:"hours"`
	Sessions int             `json:"sessions"`
}

type WindowDTO struct {
	MinDay   string `json:"minDay"`
	MaxDay   string `json:"maxDay"`
	Timezone string `json:"timezone"`
}

// BookedDaysDTO lists which of the asked days the caller already booked.
type BookedDaysDTO struct {
	Days []string `json:"days"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toReservationDTO(r booking.Reservation, loc *time.Location) ReservationDTO {
	return ReservationDTO{
		UserID:      string(r.UserID),
		BandKey:     r.BandKey,
		BandName:    r.BandName,
		DayKey:      string(r.DayKey),
		GroupID:     string(r.GroupID),
		Start:       r.StartAt.In(loc).Format(time.RFC3339),
		End:         r.EndAt.In(loc).Format(time.RFC3339),
		StartTime:   r.StartAt.In(loc).Format(clockLayout),
		EndTime:     r.EndAt.In(loc).Format(clockLayout),
		DurationMin: int(r.Duration() / time.Minute),
		CreatedAt:   r.CreatedAt.In(loc).Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.In(loc).Format(time.RFC3339),
	}
}

func toDaySummaryDTOs(rows []booking.DaySummary, loc *time.Location) []DaySummaryDTO {
	dtos := make([]DaySummaryDTO, len(rows))
	for i, s := range rows {
		dtos[i] = DaySummaryDTO{
			UserID:    string(s.UserID),
			BandName:  s.BandName,
			DayKey:    string(s.DayKey),
			GroupID:   string(s.GroupID),
			Start:     s.StartAt.In(loc).Format(time.RFC3339),
			End:       s.EndAt.In(loc).Format(time.RFC3339),
			StartTime: s.StartAt.In(loc).Format(clockLayout),
			EndTime:   s.EndAt.In(loc).Format(clockLayout),
		}
	}
	return dtos
}

func toLeaderboardDTOs(entries []booking.LeaderboardEntry) []LeaderboardEntryDTO {
	dtos := make([]LeaderboardEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = LeaderboardEntryDTO{
			Rank:     i + 1,
			BandKey:  e.BandKey,
			BandName: e.BandName,
			Minutes:  e.Minutes,
			Hours:    e.Hours(),
			Sessions: e.Sessions,
		}
	}
	return dtos
}
