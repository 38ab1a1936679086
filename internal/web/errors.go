package web

import (
	"errors"
	"fmt"
	"net/http"

	"sflcompanion.app/internal/upstream"
)

const (
	// Request validation.
	ErrBadRequest    = "E_BAD_REQUEST"
	ErrInvalidFarmID = "E_INVALID_FARM_ID"
	ErrBadGoal       = "E_BAD_GOAL"

	// Upstream data.
	ErrUpstreamUnavailable = "E_UPSTREAM_UNAVAILABLE"
	ErrUpstreamStatus      = "E_UPSTREAM_STATUS"

	ErrInternal = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrBadRequest:          {},
	ErrInvalidFarmID:       {},
	ErrBadGoal:             {},
	ErrUpstreamUnavailable: {},
	ErrUpstreamStatus:      {},
	ErrInternal:            {},
}

func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

type apiError struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	Suggestion string `json:"suggestion,omitempty"`
}

// classify maps a provider error to an HTTP status, a stable code and a
// message fit for players.
func classify(err error) (status int, code, msg string) {
	var se *upstream.StatusError
	switch {
	case errors.Is(err, upstream.ErrInvalidFarmID):
		return http.StatusBadRequest, ErrInvalidFarmID, "Farm ID must be a positive whole number."
	case errors.As(err, &se):
		return http.StatusBadGateway, ErrUpstreamStatus,
			fmt.Sprintf("The game API answered with status %d. The farm may not exist.", se.Status)
	case errors.Is(err, upstream.ErrUnavailable):
		return http.StatusBadGateway, ErrUpstreamUnavailable, "The game API is unavailable right now. Try again in a few minutes."
	default:
		return http.StatusInternalServerError, ErrInternal, "Something went wrong."
	}
}
