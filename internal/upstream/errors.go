package upstream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrInvalidFarmID = errors.New("invalid farm id")
	// ErrUnavailable covers network failures, timeouts and unreadable
	// responses.
	ErrUnavailable = errors.New("upstream unavailable")
)

type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: status %d", e.URL, e.Status)
}

// ParseError reports a response whose JSON shape is not the expected one.
// It matches ErrUnavailable under errors.Is.
type ParseError struct {
	URL     string
	Payload []byte
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("upstream %s: parse: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrUnavailable }

// ParseFarmID accepts a positive decimal integer.
func ParseFarmID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFarmID, s)
	}
	return id, nil
}

const maxLoggedPayload = 2 << 10

func truncatePayload(b []byte) string {
	if len(b) <= maxLoggedPayload {
		return string(b)
	}
	return string(b[:maxLoggedPayload]) + "...(truncated)"
}
