package domain

import "errors"

// Error kinds. Every rejection raised by the engine wraps exactly one of these.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrStateConflict    = errors.New("state conflict")
)

var kinds = []error{ErrInvalidArgument, ErrNotFound, ErrCapacityExceeded, ErrStateConflict}

// KindOf returns the error kind wrapped by err, or nil for internal failures.
func KindOf(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// CodeOf names the kind of err for logs, metrics and API payloads: "ok" for nil,
// "internal" for errors that wrap no kind.
func CodeOf(err error) string {
	if err == nil {
		return "ok"
	}
	switch KindOf(err) {
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrNotFound:
		return "not_found"
	case ErrCapacityExceeded:
		return "capacity_exceeded"
	case ErrStateConflict:
		return "state_conflict"
	}
	return "internal"
}
