package services

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrRFIDTaken         = errors.New("rfid already registered")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("unauthorized")
)

// AttendanceCompleteError is returned on a third scan of the day. It carries
// the times already recorded so the device can show them.
type AttendanceCompleteError struct {
	User     string
	CheckIn  string
	CheckOut string
}

func (e *AttendanceCompleteError) Error() string {
	return "Anda sudah check-in dan check-out hari ini."
}

// ErrAttendanceComplete matches *AttendanceCompleteError via errors.Is.
var ErrAttendanceComplete = errors.New("attendance complete for today")

func (e *AttendanceCompleteError) Is(target error) bool {
	return target == ErrAttendanceComplete
}

// UserError carries a message safe to show to the end user and wraps a
// sentinel for status mapping.
type UserError struct {
	Kind error
	Msg  string
}

func (e *UserError) Error() string { return e.Msg }
func (e *UserError) Unwrap() error { return e.Kind }

func userErr(kind error, msg string) error {
	return &UserError{Kind: kind, Msg: msg}
}

// PublicMessage returns the user-facing message of err when it has one.
func PublicMessage(err error, fallback string) string {
	var ue *UserError
	if errors.As(err, &ue) {
		return ue.Msg
	}
	var ac *AttendanceCompleteError
	if errors.As(err, &ac) {
		return ac.Error()
	}
	return fallback
}
