package attendance

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes attendance errors.
type ErrorCode string

const (
	// ErrCodeInitFailed means the day batch could not be committed.
	ErrCodeInitFailed ErrorCode = "INIT_FAILED"

	// ErrCodeFlushFailed means a debounced snapshot write failed.
	ErrCodeFlushFailed ErrorCode = "FLUSH_FAILED"

	// ErrCodeSubscriptionFailed means the change feed stopped delivering.
	ErrCodeSubscriptionFailed ErrorCode = "SUBSCRIPTION_FAILED"

	// ErrCodeDetectorUnavailable means the detector could not be reached.
	ErrCodeDetectorUnavailable ErrorCode = "DETECTOR_UNAVAILABLE"

	// ErrCodeUnknownStudent means a roll number is not on the roster.
	ErrCodeUnknownStudent ErrorCode = "UNKNOWN_STUDENT"

	// ErrCodeInvalidRecord means a record or edit breaks a field invariant.
	ErrCodeInvalidRecord ErrorCode = "INVALID_RECORD"

	// ErrCodeReadOnly means the operator may not write.
	ErrCodeReadOnly ErrorCode = "READ_ONLY"

	// ErrCodeNoActiveDay means an edit arrived before any date was opened.
	ErrCodeNoActiveDay ErrorCode = "NO_ACTIVE_DAY"
)

// Error is a structured attendance error. None of them are fatal to the
// engine; callers surface them and carry on.
type Error struct {
	Code    ErrorCode
	Message string
	Date    string
	RollNo  string
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	switch {
	case e.Date != "" && e.RollNo != "":
		msg = fmt.Sprintf("%s (date=%s, roll_no=%s)", msg, e.Date, e.RollNo)
	case e.Date != "":
		msg = fmt.Sprintf("%s (date=%s)", msg, e.Date)
	case e.RollNo != "":
		msg = fmt.Sprintf("%s (roll_no=%s)", msg, e.RollNo)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HasCode reports whether err wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// IsInitError reports whether err is a day initialization failure.
func IsInitError(err error) bool { return HasCode(err, ErrCodeInitFailed) }

// IsFlushError reports whether err is a failed snapshot write.
func IsFlushError(err error) bool { return HasCode(err, ErrCodeFlushFailed) }

// IsSubscriptionError reports whether err came from the change feed.
func IsSubscriptionError(err error) bool { return HasCode(err, ErrCodeSubscriptionFailed) }

// IsDetectorUnavailable reports whether err means the detector is unreachable.
func IsDetectorUnavailable(err error) bool { return HasCode(err, ErrCodeDetectorUnavailable) }

// NewInitError wraps a failed day initialization.
func NewInitError(date string, err error) *Error {
	return &Error{Code: ErrCodeInitFailed, Message: "day initialization failed", Date: date, Err: err}
}

// NewFlushError wraps a failed snapshot write.
func NewFlushError(date string, err error) *Error {
	return &Error{Code: ErrCodeFlushFailed, Message: "attendance flush failed", Date: date, Err: err}
}

// NewSubscriptionError wraps a change feed failure.
func NewSubscriptionError(date string, err error) *Error {
	return &Error{Code: ErrCodeSubscriptionFailed, Message: "change feed stopped", Date: date, Err: err}
}

// NewDetectorUnavailableError wraps a failed detector request.
func NewDetectorUnavailableError(err error) *Error {
	return &Error{Code: ErrCodeDetectorUnavailable, Message: "camera unavailable", Err: err}
}

// NewUnknownStudentError reports a roll number missing from the roster.
func NewUnknownStudentError(rollNo string) *Error {
	return &Error{Code: ErrCodeUnknownStudent, Message: "roll number is not on the roster", RollNo: rollNo}
}

// NewInvalidRecordError reports a field invariant violation.
func NewInvalidRecordError(rollNo, message string) *Error {
	return &Error{Code: ErrCodeInvalidRecord, Message: message, RollNo: rollNo}
}

// ErrReadOnly is returned for writes attempted by a read-only operator.
var ErrReadOnly = &Error{Code: ErrCodeReadOnly, Message: "operator is not allowed to mark attendance"}

// ErrNoActiveDay is returned for edits issued before a date was opened.
var ErrNoActiveDay = &Error{Code: ErrCodeNoActiveDay, Message: "no day is open"}
