package domain

import (
	"errors"
	"fmt"
)

// Session and command errors.
var (
	ErrInvalidOperation = errors.New("invalid operation")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNoSession        = errors.New("no active session")
	ErrUnknownMember    = errors.New("unknown member")
)

// Correlation errors.
var (
	ErrDuplicateCorrelation = errors.New("correlation id already pending")
	ErrTimeout              = errors.New("command timed out")
	ErrTornDown             = errors.New("torn down")
	// ErrLivenessTimeout is ErrTimeout and ErrTornDown at once: pending work is dropped
	// because the host went silent.
	ErrLivenessTimeout = &multiSentinel{msg: "liveness timeout", of: []error{ErrTimeout, ErrTornDown}}
)

// Recording errors.
var (
	ErrAlreadyRecording = errors.New("already recording")
	ErrInvalidSession   = errors.New("recording target is not in a session")
)

// Device and media errors.
var (
	ErrUnsupportedDevice = errors.New("operation not supported for device class")
	ErrDeviceNotFound    = errors.New("device not found")
	ErrDeviceCancelled   = errors.New("device start cancelled")
	ErrInvalidMedia      = errors.New("invalid media frame")
	ErrCustomDisabled    = errors.New("custom media not enabled")
)

type multiSentinel struct {
	msg string
	of  []error
}

func (e *multiSentinel) Error() string   { return e.msg }
func (e *multiSentinel) Unwrap() []error { return e.of }

// CodedError is a failure reported by the engine or detected locally, tagged with
// the stage it belongs to.
type CodedError struct {
	Event ConnectEvent
	Code  int
	Err   error
}

func NewCodedError(event ConnectEvent, code int, cause error) *CodedError {
	return &CodedError{Event: event, Code: code, Err: cause}
}

func (e *CodedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error %d: %v", e.Event, e.Code, e.Err)
	}
	return fmt.Sprintf("%s error %d", e.Event, e.Code)
}

func (e *CodedError) Unwrap() error { return e.Err }

// CodeOf maps an error to the code reported to the host.
func CodeOf(err error) int {
	if err == nil {
		return CodeSuccess
	}
	var ce *CodedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	switch {
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrAlreadyRecording):
		return int(RecordExists)
	case errors.Is(err, ErrInvalidSession):
		return int(RecordInvalidSession)
	case errors.Is(err, ErrDeviceNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidMedia):
		return CodeBadRequest
	default:
		return LocalInvalid
	}
}
