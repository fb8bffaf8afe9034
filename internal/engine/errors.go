package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/anchorage/internal/anchorid"
	"github.com/roach88/anchorage/internal/store"
)

// Error is a lifecycle error scoped to one record or one save request.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// Index is the record index, when the error concerns a stored record.
	Index    uint64
	HasIndex bool

	// Identifier is the anchor identifier, when known.
	Identifier string

	// Err is the underlying cause.
	Err error
}

// ErrorCode categorizes lifecycle errors.
type ErrorCode string

const (
	// ErrCodeMalformedIdentifier: a stored identifier did not parse.
	ErrCodeMalformedIdentifier ErrorCode = "MALFORMED_IDENTIFIER"

	// ErrCodeNotFound: index out of range or record fields absent.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeAttachmentFailed: the subsystem refused to attach an anchor.
	ErrCodeAttachmentFailed ErrorCode = "ATTACHMENT_FAILED"

	// ErrCodeStorageUnavailable: the record store could not be read or written.
	ErrCodeStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"

	// ErrCodeSubsystemFailure: a save or resolve returned a failure status.
	ErrCodeSubsystemFailure ErrorCode = "SUBSYSTEM_FAILURE"

	// ErrCodeTrackingTimeout: tracking did not stabilize within the
	// configured timeout.
	ErrCodeTrackingTimeout ErrorCode = "TRACKING_TIMEOUT"
)

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.HasIndex && e.Identifier != "":
		return fmt.Sprintf("%s: %s (index=%d, id=%s)", e.Code, e.Message, e.Index, e.Identifier)
	case e.HasIndex:
		return fmt.Sprintf("%s: %s (index=%d)", e.Code, e.Message, e.Index)
	case e.Identifier != "":
		return fmt.Sprintf("%s: %s (id=%s)", e.Code, e.Message, e.Identifier)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsMalformedIdentifier reports whether err is a MALFORMED_IDENTIFIER error.
func IsMalformedIdentifier(err error) bool { return hasCode(err, ErrCodeMalformedIdentifier) }

// IsNotFound reports whether err is a NOT_FOUND error.
func IsNotFound(err error) bool { return hasCode(err, ErrCodeNotFound) }

// IsAttachmentFailed reports whether err is an ATTACHMENT_FAILED error.
func IsAttachmentFailed(err error) bool { return hasCode(err, ErrCodeAttachmentFailed) }

// IsStorageUnavailable reports whether err is a STORAGE_UNAVAILABLE error.
func IsStorageUnavailable(err error) bool { return hasCode(err, ErrCodeStorageUnavailable) }

// IsSubsystemFailure reports whether err is a SUBSYSTEM_FAILURE error.
func IsSubsystemFailure(err error) bool { return hasCode(err, ErrCodeSubsystemFailure) }

// IsTrackingTimeout reports whether err is a TRACKING_TIMEOUT error.
func IsTrackingTimeout(err error) bool { return hasCode(err, ErrCodeTrackingTimeout) }

// recordError classifies a record store error for index.
func recordError(index uint64, err error) *Error {
	code := ErrCodeStorageUnavailable
	switch {
	case errors.Is(err, anchorid.ErrMalformed):
		code = ErrCodeMalformedIdentifier
	case errors.Is(err, store.ErrNotFound):
		code = ErrCodeNotFound
	}
	return &Error{
		Code:     code,
		Message:  "record unreadable",
		Index:    index,
		HasIndex: true,
		Err:      err,
	}
}

// Sentinel input errors returned by HandlePress.
var (
	// ErrIgnoredInput is returned for press events that are not a new contact.
	ErrIgnoredInput = errors.New("press event ignored: not a began phase")

	// ErrNoSurfaceHit is returned when the press did not hit a trackable.
	ErrNoSurfaceHit = errors.New("no trackable surface at press position")

	// ErrNotAPlane is returned when the press hit a trackable that is not a plane.
	ErrNotAPlane = errors.New("trackable at press position is not a plane")

	// ErrNoRaycaster is returned by HandlePress when no raycaster is configured.
	ErrNoRaycaster = errors.New("no raycaster configured")

	// ErrLoadInProgress is returned when Load is called while a pass runs.
	ErrLoadInProgress = errors.New("load pass already in progress")
)
