package app

import (
	"github.com/pkg/errors"
)

// Kind classifies a failure for display.
type Kind int

const (
	KindNetwork Kind = iota
	KindValidation
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	default:
		return "network"
	}
}

var (
	// ErrUnauthenticated is matched by any failure caused by a missing,
	// expired or rejected session token.
	ErrUnauthenticated = errors.New("not authenticated")

	// ErrNotFound is matched by remote lookups that found nothing.
	ErrNotFound = errors.New("not found")
)

// ValidationError is a client-side check that failed before any request.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

var (
	ErrNoFile          = &ValidationError{Reason: "no image selected"}
	ErrUnreadableImage = &ValidationError{Reason: "file is not a readable image"}
	ErrEmptyAlbumName  = &ValidationError{Reason: "album name is empty"}
	ErrAlbumNotEmpty   = &ValidationError{Reason: "album still contains photos"}
	ErrPhotoNotLoaded  = &ValidationError{Reason: "photo is not in the loaded list"}
	ErrEmptyMessage    = &ValidationError{Reason: "message is empty"}
)

// KindOf maps err onto the failure taxonomy. Anything that is neither an
// auth nor a validation failure is treated as a network failure.
func KindOf(err error) Kind {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return KindAuth
	case errors.As(err, &verr):
		return KindValidation
	default:
		return KindNetwork
	}
}
