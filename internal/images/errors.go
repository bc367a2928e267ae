package images

import (
	"errors"
	"fmt"
)

// Error kinds. Match them with errors.Is; the underlying cause stays
// reachable the same way.
var (
	// ErrNotFound: absent from every tier and no remote locator was given.
	ErrNotFound = errors.New("image not found")
	// ErrRemoteFetchFailed: network or storage failure while resolving.
	ErrRemoteFetchFailed = errors.New("remote fetch failed")
	// ErrLocalWriteFailed: the photo could not be saved locally.
	ErrLocalWriteFailed = errors.New("local write failed")
	// ErrRemoteUploadFailed: the photo stays saved locally but not uploaded.
	ErrRemoteUploadFailed = errors.New("remote upload failed")
	// ErrRemoteDeleteFailed is logged, never returned to the user.
	ErrRemoteDeleteFailed = errors.New("remote delete failed")

	// ErrUploadInProgress is returned when the photo is already uploading.
	ErrUploadInProgress = errors.New("upload already in progress")
)

// Error ties an error kind to the image it concerns and its cause.
type Error struct {
	Kind     error
	Identity string
	Cause    error
}

func (e *Error) Error() string {
	if e.Identity == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("%v: %s: %v", e.Kind, e.Identity, e.Cause)
}

func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Cause}
}

func newError(kind error, identity string, cause error) *Error {
	return &Error{Kind: kind, Identity: identity, Cause: cause}
}
