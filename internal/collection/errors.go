package collection

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrBusy            = errors.New("another change to this collection is still in progress")
	ErrValidation      = errors.New("validation failed")
	ErrInvalidAsset    = errors.New("asset must carry both a public url and a storage path")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrReorderPersist  = errors.New("reorder was not persisted")
	ErrUnknownKey      = errors.New("unknown collection")
	ErrUpload          = errors.New("upload failed")
	ErrAssetInUse      = errors.New("asset is attached to another item")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ReorderError is returned when one or more order writes failed. Items holds
// the list refetched from the store, or nil when the refetch failed too.
// Removed is the id of the item whose deletion triggered the renumbering;
// that deletion was persisted.
type ReorderError struct {
	Removed    string
	Failed     []string
	Cause      error
	RefetchErr error
	Items      []Item
}

func (e *ReorderError) Error() string {
	msg := fmt.Sprintf("%s: %d order write(s) failed [%s]: %v", ErrReorderPersist, len(e.Failed), strings.Join(e.Failed, ", "), e.Cause)
	if e.Removed != "" {
		msg = fmt.Sprintf("%s removed, but %s", e.Removed, msg)
	}
	if e.RefetchErr != nil {
		msg += fmt.Sprintf("; refetch failed: %v", e.RefetchErr)
	}
	return msg
}

func (e *ReorderError) Unwrap() []error {
	errs := []error{ErrReorderPersist}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
