package app

import (
	"errors"
	"fmt"
	"net/http"

	"siteadmin/api/internal/collection"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// mapError turns an error into the notification shown by the admin console.
func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}

	var validationErr *collection.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", validationErr.Error(), map[string]any{"field": validationErr.Field}
	}

	var reorderErr *collection.ReorderError
	if errors.As(err, &reorderErr) {
		details := map[string]any{"failed": reorderErr.Failed}
		if reorderErr.RefetchErr == nil {
			details["items"] = reorderErr.Items
		}
		if reorderErr.Removed != "" {
			details["removed"] = reorderErr.Removed
			return http.StatusBadGateway, "REORDER_NOT_PERSISTED", "The item was deleted, but the new order could not be saved; the list was reloaded", details
		}
		return http.StatusBadGateway, "REORDER_NOT_PERSISTED", "The new order could not be saved; the list was reloaded", details
	}

	switch {
	case errors.Is(err, collection.ErrUnknownKey):
		return http.StatusNotFound, "UNKNOWN_COLLECTION", "Unknown collection", nil
	case errors.Is(err, collection.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, collection.ErrBusy):
		return http.StatusConflict, "MUTATION_IN_PROGRESS", "Another change to this list is still being saved", nil
	case errors.Is(err, collection.ErrAssetInUse):
		return http.StatusConflict, "ASSET_IN_USE", "This file is already attached to another item", nil
	case errors.Is(err, collection.ErrInvalidAsset):
		return http.StatusUnprocessableEntity, "INVALID_ASSET", err.Error(), nil
	case errors.Is(err, collection.ErrIndexOutOfRange):
		return http.StatusUnprocessableEntity, "INVALID_POSITION", err.Error(), nil
	case errors.Is(err, collection.ErrUpload):
		return http.StatusBadGateway, "UPLOAD_FAILED", "The file could not be uploaded", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
