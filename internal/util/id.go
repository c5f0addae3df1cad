package util

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a time-ordered unique id, optionally prefixed ("itm_0190...").
func NewID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	hex := strings.ReplaceAll(id.String(), "-", "")
	if prefix == "" {
		return hex
	}
	return prefix + "_" + hex
}
