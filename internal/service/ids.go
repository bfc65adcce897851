package service

import (
	"strings"

	"github.com/google/uuid"
)

// newStoredName returns the on-disk name of an upload. Only the extension of
// the user supplied name survives.
func newStoredName(fileType string) string {
	ext := strings.ToLower(strings.TrimPrefix(fileType, "."))
	if ext == "" {
		return uuid.NewString()
	}
	return uuid.NewString() + "." + ext
}
