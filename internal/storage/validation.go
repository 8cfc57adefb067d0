package storage

import (
	"fmt"
	"strings"

	apperrors "github.com/lcrostarosa/proofmode/internal/errors"
	"github.com/lcrostarosa/proofmode/internal/hashing"
)

func isValidIdentifier(name string) bool {
	if name == "" || len(name) > 256 || strings.HasPrefix(name, ".") {
		return false
	}
	// Allow alphanumeric, hyphen, underscore, and dot
	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == '.') {
			return false
		}
	}
	// Don't allow path traversal
	if strings.Contains(name, "..") {
		return false
	}
	return true
}

func validate(fingerprint, identifier string) error {
	if !hashing.Valid(fingerprint) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidFingerprint, fingerprint)
	}
	if identifier != "" && !isValidIdentifier(identifier) {
		return fmt.Errorf("%w: %q", apperrors.ErrInvalidIdentifier, identifier)
	}
	return nil
}
