package index

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidChecksum          = errors.New("invalid sha256 checksum file")
	ErrMetadataURLMismatch      = errors.New("metadata URL does not match the wheel URL")
	ErrOrphanedMetadataChecksum = errors.New("metadata checksum found without a metadata file")
)

// ParseChecksumFile extracts the digest of a "<sha256 hex> <filename>" side
// file. When filename is not empty it must appear in contents.
func ParseChecksumFile(contents, filename string) (string, error) {
	contents = strings.TrimSpace(contents)
	if filename != "" && !strings.Contains(contents, filename) {
		return "", fmt.Errorf("%w: %s is not listed", ErrInvalidChecksum, filename)
	}
	fields := strings.Fields(contents)
	if len(fields) == 0 {
		return "", fmt.Errorf("%w: empty file", ErrInvalidChecksum)
	}
	hash := fields[0]
	if !isValidHexHash(hash) {
		return "", fmt.Errorf("%w: %q is not a sha256 digest", ErrInvalidChecksum, hash)
	}
	return strings.ToLower(hash), nil
}

// isValidHexHash reports whether s is exactly 64 hexadecimal characters.
func isValidHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
