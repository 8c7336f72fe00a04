package pkgfetcher

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

var (
	// ErrChecksumMismatch is returned (wrapped in a *ChecksumError) when a file
	// does not match its expected digest.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrInvalidChecksum  = errors.New("invalid checksum")
	ErrBadSignature     = errors.New("signature verification failed")
)

// ChecksumError describes a failed digest comparison.
type ChecksumError struct {
	Filename string
	Expected string
	Got      string
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum verification failed for %s\nExpected: %s\nGot:      %s", e.Filename, e.Expected, e.Got)
}

// Unwrap returns ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error { return ErrChecksumMismatch }

// VerifyMD5 compares the MD5 digest of file against expected (hex, any case).
func VerifyMD5(file, expected string) error {
	expected = strings.ToLower(strings.TrimSpace(expected))
	if len(expected) != md5.Size*2 {
		return fmt.Errorf("%w: %q is not an md5 digest", ErrInvalidChecksum, expected)
	}
	if _, err := hex.DecodeString(expected); err != nil {
		return fmt.Errorf("%w: %q is not hex", ErrInvalidChecksum, expected)
	}

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hashing %s: %w", file, err)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != expected {
		return &ChecksumError{Filename: file, Expected: expected, Got: got}
	}
	return nil
}

// VerifySignature checks a detached OpenPGP signature of file against the
// public keys in keyringFile. Both the signature and keyring may be armored
// or binary.
func VerifySignature(file, sigFile, keyringFile string) error {
	keyData, err := os.ReadFile(keyringFile)
	if err != nil {
		return fmt.Errorf("reading keyring %s: %w", keyringFile, err)
	}
	var keyring openpgp.EntityList
	if isArmored(keyData) {
		keyring, err = openpgp.ReadArmoredKeyRing(bytes.NewReader(keyData))
	} else {
		keyring, err = openpgp.ReadKeyRing(bytes.NewReader(keyData))
	}
	if err != nil {
		return fmt.Errorf("parsing keyring %s: %w", keyringFile, err)
	}

	sigData, err := os.ReadFile(sigFile)
	if err != nil {
		return fmt.Errorf("reading signature %s: %w", sigFile, err)
	}
	var sig io.Reader = bytes.NewReader(sigData)
	if isArmored(sigData) {
		block, err := armor.Decode(sig)
		if err != nil {
			return fmt.Errorf("decoding signature %s: %w", sigFile, err)
		}
		sig = block.Body
	}

	signed, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s: %w", file, err)
	}
	defer signed.Close()

	if _, err := openpgp.CheckDetachedSignature(keyring, signed, sig, nil); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadSignature, file, err)
	}
	return nil
}

func isArmored(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN PGP"))
}
