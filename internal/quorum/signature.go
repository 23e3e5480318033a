package quorum

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"deje/internal/errs"
	"deje/internal/identity"
)

// defaultDuration is the default signature lifetime: 5 minutes from
// generation, per spec.md §3.
const defaultDuration = 5 * time.Minute

// sigSeparator is the single byte that splits a signature blob's
// expiry timestamp from the raw signature bytes.
const sigSeparator = 0x00

const expiryLayout = "2006-01-02T15:04:05.000000Z"

// generateSignature builds a signature blob: the ISO-8601 UTC expiry
// with microseconds, a 0x00 byte, then the hex-encoded signature over
// (expiry ‖ contentHash).
func generateSignature(id identity.Identity, contentHash string, duration time.Duration) (string, error) {
	expiry := time.Now().UTC().Add(duration).Format(expiryLayout)
	raw, err := id.Sign([]byte(expiry + contentHash))
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrBadSignature, err)
	}
	var b strings.Builder
	b.WriteString(expiry)
	b.WriteByte(sigSeparator)
	b.WriteString(hex.EncodeToString(raw))
	return b.String(), nil
}

// assertValidSignature runs the validity algorithm from spec.md §4.3:
// split at the first 0x00, parse the expiry, check it hasn't passed,
// and verify the raw signature under identity's public key.
func assertValidSignature(id identity.Identity, contentHash, signature string) error {
	expiryStr, rawHex, ok := splitSignature(signature)
	if !ok {
		return errs.ErrBadSignatureFormat
	}

	expiry, err := time.Parse(expiryLayout, expiryStr)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadSignatureFormat, err)
	}
	if !expiry.After(time.Now().UTC()) {
		return errs.ErrExpiredSignature
	}

	raw, err := hex.DecodeString(rawHex)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrBadSignatureFormat, err)
	}
	if !id.Verify([]byte(expiryStr+contentHash), raw) {
		return errs.ErrBadSignature
	}
	return nil
}

// validateSignature is assertValidSignature without the error detail —
// used wherever the caller only needs a yes/no (e.g. Quorum.sigValid).
func validateSignature(id identity.Identity, contentHash, signature string) bool {
	return assertValidSignature(id, contentHash, signature) == nil
}

// VerifySignature is validateSignature's exported form, for callers
// outside this package that need to check a signature against a known
// identity without going through a live Quorum — catch-up block
// verification (internal/document.Document.Sync) in particular.
func VerifySignature(id identity.Identity, contentHash, signature string) bool {
	return validateSignature(id, contentHash, signature)
}

// splitSignature breaks a blob at the first 0x00 byte.
func splitSignature(signature string) (expiry, rawHex string, ok bool) {
	idx := strings.IndexByte(signature, sigSeparator)
	if idx < 0 {
		return "", "", false
	}
	return signature[:idx], signature[idx+1:], true
}
