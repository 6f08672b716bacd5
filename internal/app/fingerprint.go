/**
 * @description
 * This file implements the secret fingerprinting used to pair offline requests.
 * Two devices that agreed on a one-time code offline prove it to the server by
 * submitting the code; the server stores only a keyed HMAC-SHA256 digest of it.
 * The raw code is never persisted, and the keyed construction prevents
 * rainbow-table recovery of short codes from stored fingerprints.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Standard Go libraries.
 */

package app

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprinter derives secret fingerprints under a service-held key.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a Fingerprinter from the configured secret.
func NewFingerprinter(secret string) *Fingerprinter {
	return &Fingerprinter{key: []byte(secret)}
}

// Fingerprint returns the hex-encoded HMAC-SHA256 of the shared one-time code.
func (f *Fingerprinter) Fingerprint(secretCode string) string {
	mac := hmac.New(sha256.New, f.key)
	mac.Write([]byte(secretCode))
	return hex.EncodeToString(mac.Sum(nil))
}
