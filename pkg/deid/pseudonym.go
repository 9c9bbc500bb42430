// Package deid replaces patient identifiers with stable pseudonyms before
// they leave the analytics store.
package deid

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const pseudonymPrefix = "pt_"

// Pseudonymizer maps an identifier to the same token on every call for a
// given salt. Tokens cannot be reversed without the salt.
type Pseudonymizer struct {
	salt []byte
}

func NewPseudonymizer(salt string) *Pseudonymizer {
	return &Pseudonymizer{salt: []byte(salt)}
}

// Pseudonym returns "" for a blank identifier.
func (p *Pseudonymizer) Pseudonym(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	mac := hmac.New(sha256.New, p.salt)
	mac.Write([]byte(id))
	return pseudonymPrefix + hex.EncodeToString(mac.Sum(nil)[:10])
}
