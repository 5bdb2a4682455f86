package account

import (
	"crypto/subtle"
	"fmt"
	"strings"
)

// CredentialLength is the number of arrow-key entries in a credential.
const CredentialLength = 6

// Credential is the fixed-vocabulary secret guarding an account: a
// sequence of six arrow keys. It cannot be changed once created; the only
// operation it supports is an equality check.
type Credential struct {
	codes [CredentialLength]byte
}

var keyCodes = map[string]byte{
	"left":  1,
	"right": 2,
	"up":    3,
	"down":  4,
}

// ParseCredential parses a dash-separated sequence of six arrow keys,
// e.g. "left-right-up-down-left-right".
func ParseCredential(text string) (Credential, error) {
	parts := strings.Split(text, "-")
	if len(parts) != CredentialLength {
		return Credential{}, fmt.Errorf("%w: credential must have %d entries", ErrInvalidArgument, CredentialLength)
	}

	var c Credential
	for i, part := range parts {
		code, ok := keyCodes[part]
		if !ok {
			return Credential{}, fmt.Errorf("%w: %q is not a valid credential entry", ErrInvalidArgument, part)
		}
		c.codes[i] = code
	}
	return c, nil
}

// Equal reports whether two credentials match, in constant time.
func (c Credential) Equal(other Credential) bool {
	return subtle.ConstantTimeCompare(c.codes[:], other.codes[:]) == 1
}
