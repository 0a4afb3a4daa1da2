package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	nonceBytes = 32

	challengePrefix = "Welcome to the Blue Carbon Registry! Please sign this message to continue. Nonce: "
)

// NewChallenge generates a fresh sign-in challenge. It returns the full
// human-readable message presented to the wallet and the embedded nonce.
// The only failure mode is the randomness source.
func NewChallenge() (message, nonce string, err error) {
	buf := make([]byte, nonceBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("crypto/rand failed: %w", err)
	}
	nonce = hex.EncodeToString(buf)
	return challengePrefix + nonce, nonce, nil
}

// NonceFromMessage extracts the nonce from a challenge message. It returns
// false when the message does not match the challenge template, so a signed
// arbitrary string can never pass as a challenge.
func NonceFromMessage(message string) (string, bool) {
	if !strings.HasPrefix(message, challengePrefix) {
		return "", false
	}
	nonce := message[len(challengePrefix):]
	if len(nonce) != nonceBytes*2 {
		return "", false
	}
	if _, err := hex.DecodeString(nonce); err != nil {
		return "", false
	}
	return nonce, true
}
