package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

var (
	// ErrBadSignature is returned when a login signature does not recover to
	// the claimed address.
	ErrBadSignature = errors.New("signature does not match address")
	// ErrLoginExpired is returned when a login message is outside the
	// accepted clock window.
	ErrLoginExpired = errors.New("login message expired")
)

// LoginMessage is the text a wallet signs to open a session. The issue time
// is part of the message so a captured signature stops working after the
// login window.
func LoginMessage(address social.Identity, issuedAt time.Time) string {
	return fmt.Sprintf("Sign in to SocialMedia\n\nAddress: %s\nIssued At: %s",
		address, issuedAt.UTC().Format(time.RFC3339))
}

// SignLogin signs msg as an EIP-191 personal message. The result is the
// 65-byte [R || S || V] form with V in {27, 28}, as wallets produce it.
func SignLogin(key *ecdsa.PrivateKey, msg string) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(msg)), key)
	if err != nil {
		return nil, fmt.Errorf("sign login: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// VerifyLogin checks that sig is address's signature over msg.
// Both V conventions (0/1 and 27/28) are accepted.
func VerifyLogin(address social.Identity, msg string, sig []byte) error {
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature must be %d bytes", ErrBadSignature, crypto.SignatureLength)
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(msg)), s)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	got := social.Identity(crypto.PubkeyToAddress(*pub).Hex())
	if got != address {
		return ErrBadSignature
	}
	return nil
}

// CheckIssuedAt rejects login messages issued more than window away from now
// in either direction.
func CheckIssuedAt(issuedAt, now time.Time, window time.Duration) error {
	d := now.Sub(issuedAt)
	if d < 0 {
		d = -d
	}
	if d > window {
		return fmt.Errorf("%w: issued %s, now %s", ErrLoginExpired,
			issuedAt.UTC().Format(time.RFC3339), now.UTC().Format(time.RFC3339))
	}
	return nil
}
