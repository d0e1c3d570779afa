package identity

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/jmerrifield20/socialmedia/internal/social"
)

// ErrInvalidAddress is returned for strings that are not 20-byte hex addresses.
var ErrInvalidAddress = errors.New("invalid address")

// ParseAddress validates s and returns it in EIP-55 checksum form, so two
// spellings of one account map to the same ledger identity.
func ParseAddress(s string) (social.Identity, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return social.Identity(common.HexToAddress(s).Hex()), nil
}

// AddressFromKey returns the identity controlled by key.
func AddressFromKey(key *ecdsa.PrivateKey) social.Identity {
	return social.Identity(crypto.PubkeyToAddress(key.PublicKey).Hex())
}
