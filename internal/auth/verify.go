package auth

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// VerifyPersonalSignature reports whether signature was produced over
// message by the private key controlling address, using the EIP-191
// personal-message scheme. Malformed input of any kind is a verification
// failure, never an error.
func VerifyPersonalSignature(address, message, signature string) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return false
	}

	// Wallets return V as 27/28; crypto.SigToPub wants 0/1.
	sig = append([]byte(nil), sig...)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return false
	}

	pubKey, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return false
	}

	return crypto.PubkeyToAddress(*pubKey) == common.HexToAddress(address)
}
