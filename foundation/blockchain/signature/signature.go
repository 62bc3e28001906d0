// Package signature provides helper functions for handling the blockchain
// content hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros. It marks an absent hash such as
// the previous block hash of a genesis block.
var ZeroHash common.Hash

// ardanID is an arbitrary number for signing messages. This will make it
// clear that the signature comes from the Ardan blockchain.
// Ethereum and Bitcoin do this as well, but they use the value of 27.
const ardanID = 29

// =============================================================================

// Hash returns a unique content hash for the value. The value is marshaled
// to JSON so the same data always produces the same hash.
func Hash(value any) common.Hash {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	return sha256.Sum256(data)
}

// Sign uses the specified private key to sign the payload. The signature is
// returned in the 65 byte [R|S|V] format with the ardanID added to V.
func Sign(payload []byte, privateKey *ecdsa.PrivateKey) ([]byte, error) {

	// Prepare the data for signing.
	data := stamp(payload)

	// Sign the hash with the private key to produce a signature.
	sig, err := crypto.Sign(data, privateKey)
	if err != nil {
		return nil, err
	}

	// Extract the public key from the data and the signature.
	publicKey, err := crypto.SigToPub(data, sig)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	rs := sig[:crypto.RecoveryIDOffset]
	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), data, rs) {
		return nil, errors.New("invalid signature")
	}

	sig[crypto.RecoveryIDOffset] += ardanID

	return sig, nil
}

// FromAddress extracts the address for the account that signed the payload.
func FromAddress(payload []byte, sig []byte) (common.Address, error) {

	// NOTE: If the same exact payload for the given signature is not provided
	// we will get the wrong from address. There is no way to detect this here
	// since the public key is being extracted from the payload and signature.

	if len(sig) != crypto.SignatureLength {
		return common.Address{}, errors.New("invalid signature length")
	}

	// Check the recovery id is either 0 or 1.
	v := sig[crypto.RecoveryIDOffset] - ardanID
	if v != 0 && v != 1 {
		return common.Address{}, errors.New("invalid recovery id")
	}

	// Check the signature values are valid.
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, s, false) {
		return common.Address{}, errors.New("invalid signature values")
	}

	// Remove the ardanID so go-ethereum can recover the public key.
	raw := make([]byte, crypto.SignatureLength)
	copy(raw, sig)
	raw[crypto.RecoveryIDOffset] = v

	publicKey, err := crypto.SigToPub(stamp(payload), raw)
	if err != nil {
		return common.Address{}, err
	}

	return crypto.PubkeyToAddress(*publicKey), nil
}

// Verify reports whether the signature over the payload was produced by the
// private key behind the specified hex encoded address.
func Verify(address string, payload []byte, sig []byte) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	from, err := FromAddress(payload, sig)
	if err != nil {
		return false
	}

	return from == common.HexToAddress(address)
}

// SignatureString returns the signature as a string.
func SignatureString(sig []byte) string {
	return hexutil.Encode(sig)
}

// =============================================================================

// stamp returns a hash of 32 bytes that represents this payload with
// the Ardan stamp embedded into the final hash.
func stamp(payload []byte) []byte {

	// Hash the payload into a 32 byte array. This will provide
	// a data length consistency with all data.
	txHash := crypto.Keccak256(payload)

	// Convert the stamp into a slice of bytes. This stamp is
	// used so signatures we produce when signing data
	// are always unique to the Ardan blockchain.
	stamp := []byte("\x19Ardan Signed Message:\n32")

	// Hash the stamp and txHash together in a final 32 byte array
	// that represents the data.
	return crypto.Keccak256(stamp, txHash)
}
