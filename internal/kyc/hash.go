package kyc

import (
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

// DataHash commits to a KYC document the way the request's data field expects: keccak256 of the
// raw bytes. A nil document hashes to the zero hash, which the contract accepts as "no document".
func DataHash(doc []byte) common.Hash {
	if doc == nil {
		return common.Hash{}
	}
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(doc)
	var out common.Hash
	h.Sum(out[:0])
	return out
}
