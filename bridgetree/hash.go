package bridgetree

import (
	"bytes"
	"encoding/binary"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/iden3/go-iden3-crypto/keccak256"
	"golang.org/x/crypto/sha3"
)

// KeyLen is the length of keys and values in the merkle tree
const KeyLen = 32

// HashZero is an empty hash
var HashZero = common.Hash{}

// pairHash hashes two sibling nodes in canonical order. The pair is sorted
// before hashing so that proof generation and on-ledger verification agree
// regardless of which side a sibling sits on.
func pairHash(a, b common.Hash) common.Hash {
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	var res common.Hash
	h := sha3.NewLegacyKeccak256()
	h.Write(a[:]) //nolint:errcheck,gosec
	h.Write(b[:]) //nolint:errcheck,gosec
	copy(res[:], h.Sum(nil))
	return res
}

// LeafHash computes the leaf for one lock as a fixed-width, delimiter-free
// encoding of (assetID, recipient, lockHash, blockNumber). The recipient, not
// the source owner, is the binding identity: the destination vault only
// authorizes delivery to the recipient.
func LeafHash(assetID *big.Int, recipient common.Address, lockHash common.Hash, blockNumber uint64) common.Hash {
	var asset [KeyLen]byte
	assetID.FillBytes(asset[:])
	blockNum := make([]byte, 8) //nolint:gomnd
	binary.BigEndian.PutUint64(blockNum, blockNumber)

	var res common.Hash
	copy(res[:], keccak256.Hash(asset[:], recipient[:], lockHash[:], blockNum))
	return res
}

// LockHash derives the deterministic commitment hash of one lock. It is a
// function of the lock transaction contents and the vault identity only,
// never of time, so it is reproducible from the lock transaction alone.
// batchIndex salts each entry of a batch lock so hashes stay unique when
// several assets lock in one call.
func LockHash(assetID *big.Int, sourceOwner, recipient common.Address, blockNumber uint64, vault common.Address, batchIndex uint32) common.Hash {
	var asset [KeyLen]byte
	assetID.FillBytes(asset[:])
	blockNum := make([]byte, 8) //nolint:gomnd
	binary.BigEndian.PutUint64(blockNum, blockNumber)
	index := make([]byte, 4) //nolint:gomnd
	binary.BigEndian.PutUint32(index, batchIndex)

	var res common.Hash
	copy(res[:], keccak256.Hash(asset[:], sourceOwner[:], recipient[:], blockNum, vault[:], index))
	return res
}
