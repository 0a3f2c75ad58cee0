package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"PortfolioLedger/internal/ledger"
)

const GenesisHashSeed = "PortfolioLedger:genesis:v1"

// StateHasher chains the committed operations of a replay into one hash, so two
// replays of the same log can be compared by their final hash.
type StateHasher struct {
	prevHash [32]byte
	sequence int64
}

// NewStateHasher initializes with genesis hash
func NewStateHasher() *StateHasher {
	genesis := sha256.Sum256([]byte(GenesisHashSeed))
	return &StateHasher{
		prevHash: genesis,
	}
}

// ComputeHash calculates state_hash[N] = SHA-256(prev_hash || sequence || state_digest)
func (h *StateHasher) ComputeHash(sequence int64, stateDigest []byte) [32]byte {
	hasher := sha256.New()

	hasher.Write(h.prevHash[:])

	var seqBuf [8]byte
	binary.LittleEndian.PutUint64(seqBuf[:], uint64(sequence))
	hasher.Write(seqBuf[:])

	hasher.Write(stateDigest)

	var hash [32]byte
	copy(hash[:], hasher.Sum(nil))
	h.prevHash = hash
	return hash
}

// Observe extends the chain with a committed operation. It is registered as a
// book subscriber.
func (h *StateHasher) Observe(op ledger.Operation) {
	h.sequence++
	h.ComputeHash(h.sequence, OperationDigest(op))
}

// Hex is the chain tip as a hex string.
func (h *StateHasher) Hex() string {
	return hex.EncodeToString(h.prevHash[:])
}

// Sequence is the number of operations hashed.
func (h *StateHasher) Sequence() int64 { return h.sequence }

// OperationDigest serializes an operation canonically: book, index, stamp and
// every posting's account path and amount, each length-prefixed.
func OperationDigest(op ledger.Operation) []byte {
	digest := make([]byte, 0, 64+len(op.Entries)*48)
	digest = appendString(digest, op.Book)
	digest = binary.LittleEndian.AppendUint64(digest, uint64(op.Index))
	digest = appendString(digest, op.Stamp.String())
	for _, e := range op.Entries {
		digest = appendString(digest, e.Key.AccountPath())
		digest = appendString(digest, e.Amount.String())
	}
	return digest
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}
