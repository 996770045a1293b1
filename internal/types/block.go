package types

// Header is a block header; hash(header) is the value proof-of-work is
// performed over, and it commits to the transaction and state roots.
type Header struct {
	PrevHash   Hash
	MerkleRoot Hash
	Timestamp  int64 // unix millis
	Nonce      uint64
	Height     uint64
	Difficulty uint32 // required leading zero bits
	StateRoot  Hash
}

// Block is a header plus its ordered transaction list.
type Block struct {
	Header       Header
	Transactions []Transaction
}

// SerializeForPoW encodes every header field except Nonce, matching the
// teacher's BlockHeader.SerializeWithoutNonce pattern: the miner appends a
// candidate nonce to this prefix and hashes the result.
func (h *Header) SerializeForPoW() []byte {
	e := newEncoder()
	e.hash(h.PrevHash)
	e.hash(h.MerkleRoot)
	e.u64(uint64(h.Timestamp))
	e.u64(h.Height)
	e.u32(h.Difficulty)
	e.hash(h.StateRoot)
	return e.bytes_
}

// SerializeFull encodes every header field including Nonce — the pre-image
// that must satisfy the difficulty target once mined.
func (h *Header) SerializeFull() []byte {
	e := newEncoder()
	e.bytes_ = append(e.bytes_, h.SerializeForPoW()...)
	e.u64(h.Nonce)
	return e.bytes_
}
