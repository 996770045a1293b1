package types

// TxKind discriminates the transaction variant: the three-case account
// form plus the eUTXO form.
type TxKind uint8

const (
	TxTransfer TxKind = iota
	TxContractDeploy
	TxContractCall
	TxUTXO
)

func (k TxKind) String() string {
	switch k {
	case TxTransfer:
		return "Transfer"
	case TxContractDeploy:
		return "ContractDeploy"
	case TxContractCall:
		return "ContractCall"
	case TxUTXO:
		return "UTXO"
	default:
		return "Unknown"
	}
}

// UtxoRef identifies a UTXO by the transaction that produced it and the
// output index within that transaction.
type UtxoRef struct {
	TxHash      Hash
	OutputIndex uint32
}

// TxOut is a single UTXO output.
type TxOut struct {
	Value     uint64
	OwnerHash Hash
	Datum     []byte // optional, nil when absent
}

// Transaction is the tagged union of every transaction kind. Exactly the
// fields for Kind are meaningful; the rest are zero. The transaction hash
// commits to every field except Signature/Witness.
type Transaction struct {
	Kind TxKind

	// Transfer
	From   Address
	To     Address
	Amount uint64
	Nonce  uint64

	// ContractDeploy
	Deployer        Address
	Code            []byte
	ConstructorArgs []byte

	// ContractCall
	Caller   Address
	Contract Address
	Function string
	Args     []byte
	Value    uint64

	// Shared account-tx fields
	GasLimit uint64
	GasPrice uint64

	// eUTXO
	Inputs  []UtxoRef
	Outputs []TxOut

	// Authorization — excluded from the transaction hash.
	Signature []byte
	Witness   []byte
}

// Hash computes the transaction's content hash via the supplied hasher,
// committing to every field except Signature/Witness. Callers own the
// hasher (internal/hashsig.Hash) so this package stays dependency-free.
func (t *Transaction) Hash(hashFn func([]byte) Hash) Hash {
	return hashFn(t.signingBytes())
}

// SigningBytes exposes the canonical pre-image signatures are computed
// over, for collaborators (internal/execution) that verify signatures
// against something other than the transaction's own content hash.
func (t *Transaction) SigningBytes() []byte {
	return t.signingBytes()
}

// signingBytes produces a deterministic encoding of every hashed field.
// A fixed field order and length-prefixed variable sections keep the
// encoding injective across variants.
func (t *Transaction) signingBytes() []byte {
	buf := newEncoder()
	buf.u8(uint8(t.Kind))
	buf.addr(t.From)
	buf.addr(t.To)
	buf.u64(t.Amount)
	buf.u64(t.Nonce)
	buf.addr(t.Deployer)
	buf.bytes(t.Code)
	buf.bytes(t.ConstructorArgs)
	buf.addr(t.Caller)
	buf.addr(t.Contract)
	buf.str(t.Function)
	buf.bytes(t.Args)
	buf.u64(t.Value)
	buf.u64(t.GasLimit)
	buf.u64(t.GasPrice)
	buf.u32(uint32(len(t.Inputs)))
	for _, in := range t.Inputs {
		buf.hash(in.TxHash)
		buf.u32(in.OutputIndex)
	}
	buf.u32(uint32(len(t.Outputs)))
	for _, out := range t.Outputs {
		buf.u64(out.Value)
		buf.hash(out.OwnerHash)
		buf.bytes(out.Datum)
	}
	return buf.bytes_
}
