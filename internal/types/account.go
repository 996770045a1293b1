package types

// Account is the per-address account record. CodeHash is the zero hash
// for externally-owned accounts; its presence is what makes an account a
// contract.
type Account struct {
	Address     Address
	Balance     uint64
	Nonce       uint64
	CodeHash    Hash
	StorageRoot Hash
}

// IsContract reports whether this account has deployed code.
func (a *Account) IsContract() bool { return !a.CodeHash.IsZero() }

// ContractMeta is the metadata recorded alongside a contract's namespaced
// storage.
type ContractMeta struct {
	Address   Address
	Creator   Address
	CodeHash  Hash
	CreatedAt int64
}

// UTXO pairs a reference with the output it spends/produces, used when
// listing the live UTXO set. The set is keyed by UtxoRef only; there is no
// secondary index by owner hash.
type UTXO struct {
	Ref UtxoRef
	Out TxOut
}
