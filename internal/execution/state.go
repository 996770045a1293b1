// Package execution implements the Execution layer: it exclusively owns
// account, UTXO and contract storage, applies ordered transaction batches
// against that state inside rollbackable contexts, and runs WASM contracts
// under a gas meter.
package execution

import (
	"sort"
	"sync"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// State is the Execution layer's exclusively-owned dual account/UTXO model
// plus contract metadata and per-contract key/value storage: no other
// layer reaches into this struct.
type State struct {
	mu sync.RWMutex

	accounts map[types.Address]*types.Account
	utxos    map[types.UtxoRef]*types.UTXO
	contracts map[types.Address]types.ContractMeta
	cstorage map[types.Address]map[string][]byte
}

// NewState constructs an empty State — the genesis starting point.
func NewState() *State {
	return &State{
		accounts:  make(map[types.Address]*types.Account),
		utxos:     make(map[types.UtxoRef]*types.UTXO),
		contracts: make(map[types.Address]types.ContractMeta),
		cstorage:  make(map[types.Address]map[string][]byte),
	}
}

// Account returns a copy of the account at addr, or the zero-value account
// if it doesn't yet exist (first-touch convention).
func (s *State) Account(addr types.Address) types.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[addr]; ok {
		return *a
	}
	return types.Account{Address: addr}
}

func (s *State) putAccount(a types.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := a
	s.accounts[a.Address] = &cp
}

// UTXOByRef looks up an unspent output.
func (s *State) UTXOByRef(ref types.UtxoRef) (types.UTXO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.utxos[ref]
	if !ok {
		return types.UTXO{}, false
	}
	return *u, true
}

func (s *State) putUTXO(u types.UTXO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := u
	s.utxos[u.Ref] = &cp
}

func (s *State) spendUTXO(ref types.UtxoRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.utxos, ref)
}

// ContractMeta returns a contract's metadata, if deployed.
func (s *State) ContractMeta(addr types.Address) (types.ContractMeta, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.contracts[addr]
	return m, ok
}

func (s *State) putContractMeta(m types.ContractMeta) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contracts[m.Address] = m
}

// ContractStorageGet reads a single key from a contract's key/value space.
func (s *State) ContractStorageGet(addr types.Address, key []byte) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	space, ok := s.cstorage[addr]
	if !ok {
		return nil, false
	}
	v, ok := space[string(key)]
	return v, ok
}

func (s *State) putContractStorage(addr types.Address, key, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	space, ok := s.cstorage[addr]
	if !ok {
		space = make(map[string][]byte)
		s.cstorage[addr] = space
	}
	space[string(key)] = value
}

// accountRoot, utxoRoot and contractRoot each fold their (key, value) pairs
// in key-sorted order into a single hash: a deterministic commitment, not
// a queryable Merkle tree, since only reproducibility across two identical
// executions is required, not that individual leaves carry inclusion
// proofs.
func (s *State) accountRoot() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]types.Address, 0, len(s.accounts))
	for a := range s.accounts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return less20(addrs[i], addrs[j]) })

	acc := hashsig.Hash([]byte("account-root"))
	for _, a := range addrs {
		acct := s.accounts[a]
		acc = hashsig.HashPair(acc, hashsig.Hash(encodeAccount(acct)))
	}
	return acc
}

func (s *State) utxoRoot() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	refs := make([]types.UtxoRef, 0, len(s.utxos))
	for r := range s.utxos {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].TxHash != refs[j].TxHash {
			return refs[i].TxHash.Less(refs[j].TxHash)
		}
		return refs[i].OutputIndex < refs[j].OutputIndex
	})

	acc := hashsig.Hash([]byte("utxo-root"))
	for _, r := range refs {
		u := s.utxos[r]
		acc = hashsig.HashPair(acc, hashsig.Hash(encodeUTXO(u)))
	}
	return acc
}

func (s *State) contractRoot() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	addrs := make([]types.Address, 0, len(s.contracts))
	for a := range s.contracts {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool { return less20(addrs[i], addrs[j]) })

	acc := hashsig.Hash([]byte("contract-root"))
	for _, a := range addrs {
		m := s.contracts[a]
		keys := make([]string, 0, len(s.cstorage[a]))
		for k := range s.cstorage[a] {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		leaf := hashsig.Hash(encodeContractMeta(m))
		for _, k := range keys {
			leaf = hashsig.HashPair(leaf, hashsig.Hash(append([]byte(k), s.cstorage[a][k]...)))
		}
		acc = hashsig.HashPair(acc, leaf)
	}
	return acc
}

// StateRoot combines the three sub-roots:
// state_root = hash(account_root || utxo_root || contract_root).
func (s *State) StateRoot() types.Hash {
	ar, ur, cr := s.accountRoot(), s.utxoRoot(), s.contractRoot()
	buf := make([]byte, 0, 96)
	buf = append(buf, ar.Bytes()...)
	buf = append(buf, ur.Bytes()...)
	buf = append(buf, cr.Bytes()...)
	return hashsig.Hash(buf)
}

func less20(a, b types.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func encodeAccount(a *types.Account) []byte {
	buf := make([]byte, 0, 20+8+8+32+32)
	buf = append(buf, a.Address[:]...)
	buf = appendU64(buf, a.Balance)
	buf = appendU64(buf, a.Nonce)
	buf = append(buf, a.CodeHash.Bytes()...)
	buf = append(buf, a.StorageRoot.Bytes()...)
	return buf
}

func encodeUTXO(u *types.UTXO) []byte {
	buf := make([]byte, 0, 32+4+8+32)
	buf = append(buf, u.Ref.TxHash.Bytes()...)
	buf = appendU32(buf, u.Ref.OutputIndex)
	buf = appendU64(buf, u.Out.Value)
	buf = append(buf, u.Out.OwnerHash.Bytes()...)
	buf = append(buf, u.Out.Datum...)
	return buf
}

func encodeContractMeta(m types.ContractMeta) []byte {
	buf := make([]byte, 0, 20+20+32+8)
	buf = append(buf, m.Address[:]...)
	buf = append(buf, m.Creator[:]...)
	buf = append(buf, m.CodeHash.Bytes()...)
	buf = appendU64(buf, uint64(m.CreatedAt))
	return buf
}

func appendU64(b []byte, v uint64) []byte {
	return append(b, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32), byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}
