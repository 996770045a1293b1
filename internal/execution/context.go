package execution

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/polytorus/polytorus/internal/types"
)

// ErrContextBusy is returned by BeginExecution when another context is
// already active; only one context may be active at a time.
var ErrContextBusy = errors.New("execution: context already active")

// ErrContextClosed is returned by CommitExecution on a context that has
// already been committed or rolled back.
var ErrContextClosed = errors.New("execution: context closed")

// Context is the scoped, rollbackable acquisition over State: writes land
// in an overlay until CommitExecution merges them into the owning State,
// or RollbackExecution discards them untouched.
type Context struct {
	ID string

	base   *State
	engine *Engine
	closed bool

	pendingAccounts   map[types.Address]*types.Account
	pendingUTXOPuts   map[types.UtxoRef]*types.UTXO
	pendingUTXOSpends map[types.UtxoRef]struct{}
	pendingContracts  map[types.Address]types.ContractMeta
	pendingStorage    map[types.Address]map[string][]byte

	gasUsed uint64
	events  []Event
}

// Engine serializes Context acquisition: only one Context may be active at
// a time, a single global exclusive region.
type Engine struct {
	mu     sync.Mutex
	active bool
	state  *State
}

// NewEngine constructs an Engine owning state.
func NewEngine(state *State) *Engine {
	return &Engine{state: state}
}

// State returns the Engine's current durable state, for read-only queries
// (account balances, contract lookups) outside of an active context.
func (e *Engine) State() *State { return e.state }

// BeginExecution acquires the single execution context. Callers must end it
// with CommitExecution or RollbackExecution before another BeginExecution
// can proceed.
func (e *Engine) BeginExecution() (*Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active {
		return nil, ErrContextBusy
	}
	e.active = true
	return &Context{
		ID:                uuid.New().String(),
		base:              e.state,
		engine:            e,
		pendingAccounts:   make(map[types.Address]*types.Account),
		pendingUTXOPuts:   make(map[types.UtxoRef]*types.UTXO),
		pendingUTXOSpends: make(map[types.UtxoRef]struct{}),
		pendingContracts:  make(map[types.Address]types.ContractMeta),
		pendingStorage:    make(map[types.Address]map[string][]byte),
	}, nil
}

// Account reads the pending overlay, falling back to the base state.
func (c *Context) Account(addr types.Address) types.Account {
	if a, ok := c.pendingAccounts[addr]; ok {
		return *a
	}
	return c.base.Account(addr)
}

// SetAccount stages an account write in the pending overlay.
func (c *Context) SetAccount(a types.Account) {
	cp := a
	c.pendingAccounts[a.Address] = &cp
}

// UTXOByRef reads the pending overlay (spends then puts), falling back to
// the base state.
func (c *Context) UTXOByRef(ref types.UtxoRef) (types.UTXO, bool) {
	if _, spent := c.pendingUTXOSpends[ref]; spent {
		return types.UTXO{}, false
	}
	if u, ok := c.pendingUTXOPuts[ref]; ok {
		return *u, true
	}
	return c.base.UTXOByRef(ref)
}

// PutUTXO stages a new unspent output.
func (c *Context) PutUTXO(u types.UTXO) {
	cp := u
	c.pendingUTXOPuts[u.Ref] = &cp
	delete(c.pendingUTXOSpends, u.Ref)
}

// SpendUTXO stages the consumption of an existing output.
func (c *Context) SpendUTXO(ref types.UtxoRef) {
	delete(c.pendingUTXOPuts, ref)
	c.pendingUTXOSpends[ref] = struct{}{}
}

// ContractMeta reads the pending overlay, falling back to the base state.
func (c *Context) ContractMeta(addr types.Address) (types.ContractMeta, bool) {
	if m, ok := c.pendingContracts[addr]; ok {
		return m, true
	}
	return c.base.ContractMeta(addr)
}

// SetContractMeta stages contract deployment metadata.
func (c *Context) SetContractMeta(m types.ContractMeta) {
	c.pendingContracts[m.Address] = m
}

// ContractStorageGet reads the pending overlay, falling back to the base
// state.
func (c *Context) ContractStorageGet(addr types.Address, key []byte) ([]byte, bool) {
	if space, ok := c.pendingStorage[addr]; ok {
		if v, ok := space[string(key)]; ok {
			return v, true
		}
	}
	return c.base.ContractStorageGet(addr, key)
}

// ContractStoragePut stages a contract key/value write.
func (c *Context) ContractStoragePut(addr types.Address, key, value []byte) {
	space, ok := c.pendingStorage[addr]
	if !ok {
		space = make(map[string][]byte)
		c.pendingStorage[addr] = space
	}
	space[string(key)] = value
}

// emitEvent records a contract-originated event against this context.
func (c *Context) emitEvent(ev Event) { c.events = append(c.events, ev) }

// Events returns the events accumulated so far in this context.
func (c *Context) Events() []Event { return append([]Event(nil), c.events...) }

// GasUsed returns the cumulative gas charged across this context's
// transactions.
func (c *Context) GasUsed() uint64 { return c.gasUsed }

// Per-transaction rollback needs a failing transaction's changes reverted
// without aborting the batch. Map length cannot simply be truncated back
// (map iteration order is unspecified), so instead this snapshots and
// restores the overlay maps wholesale. This trades memory for correctness
// and is acceptable at per-transaction granularity.
type overlaySnapshot struct {
	accounts   map[types.Address]*types.Account
	utxoPuts   map[types.UtxoRef]*types.UTXO
	spends     map[types.UtxoRef]struct{}
	contracts  map[types.Address]types.ContractMeta
	storage    map[types.Address]map[string][]byte
	eventCount int
	gasUsed    uint64
}

func (c *Context) snapshot() overlaySnapshot {
	storage := make(map[types.Address]map[string][]byte, len(c.pendingStorage))
	for addr, space := range c.pendingStorage {
		cp := make(map[string][]byte, len(space))
		for k, v := range space {
			cp[k] = v
		}
		storage[addr] = cp
	}
	return overlaySnapshot{
		accounts:   copyAccounts(c.pendingAccounts),
		utxoPuts:   copyUTXOPuts(c.pendingUTXOPuts),
		spends:     copySpends(c.pendingUTXOSpends),
		contracts:  copyContracts(c.pendingContracts),
		storage:    storage,
		eventCount: len(c.events),
		gasUsed:    c.gasUsed,
	}
}

func (c *Context) restore(snap overlaySnapshot) {
	c.pendingAccounts = snap.accounts
	c.pendingUTXOPuts = snap.utxoPuts
	c.pendingUTXOSpends = snap.spends
	c.pendingContracts = snap.contracts
	c.pendingStorage = snap.storage
	c.events = c.events[:snap.eventCount]
	c.gasUsed = snap.gasUsed
}

func copyAccounts(m map[types.Address]*types.Account) map[types.Address]*types.Account {
	cp := make(map[types.Address]*types.Account, len(m))
	for k, v := range m {
		a := *v
		cp[k] = &a
	}
	return cp
}

func copyUTXOPuts(m map[types.UtxoRef]*types.UTXO) map[types.UtxoRef]*types.UTXO {
	cp := make(map[types.UtxoRef]*types.UTXO, len(m))
	for k, v := range m {
		u := *v
		cp[k] = &u
	}
	return cp
}

func copySpends(m map[types.UtxoRef]struct{}) map[types.UtxoRef]struct{} {
	cp := make(map[types.UtxoRef]struct{}, len(m))
	for k := range m {
		cp[k] = struct{}{}
	}
	return cp
}

func copyContracts(m map[types.Address]types.ContractMeta) map[types.Address]types.ContractMeta {
	cp := make(map[types.Address]types.ContractMeta, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}

// CommitExecution applies all pending changes to the base State and
// returns the resulting state root.
func (c *Context) CommitExecution() (types.Hash, error) {
	if c.closed {
		return types.Hash{}, ErrContextClosed
	}
	for _, a := range c.pendingAccounts {
		c.base.putAccount(*a)
	}
	for ref := range c.pendingUTXOSpends {
		c.base.spendUTXO(ref)
	}
	for _, u := range c.pendingUTXOPuts {
		c.base.putUTXO(*u)
	}
	for _, m := range c.pendingContracts {
		c.base.putContractMeta(m)
	}
	for addr, space := range c.pendingStorage {
		for k, v := range space {
			c.base.putContractStorage(addr, []byte(k), v)
		}
	}
	c.closed = true
	c.engine.mu.Lock()
	c.engine.active = false
	c.engine.mu.Unlock()
	return c.base.StateRoot(), nil
}

// RollbackExecution discards all pending changes; the base State is
// untouched.
func (c *Context) RollbackExecution() {
	if c.closed {
		return
	}
	c.closed = true
	c.engine.mu.Lock()
	c.engine.active = false
	c.engine.mu.Unlock()
}
