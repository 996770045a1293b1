package consensus

import (
	"math/big"
	"sync"

	"github.com/polytorus/polytorus/internal/types"
)

// EventKind names a Consensus notification.
type EventKind uint8

const (
	EventReorgStarted EventKind = iota
	EventReorgCompleted
	EventPeerMisbehavior
)

// Event is emitted on chain-state transitions consensus.Chain cares about.
type Event struct {
	Kind    EventKind
	OldTip  types.Hash
	NewTip  types.Hash
	Depth   int
	PeerID  types.PeerID
	Reason  string
}

// workForDifficulty is the fixed per-block work contribution used for cumulative
// work comparisons: 2^difficulty, matching PoW's standard "expected hashes
// to find a valid nonce" measure.
func workForDifficulty(difficulty uint32) *big.Int {
	return new(big.Int).Lsh(big.NewInt(1), uint(difficulty))
}

// chainEntry is one block's bookkeeping in the index.
type chainEntry struct {
	header        types.Header
	hash          types.Hash
	cumulativeWork *big.Int
}

// Chain is the exclusively-owned canonical chain index and difficulty
// state.
type Chain struct {
	mu sync.RWMutex

	byHash   map[types.Hash]*chainEntry
	tipHash  types.Hash
	genesis  types.Hash

	subsMu sync.Mutex
	subs   []chan Event
}

// NewChain constructs a Chain rooted at genesis.
func NewChain(genesis types.Header) *Chain {
	h := HeaderHash(&genesis)
	c := &Chain{
		byHash:  make(map[types.Hash]*chainEntry),
		tipHash: h,
		genesis: h,
	}
	c.byHash[h] = &chainEntry{header: genesis, hash: h, cumulativeWork: workForDifficulty(genesis.Difficulty)}
	return c
}

// Subscribe returns a channel of future chain events.
func (c *Chain) Subscribe() <-chan Event {
	ch := make(chan Event, 32)
	c.subsMu.Lock()
	c.subs = append(c.subs, ch)
	c.subsMu.Unlock()
	return ch
}

func (c *Chain) emit(ev Event) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		ch <- ev
	}
}

// Tip returns the current canonical tip header and its hash.
func (c *Chain) Tip() (types.Header, types.Hash) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e := c.byHash[c.tipHash]
	return e.header, e.hash
}

// HeaderByHash looks up a known header, canonical or not.
func (c *Chain) HeaderByHash(h types.Hash) (types.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.byHash[h]
	if !ok {
		return types.Header{}, false
	}
	return e.header, true
}

// AcceptBlock indexes a validated block header, reselecting the canonical
// tip by cumulative work (ties broken toward the smaller block hash). It
// returns whether this caused a reorg and, if so, the common-ancestor
// depth. Re-submitting a hash already in the index fails with
// ErrDuplicateBlock and leaves the chain state unchanged.
func (c *Chain) AcceptBlock(header types.Header) (reorged bool, depth int, err error) {
	h := HeaderHash(&header)

	c.mu.Lock()
	if _, known := c.byHash[h]; known {
		c.mu.Unlock()
		return false, 0, ErrDuplicateBlock
	}
	parent, ok := c.byHash[header.PrevHash]
	var work *big.Int
	if ok {
		work = new(big.Int).Add(parent.cumulativeWork, workForDifficulty(header.Difficulty))
	} else {
		work = workForDifficulty(header.Difficulty)
	}
	c.byHash[h] = &chainEntry{header: header, hash: h, cumulativeWork: work}

	current := c.byHash[c.tipHash]
	better := work.Cmp(current.cumulativeWork) > 0 ||
		(work.Cmp(current.cumulativeWork) == 0 && h.Less(current.hash))

	oldTip := c.tipHash
	if better {
		c.tipHash = h
	}
	c.mu.Unlock()

	if !better || header.PrevHash == oldTip {
		return false, 0, nil
	}
	d := c.commonAncestorDepth(oldTip, h)
	c.emit(Event{Kind: EventReorgStarted, OldTip: oldTip, NewTip: h})
	c.emit(Event{Kind: EventReorgCompleted, OldTip: oldTip, NewTip: h, Depth: d})
	return true, d, nil
}

// commonAncestorDepth walks both branches back to their common ancestor
// and returns how many blocks were abandoned from oldTip's branch.
func (c *Chain) commonAncestorDepth(oldTip, newTip types.Hash) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[types.Hash]int)
	depth := 0
	for cur := oldTip; ; {
		seen[cur] = depth
		e, ok := c.byHash[cur]
		if !ok || cur == c.genesis {
			break
		}
		cur = e.header.PrevHash
		depth++
	}
	for cur := newTip; ; {
		if d, ok := seen[cur]; ok {
			return d
		}
		e, ok := c.byHash[cur]
		if !ok || cur == c.genesis {
			return depth
		}
		cur = e.header.PrevHash
	}
}

// ReportMisbehavior records a PeerMisbehavior event, leaving the response
// (ban, disconnect, score) to the external networking collaborator.
func (c *Chain) ReportMisbehavior(peer types.PeerID, reason string) {
	c.emit(Event{Kind: EventPeerMisbehavior, PeerID: peer, Reason: reason})
}
