package da

import (
	"bytes"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/polytorus/polytorus/internal/storage"
	"github.com/polytorus/polytorus/internal/types"
)

// DefaultChunkSize is the default Merkle leaf granularity.
const DefaultChunkSize = 4096

// MaxBlockSize bounds store_block_data's input, rejecting oversized
// payloads as InvalidData.
const MaxBlockSize = 32 * 1024 * 1024

func blockKey(h types.Hash) []byte { return append([]byte("da:block:"), h[:]...) }

// availability tracks the replica set backing one block's data.
type availability struct {
	peers map[types.PeerID]struct{}
	root  types.Hash
	size  int
}

// Layer is the Data Availability collaborator: it owns block-payload
// storage and Merkle commitments exclusively, with a CDN-style
// pin/retrieve/replicate flow and peer fan-out bookkeeping for
// replication. No other layer writes block data directly.
type Layer struct {
	store     storage.Store
	chunkSize int
	log       *zap.SugaredLogger

	mu   sync.RWMutex
	repl map[types.Hash]*availability

	subsMu sync.Mutex
	subs   []chan Event
}

// New constructs a Layer backed by store. A nil logger falls back to a
// no-op zap logger.
func New(store storage.Store, logger *zap.Logger) *Layer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Layer{
		store:     store,
		chunkSize: DefaultChunkSize,
		log:       logger.Sugar(),
		repl:      make(map[types.Hash]*availability),
	}
}

// Subscribe returns a channel receiving every Event this layer emits from
// here on. The channel is buffered; a slow subscriber drops no events but
// may delay the emitting call if its buffer fills.
func (l *Layer) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	l.subsMu.Lock()
	l.subs = append(l.subs, ch)
	l.subsMu.Unlock()
	return ch
}

func (l *Layer) emit(ev Event) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()
	for _, ch := range l.subs {
		ch <- ev
	}
}

// StoreBlockData persists data under blockHash, computing and returning its
// Merkle root. Re-storing the same hash with the same bytes is a no-op that
// returns the already-computed root; re-storing it with different bytes is
// rejected with ErrImmutable. Block data is content-addressed and
// immutable once stored.
func (l *Layer) StoreBlockData(blockHash types.Hash, data []byte) (types.Hash, error) {
	if len(data) == 0 || len(data) > MaxBlockSize {
		l.log.Warnw("rejected block data", "block", blockHash.String(), "size", len(data))
		return types.Hash{}, ErrInvalidData
	}

	if existing, err := l.store.Get(blockKey(blockHash)); err == nil {
		if !bytes.Equal(existing, data) {
			l.log.Warnw("rejected conflicting re-store", "block", blockHash.String())
			return types.Hash{}, ErrImmutable
		}
		l.mu.RLock()
		av, ok := l.repl[blockHash]
		l.mu.RUnlock()
		if ok {
			return av.root, nil
		}
	}

	root, err := ComputeMerkleRoot(data, l.chunkSize)
	if err != nil {
		return types.Hash{}, err
	}

	if _, err := l.store.PutBlob(data); err != nil {
		l.log.Errorw("blob put failed", "block", blockHash.String(), "err", err)
		return types.Hash{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if err := l.store.Put(blockKey(blockHash), data); err != nil {
		l.log.Errorw("index put failed", "block", blockHash.String(), "err", err)
		return types.Hash{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}

	l.mu.Lock()
	l.repl[blockHash] = &availability{peers: make(map[types.PeerID]struct{}), root: root, size: len(data)}
	l.mu.Unlock()

	l.log.Infow("block data stored", "block", blockHash.String(), "root", root.String(), "size", len(data))
	l.emit(Event{Kind: EventBlockStored, BlockHash: blockHash})
	return root, nil
}

// RetrieveBlockData returns the raw bytes stored under blockHash.
func (l *Layer) RetrieveBlockData(blockHash types.Hash) ([]byte, error) {
	data, err := l.store.Get(blockKey(blockHash))
	if err != nil {
		return nil, ErrNotFound
	}
	return data, nil
}

// GenerateProof builds an inclusion proof for chunkIndex of blockHash's
// stored data.
func (l *Layer) GenerateProof(blockHash types.Hash, chunkIndex uint64) (types.MerkleProof, error) {
	data, err := l.RetrieveBlockData(blockHash)
	if err != nil {
		return types.MerkleProof{}, err
	}
	return GenerateProof(data, l.chunkSize, chunkIndex)
}

// VerifyProof checks proof in isolation; it never consults storage and
// never panics on a malformed proof.
func (l *Layer) VerifyProof(proof types.MerkleProof) bool {
	return VerifyProof(proof)
}

// Replicate records that peers now hold a copy of blockHash's data and
// emits a ReplicationChanged event with the new replication factor. It is
// a no-op, not an error, for peers already on record.
func (l *Layer) Replicate(blockHash types.Hash, peers []types.PeerID) error {
	l.mu.Lock()
	av, ok := l.repl[blockHash]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	for _, p := range peers {
		av.peers[p] = struct{}{}
	}
	factor := len(av.peers)
	l.mu.Unlock()

	l.log.Infow("replication updated", "block", blockHash.String(), "factor", factor)
	l.emit(Event{Kind: EventReplicationChanged, BlockHash: blockHash, ReplicationFactor: factor})
	return nil
}

// AvailabilityStatus reports the current replication factor and whether
// blockHash is locally available (stored and backed by at least one
// replica).
type AvailabilityStatus struct {
	ReplicationFactor int
	IsAvailable       bool
}

func (l *Layer) AvailabilityStatus(blockHash types.Hash) (AvailabilityStatus, error) {
	l.mu.RLock()
	av, ok := l.repl[blockHash]
	l.mu.RUnlock()
	if !ok {
		return AvailabilityStatus{}, ErrNotFound
	}
	return AvailabilityStatus{
		ReplicationFactor: len(av.peers),
		IsAvailable:       len(av.peers) > 0,
	}, nil
}
