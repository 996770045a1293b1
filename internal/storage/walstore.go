package storage

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/rlp"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/polytorus/polytorus/internal/hashsig"
	"github.com/polytorus/polytorus/internal/types"
)

// walRecord is the durable encoding of a single KV write, appended to the
// write-ahead log. Blob puts are recorded the same way, keyed by their
// content hash, so a clean restart reconstructs the latest canonical tip.
type walRecord struct {
	Key     []byte
	Value   []byte
	Deleted bool
}

// WALStore is a durable Store: every mutation is RLP-encoded and appended
// to a WAL file before being applied to an in-memory working set, and
// periodically compacted into a snapshot. Reads are served from memory;
// only writes touch disk on the hot path.
type WALStore struct {
	mem *MemStore

	mu       sync.Mutex
	wal      *os.File
	walPath  string
	snapPath string

	// aead, when non-nil, encrypts WAL payloads at rest with
	// XChaCha20-Poly1305. Optional: a deployment without a configured key
	// runs with aead == nil.
	aead cipherAEAD

	retryMax time.Duration
}

type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}

// Config controls WALStore construction.
type Config struct {
	Dir          string // directory holding wal.log and snapshot.json
	EncryptKey   []byte // 32 bytes; nil disables at-rest encryption
	RetryMaxWait time.Duration
}

// Open creates or restores a WALStore rooted at cfg.Dir: it loads the most
// recent snapshot (if any) then replays the WAL written since that
// snapshot.
func Open(cfg Config) (*WALStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, &Error{Kind: KindPermanent, Op: "mkdir", Err: err}
	}
	s := &WALStore{
		mem:      NewMemStore(),
		walPath:  filepath.Join(cfg.Dir, "wal.log"),
		snapPath: filepath.Join(cfg.Dir, "snapshot.json"),
		retryMax: cfg.RetryMaxWait,
	}
	if s.retryMax == 0 {
		s.retryMax = 5 * time.Second
	}
	if len(cfg.EncryptKey) == 32 {
		aead, err := chacha20poly1305.NewX(cfg.EncryptKey)
		if err != nil {
			return nil, &Error{Kind: KindPermanent, Op: "init-cipher", Err: err}
		}
		s.aead = aead
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	if err := s.replayWAL(); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(s.walPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, &Error{Kind: KindTransient, Op: "open-wal", Err: err}
	}
	s.wal = f
	return s, nil
}

// restoreRecord routes a replayed (key, value) pair into mem's KV map or
// blob map depending on whether key carries the blobKey prefix — PutBlob
// writes land in mem.blobs (keyed by content hash), everything else in
// mem.kv, matching where GetBlob/Get read from. A tombstoned record removes
// the key instead, so a Delete survives WAL replay and snapshot restore.
func (s *WALStore) restoreRecord(key, value []byte, deleted bool) {
	if h, ok := blobHashFromKey(key); ok {
		if deleted {
			delete(s.mem.blobs, h)
			return
		}
		s.mem.blobs[h] = value
		return
	}
	if deleted {
		delete(s.mem.kv, string(key))
		return
	}
	s.mem.kv[string(key)] = value
}

func (s *WALStore) loadSnapshot() error {
	f, err := os.Open(s.snapPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Kind: KindPermanent, Op: "open-snapshot", Err: err}
	}
	defer f.Close()
	var dump map[string][]byte
	if err := json.NewDecoder(f).Decode(&dump); err != nil {
		return &Error{Kind: KindPermanent, Op: "decode-snapshot", Err: err}
	}
	for k, v := range dump {
		s.restoreRecord([]byte(k), v, false)
	}
	return nil
}

func (s *WALStore) replayWAL() error {
	f, err := os.Open(s.walPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Kind: KindPermanent, Op: "open-wal", Err: err}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	for scanner.Scan() {
		raw := scanner.Bytes()
		if s.aead != nil {
			plain, err := s.decrypt(raw)
			if err != nil {
				return &Error{Kind: KindPermanent, Op: "decrypt-wal", Err: err}
			}
			raw = plain
		}
		var rec walRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return &Error{Kind: KindPermanent, Op: "decode-wal", Err: err}
		}
		s.restoreRecord(rec.Key, rec.Value, rec.Deleted)
	}
	if err := scanner.Err(); err != nil {
		return &Error{Kind: KindPermanent, Op: "scan-wal", Err: err}
	}
	return nil
}

func (s *WALStore) decrypt(ciphertext []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(ciphertext) < n {
		return nil, fmt.Errorf("storage: ciphertext shorter than nonce")
	}
	nonce, ct := ciphertext[:n], ciphertext[n:]
	return s.aead.Open(nil, nonce, ct, nil)
}

func (s *WALStore) encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return append(nonce, s.aead.Seal(nil, nonce, plain, nil)...), nil
}

func (s *WALStore) appendRecord(rec walRecord) error {
	raw, err := rlp.EncodeToBytes(rec)
	if err != nil {
		return &Error{Kind: KindPermanent, Op: "encode-wal", Err: err}
	}
	if s.aead != nil {
		raw, err = s.encrypt(raw)
		if err != nil {
			return &Error{Kind: KindPermanent, Op: "encrypt-wal", Err: err}
		}
	}
	return s.withRetry(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, err := s.wal.Write(append(raw, '\n')); err != nil {
			return err
		}
		return s.wal.Sync()
	})
}

// withRetry retries a transient storage op with exponential backoff up to
// retryMax, then surfaces it as permanent.
func (s *WALStore) withRetry(op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = s.retryMax
	err := backoff.Retry(op, b)
	if err != nil {
		return &Error{Kind: KindPermanent, Op: "wal-write", Err: err}
	}
	return nil
}

func (s *WALStore) PutBlob(data []byte) (types.Hash, error) {
	hh := hashsig.Hash(data)
	if werr := s.appendRecord(walRecord{Key: blobKey(hh), Value: data}); werr != nil {
		return hh, werr
	}
	return s.mem.PutBlob(data)
}

func (s *WALStore) GetBlob(h types.Hash) ([]byte, error) { return s.mem.GetBlob(h) }

func (s *WALStore) Put(key, value []byte) error {
	if err := s.appendRecord(walRecord{Key: append([]byte(nil), key...), Value: value}); err != nil {
		return err
	}
	return s.mem.Put(key, value)
}

func (s *WALStore) Get(key []byte) ([]byte, error) { return s.mem.Get(key) }

func (s *WALStore) Delete(key []byte) error {
	if err := s.appendRecord(walRecord{Key: append([]byte(nil), key...), Deleted: true}); err != nil {
		return err
	}
	return s.mem.Delete(key)
}

func (s *WALStore) IterPrefix(prefix []byte) Iterator { return s.mem.IterPrefix(prefix) }

// Snapshot compacts the current in-memory KV state to disk and truncates
// the WAL.
func (s *WALStore) Snapshot(ctx context.Context) error {
	s.mem.mu.RLock()
	dump := make(map[string][]byte, len(s.mem.kv)+len(s.mem.blobs))
	for k, v := range s.mem.kv {
		dump[k] = v
	}
	for h, v := range s.mem.blobs {
		dump[string(blobKey(h))] = v
	}
	s.mem.mu.RUnlock()

	tmp := s.snapPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return &Error{Kind: KindTransient, Op: "create-snapshot", Err: err}
	}
	if err := json.NewEncoder(f).Encode(dump); err != nil {
		f.Close()
		return &Error{Kind: KindPermanent, Op: "encode-snapshot", Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Kind: KindTransient, Op: "close-snapshot", Err: err}
	}
	if err := os.Rename(tmp, s.snapPath); err != nil {
		return &Error{Kind: KindTransient, Op: "rename-snapshot", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.wal.Truncate(0); err != nil {
		return &Error{Kind: KindTransient, Op: "truncate-wal", Err: err}
	}
	_, err = s.wal.Seek(0, io.SeekStart)
	return err
}

// Close releases the underlying WAL file handle.
func (s *WALStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}

func blobKey(h types.Hash) []byte {
	return append([]byte("blob:"), h[:]...)
}

// blobHashFromKey recovers the content hash from a blobKey-encoded key, so
// WAL replay and snapshot loading can route it back into mem.blobs instead
// of the generic KV map.
func blobHashFromKey(key []byte) (types.Hash, bool) {
	const prefix = "blob:"
	if len(key) != len(prefix)+types.HashSize || string(key[:len(prefix)]) != prefix {
		return types.Hash{}, false
	}
	var h types.Hash
	copy(h[:], key[len(prefix):])
	return h, true
}
