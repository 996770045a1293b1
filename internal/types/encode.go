package types

import "encoding/binary"

// encoder is a tiny deterministic byte-buffer builder used to produce
// canonical pre-image bytes for hashing. It intentionally avoids JSON/gob so
// that the same struct always serializes identically regardless of map
// iteration order or field reordering elsewhere in the process.
type encoder struct {
	bytes_ []byte
}

func newEncoder() *encoder { return &encoder{bytes_: make([]byte, 0, 256)} }

func (e *encoder) u8(v uint8) { e.bytes_ = append(e.bytes_, v) }

func (e *encoder) u32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.bytes_ = append(e.bytes_, b[:]...)
}

func (e *encoder) u64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.bytes_ = append(e.bytes_, b[:]...)
}

func (e *encoder) addr(a Address) { e.bytes_ = append(e.bytes_, a[:]...) }

func (e *encoder) hash(h Hash) { e.bytes_ = append(e.bytes_, h[:]...) }

// bytes length-prefixes v so variable-length fields can't be confused with
// their neighbours in the pre-image.
func (e *encoder) bytes(v []byte) {
	e.u32(uint32(len(v)))
	e.bytes_ = append(e.bytes_, v...)
}

func (e *encoder) str(s string) { e.bytes(([]byte)(s)) }
