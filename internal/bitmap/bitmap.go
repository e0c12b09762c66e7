// SPDX-License-Identifier: Apache-2.0

// Package bitmap implements Bitmap_N, the packed N-bit sequence indexed
// 0..N-1 over the source table that the propagator and cover selector share.
// Bits are numbered big-endian within each byte (bit 0 is the high bit of
// byte 0) wherever the bitmap is serialized to bytes, matching the
// reference Python implementation's bitarray usage.
package bitmap

import (
	"github.com/bits-and-blooms/bitset"
	lru "github.com/hashicorp/golang-lru/v2"
)

// pool recycles *bitset.BitSet instances keyed by N, so that the
// allocate-per-vertex, free-on-consume discipline of the propagator (§9
// "Bitmap allocation churn") doesn't thrash the allocator on large graphs.
var pool = newBitsetPool()

type bitsetPool struct {
	cache *lru.Cache[int, []*bitset.BitSet]
}

func newBitsetPool() *bitsetPool {
	// One bucket per distinct N seen in a run; a handful of buckets covers
	// every realistic mix of source-table sizes across concurrent runs.
	c, err := lru.New[int, []*bitset.BitSet](64)
	if err != nil {
		panic(err) // only errors for a non-positive size, which 64 is not
	}
	return &bitsetPool{cache: c}
}

func (p *bitsetPool) get(n int) *bitset.BitSet {
	bufs, ok := p.cache.Get(n)
	if ok && len(bufs) > 0 {
		b := bufs[len(bufs)-1]
		p.cache.Add(n, bufs[:len(bufs)-1])
		b.ClearAll()
		return b
	}
	return bitset.New(uint(n))
}

func (p *bitsetPool) put(n int, b *bitset.BitSet) {
	bufs, _ := p.cache.Get(n)
	if len(bufs) >= 8 {
		return // don't hoard; let the GC have the rest
	}
	p.cache.Add(n, append(bufs, b))
}

// Bitmap is a packed bit sequence of length N.
type Bitmap struct {
	n    int
	bits *bitset.BitSet
}

// New allocates a zeroed Bitmap_N.
func New(n int) *Bitmap {
	return &Bitmap{n: n, bits: pool.get(n)}
}

// NewSingleBit allocates a Bitmap_N with exactly bit i set.
func NewSingleBit(n, i int) *Bitmap {
	b := New(n)
	b.Set(i)
	return b
}

// All returns a Bitmap_N with bits 0..n-1 all set.
func All(n int) *Bitmap {
	b := New(n)
	for i := 0; i < n; i++ {
		b.Set(i)
	}
	return b
}

// byteLen returns ceil(n/8).
func byteLen(n int) int {
	return (n + 7) / 8
}

// Len returns N.
func (b *Bitmap) Len() int {
	return b.n
}

// Set sets bit i.
func (b *Bitmap) Set(i int) {
	b.bits.Set(uint(i))
}

// Test reports whether bit i is set.
func (b *Bitmap) Test(i int) bool {
	return b.bits.Test(uint(i))
}

// Or sets b to b | other, in place. Panics if the lengths differ.
func (b *Bitmap) Or(other *Bitmap) {
	b.mustMatch(other)
	b.bits.InPlaceUnion(other.bits)
}

// And returns a new Bitmap holding b & other.
func (b *Bitmap) And(other *Bitmap) *Bitmap {
	b.mustMatch(other)
	out := b.clone()
	out.bits.InPlaceIntersection(other.bits)
	return out
}

// AndNot returns a new Bitmap holding b with other's set bits cleared.
func (b *Bitmap) AndNot(other *Bitmap) *Bitmap {
	b.mustMatch(other)
	out := b.clone()
	out.bits.InPlaceDifference(other.bits)
	return out
}

// Not returns a new Bitmap holding the complement of b over [0, N).
func (b *Bitmap) Not() *Bitmap {
	out := New(b.n)
	for i := 0; i < b.n; i++ {
		if !b.bits.Test(uint(i)) {
			out.Set(i)
		}
	}
	return out
}

// PopCount returns the number of set bits.
func (b *Bitmap) PopCount() int {
	return int(b.bits.Count())
}

// IsZero reports whether no bits are set.
func (b *Bitmap) IsZero() bool {
	return b.bits.None()
}

// Equal reports whether b and other have identical length and bits.
func (b *Bitmap) Equal(other *Bitmap) bool {
	if b.n != other.n {
		return false
	}
	return b.bits.Equal(other.bits)
}

// Bytes returns the big-endian packed byte representation of b, of length
// ceil(N/8); any padding bits in the trailing byte are zero.
func (b *Bitmap) Bytes() []byte {
	out := make([]byte, byteLen(b.n))
	for i := 0; i < b.n; i++ {
		if b.bits.Test(uint(i)) {
			out[i/8] |= 0x80 >> uint(i%8)
		}
	}
	return out
}

// FromBytes reconstructs a Bitmap_N from its big-endian packed byte
// representation, as produced by Bytes.
func FromBytes(n int, data []byte) *Bitmap {
	b := New(n)
	for i := 0; i < n; i++ {
		if data[i/8]&(0x80>>uint(i%8)) != 0 {
			b.Set(i)
		}
	}
	return b
}

// Key returns a string suitable for use as a map key to group bitmaps by
// identical content (§4.3 "Grouping").
func (b *Bitmap) Key() string {
	return string(b.Bytes())
}

// SetRange ORs the bits of src (a bitmap of length M, M a multiple of 8
// unless it is the final slice) into b starting at bit offset off, used by
// the step/chunk propagation mode (§4.3) to write a partial segment into
// its commit's full Bitmap_N at the correct byte offset.
func (b *Bitmap) SetRange(off int, src *Bitmap) {
	for i := 0; i < src.n; i++ {
		if src.bits.Test(uint(i)) {
			b.Set(off + i)
		}
	}
}

// Release returns b's backing storage to the pool. b must not be used
// after calling Release.
func (b *Bitmap) Release() {
	if b.bits == nil {
		return
	}
	pool.put(b.n, b.bits)
	b.bits = nil
}

func (b *Bitmap) clone() *Bitmap {
	out := New(b.n)
	out.bits.InPlaceUnion(b.bits)
	return out
}

func (b *Bitmap) mustMatch(other *Bitmap) {
	if b.n != other.n {
		panic("bitmap: length mismatch")
	}
}
