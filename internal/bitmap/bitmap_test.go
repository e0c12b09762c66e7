// SPDX-License-Identifier: Apache-2.0

package bitmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSingleBit(t *testing.T) {
	b := NewSingleBit(10, 3)
	assert.Equal(t, 1, b.PopCount())
	assert.True(t, b.Test(3))
	assert.False(t, b.Test(0))
}

func TestOrAndAndNot(t *testing.T) {
	a := NewSingleBit(8, 0)
	b := NewSingleBit(8, 1)

	a.Or(b)
	assert.Equal(t, 2, a.PopCount())
	assert.True(t, a.Test(0))
	assert.True(t, a.Test(1))

	c := a.And(b)
	assert.Equal(t, 1, c.PopCount())
	assert.True(t, c.Test(1))

	d := a.AndNot(b)
	assert.Equal(t, 1, d.PopCount())
	assert.True(t, d.Test(0))
	assert.False(t, d.Test(1))
}

func TestBytesPaddingIsZero(t *testing.T) {
	b := All(10) // not a multiple of 8
	data := b.Bytes()
	require.Len(t, data, 2)
	// bits 10..15 (the last 6 of the trailing byte) must be zero.
	assert.Equal(t, byte(0xff), data[0])
	assert.Equal(t, byte(0), data[1]&0x3f)
}

func TestFromBytesRoundTrip(t *testing.T) {
	b := NewSingleBit(12, 5)
	b.Set(11)
	data := b.Bytes()

	got := FromBytes(12, data)
	assert.True(t, got.Equal(b))
}

func TestKeyGroupsIdenticalBitmaps(t *testing.T) {
	a := NewSingleBit(16, 4)
	b := NewSingleBit(16, 4)
	c := NewSingleBit(16, 5)

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}

func TestSetRangeWritesAtByteOffset(t *testing.T) {
	full := New(24)
	segment := NewSingleBit(8, 3)
	full.SetRange(8, segment)

	assert.True(t, full.Test(11))
	assert.Equal(t, 1, full.PopCount())
}

func TestNot(t *testing.T) {
	a := NewSingleBit(4, 0)
	b := a.Not()
	assert.False(t, b.Test(0))
	assert.True(t, b.Test(1))
	assert.True(t, b.Test(2))
	assert.True(t, b.Test(3))
}

func TestReleaseThenReuse(t *testing.T) {
	a := NewSingleBit(32, 1)
	a.Release()

	b := New(32)
	assert.True(t, b.IsZero())
}
