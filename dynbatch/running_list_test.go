package dynbatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningListAppendEntersPrefill(t *testing.T) {
	rl := NewRunningList(1.2)
	seq := NewSequence("a", []int{1, 2})

	rl.Append(seq)

	assert.Len(t, rl.Prefill(), 1)
	assert.Empty(t, rl.Decoding())
	assert.False(t, rl.IsEmpty())
}

func TestRunningListFindChecksDecodingFirst(t *testing.T) {
	rl := NewRunningList(1.0)
	a := NewSequence("a", []int{1})
	b := NewSequence("b", []int{2})
	rl.Append(a)
	rl.Append(b)
	rl.FoldPrefill()
	c := NewSequence("c", []int{3})
	rl.Append(c)

	assert.Same(t, a, rl.Find("a"))
	assert.Same(t, c, rl.Find("c"))
	assert.Nil(t, rl.Find("missing"))
}

func TestRunningListRemoveByID(t *testing.T) {
	rl := NewRunningList(1.0)
	a := NewSequence("a", []int{1})
	b := NewSequence("b", []int{2})
	rl.Append(a)
	rl.FoldPrefill()
	rl.Append(b)

	require.NoError(t, rl.Remove("a"))
	require.NoError(t, rl.Remove("b"))
	assert.True(t, rl.IsEmpty())

	err := rl.Remove("a")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunningListReadyForPrefill(t *testing.T) {
	rl := NewRunningList(2.0)

	// Empty prefill is never ready
	assert.False(t, rl.ReadyForPrefill())

	// Bootstrap: anything in prefill with nothing decoding
	rl.Append(NewSequence("a", []int{1}))
	assert.True(t, rl.ReadyForPrefill())

	rl.FoldPrefill()
	assert.False(t, rl.ReadyForPrefill())

	// 1 prefill / 1 decoding = 1.0 < ratio 2.0
	rl.Append(NewSequence("b", []int{2}))
	assert.False(t, rl.ReadyForPrefill())

	// 2 prefill / 1 decoding = 2.0 >= ratio 2.0
	rl.Append(NewSequence("c", []int{3}))
	assert.True(t, rl.ReadyForPrefill())
}

func TestRunningListReadyForPrefillZeroRatio(t *testing.T) {
	rl := NewRunningList(0)

	rl.Append(NewSequence("a", []int{1}))
	rl.FoldPrefill()

	// Ratio 0 admits any non-empty prefill set, but an empty one still
	// must not report ready.
	assert.False(t, rl.ReadyForPrefill())

	rl.Append(NewSequence("b", []int{2}))
	assert.True(t, rl.ReadyForPrefill())
}

func TestRunningListFoldPrefill(t *testing.T) {
	rl := NewRunningList(1.0)
	a := NewSequence("a", []int{1})
	b := NewSequence("b", []int{2})
	rl.Append(a)
	rl.Append(b)

	moved := rl.FoldPrefill()

	require.Len(t, moved, 2)
	assert.Same(t, a, moved[0])
	assert.Same(t, b, moved[1])
	assert.Empty(t, rl.Prefill())
	assert.Len(t, rl.Decoding(), 2)
}
