package code

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "entrypass/pkg/domain-errors"
)

type fakeLookup struct {
	taken map[string]bool
	calls int
	err   error
}

func (f *fakeLookup) Exists(_ context.Context, code string) (bool, error) {
	f.calls++
	return f.taken[code], f.err
}

func TestGenerate_Format(t *testing.T) {
	g := New(&fakeLookup{})
	for range 100 {
		c, err := g.Generate(context.Background())
		require.NoError(t, err)
		assert.True(t, Valid(c), c)
	}
}

func TestGenerate_RedrawsOnCollision(t *testing.T) {
	// bytes 0,0 -> "A0"; bytes 1,1 -> "B1"
	src := bytes.NewReader([]byte{0, 0, 0, 0, 0, 0, 1, 1, 1, 1, 1, 1})
	lookup := &fakeLookup{taken: map[string]bool{"A0A0A0": true}}

	c, err := New(lookup, WithRandom(src)).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "B1B1B1", c)
	assert.Equal(t, 2, lookup.calls)
}

func TestGenerate_RejectsBiasedBytes(t *testing.T) {
	// letters accept bytes below 234, digits below 250
	src := bytes.NewReader([]byte{234, 255, 25, 249, 250, 9, 0, 0, 0})

	c, err := New(&fakeLookup{}, WithRandom(src)).Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Z9J0A0", c)
}

func TestGenerate_Exhausted(t *testing.T) {
	src := bytes.NewReader(make([]byte, 6*4))
	lookup := &fakeLookup{taken: map[string]bool{"A0A0A0": true}}

	_, err := New(lookup, WithRandom(src), WithMaxDraws(4)).Generate(context.Background())
	assert.ErrorIs(t, err, ErrExhausted)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, 4, lookup.calls)
}

func TestGenerate_LookupError(t *testing.T) {
	_, err := New(&fakeLookup{err: errors.New("db down")}).Generate(context.Background())
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("K4P1Z9"))
	assert.False(t, Valid("k4p1z9"))
	assert.False(t, Valid("K4P1Z"))
	assert.False(t, Valid("44P1Z9"))
}
