// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccumulator(t *testing.T) FragmentAccumulator {
	t.Helper()
	t.Setenv("POLYAGENT_INSECURE_MEMORY", "true")
	acc, err := NewFragmentAccumulator()
	require.NoError(t, err)
	return acc
}

func TestFragmentAccumulator_Concatenation(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	require.NoError(t, acc.Write("Your "))
	require.NoError(t, acc.Write("risk is "))
	require.NoError(t, acc.Write("moderate."))

	answer, hashStr, err := acc.Finalize()
	require.NoError(t, err)
	assert.Equal(t, "Your risk is moderate.", answer)

	want := sha256.Sum256([]byte(answer))
	assert.Equal(t, hex.EncodeToString(want[:]), hashStr,
		"incremental hash matches hashing the whole answer")
}

func TestFragmentAccumulator_FinalizeOnce(t *testing.T) {
	acc := newTestAccumulator(t)

	require.NoError(t, acc.Write("data"))
	_, _, err := acc.Finalize()
	require.NoError(t, err)

	_, _, err = acc.Finalize()
	assert.Error(t, err, "second finalize fails")
	assert.Error(t, acc.Write("more"), "write after finalize fails")
}

func TestFragmentAccumulator_DestroyIsIdempotent(t *testing.T) {
	acc := newTestAccumulator(t)
	acc.Destroy()
	acc.Destroy()

	_, _, err := acc.Finalize()
	assert.Error(t, err)
}

func TestFragmentAccumulator_Overflow(t *testing.T) {
	acc := newTestAccumulator(t)
	defer acc.Destroy()

	big := strings.Repeat("a", AccumulatorBufferSize)
	require.NoError(t, acc.Write(big))

	err := acc.Write("one more byte")
	require.Error(t, err)

	_, _, err = acc.Finalize()
	assert.Error(t, err, "overflowed accumulator cannot be finalized")
}

func TestFragmentAccumulator_ID(t *testing.T) {
	a := newTestAccumulator(t)
	defer a.Destroy()
	b := newTestAccumulator(t)
	defer b.Destroy()

	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
}
