// Copyright (C) 2025 PolyAgent
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See <https://www.gnu.org/licenses/agpl-3.0.html> for the full license text.

// This file implements fragment accumulation for streaming model responses.
// Fragments are stored in mlocked memory so partial answers never swap to
// disk, and are incrementally hashed for integrity logging.

package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// AccumulatorBufferSize is the capacity of the mlocked fragment buffer.
	// 256 KB holds a complete 2048-token response many times over.
	AccumulatorBufferSize = 256 * 1024

	// minMlockLimitKB is the minimum mlock limit required in kilobytes.
	minMlockLimitKB = 256
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// FragmentAccumulator collects streamed content fragments into the final
// assistant answer.
//
// # Description
//
// The accumulator receives each fragment as it is forwarded to the client
// and reproduces the exact concatenation at Finalize time; the persisted
// assistant turn is byte-for-byte what the client saw. Implementations hash
// fragments incrementally as they arrive.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
//
// # Limitations
//
//   - Capacity is fixed; the accumulator cannot be reused after Finalize()
//     or Destroy()
type FragmentAccumulator interface {
	// Write appends one fragment. Returns an error on overflow or after the
	// accumulator has been destroyed.
	Write(fragment string) error

	// Finalize returns the concatenated answer and its SHA-256 hex hash,
	// then wipes the buffer. Can only be called once.
	Finalize() (answer string, hash string, err error)

	// Destroy wipes the buffer without returning data. Idempotent; use on
	// error paths where the partial answer must be discarded.
	Destroy()

	// ID returns a unique identifier for this accumulator, for log
	// correlation.
	ID() string
}

// NewFragmentAccumulator creates an accumulator backed by mlocked memory.
// When the system mlock limit is too low it falls back to ordinary memory
// if POLYAGENT_INSECURE_MEMORY=true is set, and fails otherwise.
func NewFragmentAccumulator() (FragmentAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv("POLYAGENT_INSECURE_MEMORY") == "true" {
			return newPlainAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set POLYAGENT_INSECURE_MEMORY=true",
			currentMlockLimitKB, minMlockLimitKB,
		)
	}

	buf := memguard.NewBuffer(AccumulatorBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", AccumulatorBufferSize)
	}
	buf.Melt()

	return &secureAccumulator{
		id:     uuid.New().String(),
		buffer: buf,
		hasher: sha256.New(),
	}, nil
}

// =============================================================================
// Secure Implementation
// =============================================================================

// secureAccumulator stores fragments in a memguard LockedBuffer: mlocked
// against swapping, guard pages against overflow, wiped on Destroy.
type secureAccumulator struct {
	id        string
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(fragment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow, response too large")
	}

	b := []byte(fragment)
	if a.offset+len(b) > AccumulatorBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(b), AccumulatorBufferSize-a.offset)
	}

	copy(a.buffer.Bytes()[a.offset:], b)
	a.offset += len(b)
	a.hasher.Write(b)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("Finalized fragment accumulator",
		"accumulator_id", a.id,
		"answer_length", len(answer),
	)
	return answer, hashStr, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *secureAccumulator) ID() string { return a.id }

// wipe destroys the locked buffer and marks the accumulator unusable.
// Callers must hold a.mu.
func (a *secureAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

// =============================================================================
// Plain Fallback Implementation
// =============================================================================

// plainAccumulator is the fallback for systems without adequate mlock
// limits. Same contract, ordinary Go memory; zeroing on Destroy is best
// effort since the GC may have copied the slice.
type plainAccumulator struct {
	id        string
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func newPlainAccumulator() FragmentAccumulator {
	accID := uuid.New().String()
	slog.Warn("Created INSECURE fragment accumulator, data may be swapped to disk",
		"accumulator_id", accID,
	)
	return &plainAccumulator{
		id:     accID,
		data:   make([]byte, 0, AccumulatorBufferSize),
		hasher: sha256.New(),
	}
}

func (a *plainAccumulator) Write(fragment string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow, response too large")
	}

	b := []byte(fragment)
	if len(a.data)+len(b) > AccumulatorBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(b), AccumulatorBufferSize-len(a.data))
	}

	a.data = append(a.data, b...)
	a.hasher.Write(b)
	return nil
}

func (a *plainAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashStr, nil
}

func (a *plainAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *plainAccumulator) ID() string { return a.id }

func (a *plainAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

// =============================================================================
// Package Initialization
// =============================================================================

// initMemguard initializes memguard once and records whether the mlock
// limit can hold the accumulator buffer.
func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB,
			)
		} else {
			slog.Warn("mlock limit insufficient for secure memory",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB,
			)
		}
	})
}

// checkMlockLimit queries RLIMIT_MEMLOCK. Returns (true, -1) when the limit
// is unlimited or cannot be determined.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}

	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}

	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// PurgeSecureMemory wipes all memguard-allocated memory. Call during
// graceful shutdown.
func PurgeSecureMemory() {
	memguard.Purge()
	slog.Info("Purged secure memory")
}

var (
	_ FragmentAccumulator = (*secureAccumulator)(nil)
	_ FragmentAccumulator = (*plainAccumulator)(nil)
)
