// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// AccumulatorBufferSize bounds one assembled assistant reply.
	// 512 KB covers long responses with room to spare.
	AccumulatorBufferSize = 512 * 1024

	// minMlockLimitKB is the mlock limit required for secure mode.
	minMlockLimitKB = 512
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// TokenAccumulator assembles streamed tokens into the final assistant
// reply. The secure implementation keeps the partial reply in mlocked
// memory so it never reaches swap.
//
// # Limitations
//
//   - Buffer size is fixed
//   - Unusable after Finalize() or Destroy()
type TokenAccumulator interface {
	// Write appends a token. Tokens are hashed as they arrive.
	Write(token string) error

	// Finalize returns the assembled reply and its SHA-256 hex hash,
	// then wipes the buffer. Callable once.
	Finalize() (answer string, hash string, err error)

	// Destroy wipes memory without returning data. Idempotent; use on
	// error paths where the partial reply must be discarded.
	Destroy()

	// ID identifies this accumulator in logs.
	ID() string
}

// NewTokenAccumulator returns a secure accumulator when mlock limits
// allow, an insecure heap-backed one when ALEUTIAN_INSECURE_MEMORY=true,
// and an error otherwise.
func NewTokenAccumulator() (TokenAccumulator, error) {
	initMemguard()

	if !mlockSufficient {
		if os.Getenv("ALEUTIAN_INSECURE_MEMORY") == "true" {
			slog.Warn("Using insecure token accumulator due to mlock limits",
				"current_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB,
			)
			return newInsecureAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Raise the limit or set ALEUTIAN_INSECURE_MEMORY=true",
			currentMlockLimitKB, minMlockLimitKB)
	}

	buf := memguard.NewBuffer(AccumulatorBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", AccumulatorBufferSize)
	}
	buf.Melt()

	return &secureAccumulator{
		id:        uuid.New().String(),
		createdAt: time.Now(),
		buffer:    buf,
		hasher:    sha256.New(),
	}, nil
}

func initMemguard() {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB,
				"required_kb", minMlockLimitKB)
		}
	})
}

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

// PurgeAllSecureMemory wipes all memguard-allocated memory. Intended
// for shutdown paths.
func PurgeAllSecureMemory() {
	memguard.Purge()
}

// =============================================================================
// Secure implementation
// =============================================================================

type secureAccumulator struct {
	mu        sync.Mutex
	id        string
	createdAt time.Time
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	destroyed bool
	finalized bool
}

func (a *secureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed || a.finalized {
		return fmt.Errorf("accumulator %s is no longer writable", a.id)
	}

	tokenBytes := []byte(token)
	if a.offset+len(tokenBytes) > a.buffer.Size() {
		return fmt.Errorf("accumulator overflow: %d bytes would exceed %d byte buffer",
			a.offset+len(tokenBytes), a.buffer.Size())
	}

	copy(a.buffer.Bytes()[a.offset:], tokenBytes)
	a.offset += len(tokenBytes)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed || a.finalized {
		return "", "", fmt.Errorf("accumulator %s already finalized or destroyed", a.id)
	}
	a.finalized = true

	answer := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.buffer.Destroy()
	a.destroyed = true

	slog.Debug("Finalized token accumulator",
		"accumulator_id", a.id, "answer_len", len(answer), "hash", hashStr)
	return answer, hashStr, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.buffer.Destroy()
	a.destroyed = true
	slog.Debug("Destroyed token accumulator", "accumulator_id", a.id)
}

func (a *secureAccumulator) ID() string { return a.id }

// =============================================================================
// Insecure fallback
// =============================================================================

type insecureAccumulator struct {
	mu        sync.Mutex
	id        string
	data      []byte
	hasher    hash.Hash
	destroyed bool
	finalized bool
}

func newInsecureAccumulator() TokenAccumulator {
	accID := uuid.New().String()
	slog.Warn("Created INSECURE token accumulator - data may be swapped to disk",
		"accumulator_id", accID)
	return &insecureAccumulator{
		id:     accID,
		data:   make([]byte, 0, AccumulatorBufferSize),
		hasher: sha256.New(),
	}
}

func (a *insecureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed || a.finalized {
		return fmt.Errorf("accumulator %s is no longer writable", a.id)
	}
	if len(a.data)+len(token) > AccumulatorBufferSize {
		return fmt.Errorf("accumulator overflow: %d bytes would exceed %d byte buffer",
			len(a.data)+len(token), AccumulatorBufferSize)
	}
	a.data = append(a.data, token...)
	a.hasher.Write([]byte(token))
	return nil
}

func (a *insecureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed || a.finalized {
		return "", "", fmt.Errorf("accumulator %s already finalized or destroyed", a.id)
	}
	a.finalized = true

	answer := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashStr, nil
}

func (a *insecureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *insecureAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

func (a *insecureAccumulator) ID() string { return a.id }
