// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package ledger defines the execution ledger contract: every logical
// execution (one outbound event, one poll run) records a start, then
// exactly one success or failure, keyed by an idempotent execution id.
package ledger

import (
	"context"
	"sync"
	"time"
)

// Status of a recorded execution.
type Status string

const (
	StatusStarted   Status = "STARTED"
	StatusSucceeded Status = "SUCCEEDED"
	StatusFailed    Status = "FAILED"
)

// Ledger records execution lifecycle events. Implementations must be safe
// for concurrent use.
type Ledger interface {
	RecordStart(ctx context.Context, executionID string, input any) error
	RecordSuccess(ctx context.Context, executionID string) error
	RecordFailure(ctx context.Context, executionID string, execErr error, details any) error
}

// Entry is one execution's recorded state.
type Entry struct {
	ExecutionID string
	Status      Status
	Input       any
	Error       string
	Details     any
	StartedAt   time.Time
	FinishedAt  time.Time
}

// MemoryLedger is an in-process Ledger for tests and examples.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewMemoryLedger creates an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{entries: make(map[string]*Entry)}
}

// RecordStart implements Ledger.
func (l *MemoryLedger) RecordStart(ctx context.Context, executionID string, input any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[executionID] = &Entry{
		ExecutionID: executionID,
		Status:      StatusStarted,
		Input:       input,
		StartedAt:   time.Now(),
	}
	return nil
}

// RecordSuccess implements Ledger.
func (l *MemoryLedger) RecordSuccess(ctx context.Context, executionID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[executionID]; ok {
		e.Status = StatusSucceeded
		e.FinishedAt = time.Now()
	}
	return nil
}

// RecordFailure implements Ledger.
func (l *MemoryLedger) RecordFailure(ctx context.Context, executionID string, execErr error, details any) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.entries[executionID]; ok {
		e.Status = StatusFailed
		if execErr != nil {
			e.Error = execErr.Error()
		}
		e.Details = details
		e.FinishedAt = time.Now()
	}
	return nil
}

// Entries returns copies of all recorded entries, in no particular order.
func (l *MemoryLedger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, *e)
	}
	return out
}

// Entry returns a copy of the recorded entry for an execution id.
func (l *MemoryLedger) Entry(executionID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[executionID]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}
