// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package controlnum defines the control-number issuance contract used to
// number ISA interchanges and GS functional groups.
//
// Numbers are scoped by (segment, usage indicator, sender, receiver) and
// must be unique and monotonically increasing within a scope; reused
// numbers collide at the receiving interchange. The atomicity of issuance
// is the issuer's responsibility: the MongoDB implementation uses an
// atomic increment, and the in-memory issuer here is mutex-guarded.
package controlnum

import (
	"context"
	"sync"

	"github.com/edilane/go-x12/pkg/x12"
)

// Segment identifies which envelope level a number is issued for.
type Segment string

const (
	SegmentISA Segment = "ISA"
	SegmentGS  Segment = "GS"
)

// Scope is the tuple a control-number sequence is keyed by.
type Scope struct {
	Segment            Segment
	UsageIndicatorCode x12.UsageIndicator
	SendingPartnerID   string
	ReceivingPartnerID string
}

// Key renders the scope as a flat storage key.
func (s Scope) Key() string {
	return string(s.Segment) + "|" + string(s.UsageIndicatorCode) + "|" + s.SendingPartnerID + "|" + s.ReceivingPartnerID
}

// Issuer issues the next control number for a scope.
type Issuer interface {
	Issue(ctx context.Context, scope Scope) (int64, error)
}

// MemoryIssuer is an in-process Issuer for tests and single-node
// deployments.
type MemoryIssuer struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewMemoryIssuer creates an issuer with all scopes starting at 1.
func NewMemoryIssuer() *MemoryIssuer {
	return &MemoryIssuer{next: make(map[string]int64)}
}

// Issue implements Issuer.
func (m *MemoryIssuer) Issue(ctx context.Context, scope Scope) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := scope.Key()
	m.next[key]++
	return m.next[key], nil
}
