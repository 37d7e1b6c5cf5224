// Package storage provides the persistence interfaces behind the
// exchange core's collaborators: partner profiles and partnerships,
// control-number sequences, the execution ledger, and poll target
// configuration with its watermark.
//
// The mongodb sub-package provides a production implementation.
// Additional backends (PostgreSQL, in-memory) may be added. All store
// implementations must be safe for concurrent use from multiple
// goroutines.
package storage

import (
	"context"
	"time"

	"github.com/edilane/go-x12/pkg/controlnum"
	"github.com/edilane/go-x12/pkg/ledger"
	"github.com/edilane/go-x12/pkg/partner"
	"github.com/edilane/go-x12/pkg/poller"
)

// PollTarget is one scheduled poll configuration. The embedded poll
// config's LastPollTime is the persisted watermark; the scheduler
// advances it only after error-free runs.
type PollTarget struct {
	ID       string        `bson:"_id"`
	Name     string        `bson:"name"`
	Enabled  bool          `bson:"enabled"`
	Interval time.Duration `bson:"interval"`
	Poll     poller.Config `bson:"poll"`
}

// ProfileStore persists partner profiles and serves profile resolution.
type ProfileStore interface {
	partner.ProfileResolver

	UpsertProfile(ctx context.Context, profile *partner.Profile) error
}

// PartnershipStore persists partnerships under an ordered pair key and
// serves the bidirectional resolution contract.
type PartnershipStore interface {
	partner.PartnershipResolver

	UpsertPartnership(ctx context.Context, sendingPartnerID, receivingPartnerID string, ps *partner.Partnership) error
}

// GuideStore persists guide registrations (guide id → transaction-set
// type) and serves guide resolution over a candidate list.
type GuideStore interface {
	partner.GuideResolver

	UpsertGuide(ctx context.Context, guideID, transactionSetType string) error
}

// PollTargetStore manages poll target configuration.
type PollTargetStore interface {
	ListPollTargets(ctx context.Context) ([]*PollTarget, error)
	UpsertPollTarget(ctx context.Context, target *PollTarget) error
	UpdateWatermark(ctx context.Context, targetID string, watermark time.Time) error
}

// Store combines every persistence concern of the exchange core. It
// satisfies the control-number issuer and execution ledger collaborator
// contracts directly.
type Store interface {
	ProfileStore
	PartnershipStore
	GuideStore
	PollTargetStore
	controlnum.Issuer
	ledger.Ledger

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks database connectivity
	Ping(ctx context.Context) error
}
