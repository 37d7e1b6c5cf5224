// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package outbound implements the outbound delivery pipeline: for one
// inbound business event it resolves the partnership, guide, and envelope,
// fans out to every configured destination concurrently, and aggregates
// partial success and failure.
//
// # Failure taxonomy
//
// Failures before fan-out (malformed event, missing profile or
// partnership, undeterminable transaction-set type, guide or config
// resolution, unknown functional identifier, control-number issuance) are
// fatal: the whole execution aborts and is recorded once against its
// execution id. Failures inside one destination's attempt (mapping,
// control-number sequence validation, translation, transport) are
// captured in that destination's result slot and never cancel siblings.
//
// A run with any rejected destination is reported as an overall failure,
// but already-delivered destinations are not rolled back and their
// confirmations stay in the report. Control numbers are likewise consumed
// once resolution succeeds, whether or not delivery goes on to fail.
package outbound

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edilane/go-x12/pkg/controlnum"
	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/ledger"
	"github.com/edilane/go-x12/pkg/partner"
	"github.com/edilane/go-x12/pkg/translate"
	"github.com/edilane/go-x12/pkg/x12"
)

// Deliverer routes one translated document to one destination.
// *delivery.Dispatcher is the standard implementation.
type Deliverer interface {
	Deliver(ctx context.Context, dest delivery.Destination, objectKey string, ediText string) (*delivery.Confirmation, error)
}

// Pipeline wires the collaborators of the outbound delivery flow.
type Pipeline struct {
	Profiles       partner.ProfileResolver
	Partnerships   partner.PartnershipResolver
	Guides         partner.GuideResolver
	ControlNumbers controlnum.Issuer
	Mapper         translate.Mapper
	Translator     translate.Translator
	Deliverer      Deliverer
	Ledger         ledger.Ledger
	Logger         *slog.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// Run executes the pipeline for one event. It returns the aggregated
// report and, when the run did not fully succeed, a *FatalError (for
// pre-fan-out failures, with a nil report) or ErrDeliveryFailed (for
// partial failures, with the full report attached).
func (p *Pipeline) Run(ctx context.Context, event *Event) (*Report, error) {
	executionID := uuid.NewString()
	log := p.logger().With("execution_id", executionID,
		"sender", event.Metadata.SendingPartnerID,
		"receiver", event.Metadata.ReceivingPartnerID)

	if err := p.Ledger.RecordStart(ctx, executionID, event); err != nil {
		return nil, p.fatal(ctx, executionID, "ledger", err, nil)
	}

	plan, err := p.resolve(ctx, executionID, event)
	if err != nil {
		log.Error("resolution failed", "error", err)
		return nil, err
	}

	log = log.With("transaction_set", plan.transactionSetType, "guide_id", plan.guideID,
		"isa_control_number", plan.envelope.InterchangeHeader.ControlNumber)
	log.Info("fanning out", "destinations", len(plan.config.Destinations))

	results := p.fanOut(ctx, event, plan)

	report := &Report{ExecutionID: executionID, StatusCode: 200, DeliveryResults: results}
	if rejected := report.Rejected(); len(rejected) > 0 {
		report.StatusCode = 500
		err := fmt.Errorf("%w: %d of %d", ErrDeliveryFailed, len(rejected), len(results))
		if lerr := p.Ledger.RecordFailure(ctx, executionID, err, report); lerr != nil {
			log.Error("failed to record failure", "error", lerr)
		}
		log.Warn("delivery partially failed", "rejected", len(rejected), "fulfilled", len(results)-len(rejected))
		return report, err
	}

	if err := p.Ledger.RecordSuccess(ctx, executionID); err != nil {
		log.Error("failed to record success", "error", err)
	}
	log.Info("delivered", "destinations", len(results))
	return report, nil
}

// plan is everything resolved once per event and shared read-only across
// destination attempts.
type plan struct {
	transactionSetType string
	guideID            string
	config             partner.TransactionSetConfig
	envelope           *x12.Envelope
}

func (p *Pipeline) resolve(ctx context.Context, executionID string, event *Event) (*plan, error) {
	meta := event.Metadata

	sender, err := p.Profiles.ResolveProfile(ctx, meta.SendingPartnerID)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "resolve sending partner", err, nil)
	}
	receiver, err := p.Profiles.ResolveProfile(ctx, meta.ReceivingPartnerID)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "resolve receiving partner", err, nil)
	}

	partnership, err := p.Partnerships.ResolvePartnership(ctx, meta.SendingPartnerID, meta.ReceivingPartnerID)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "resolve partnership", err, nil)
	}

	transactionSetType, err := event.TransactionSets().DeriveType(meta.TransactionSet)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "determine transaction set type", err, nil)
	}

	configs := partnership.ConfigsForPair(meta.SendingPartnerID, meta.ReceivingPartnerID)
	candidates := make([]string, 0, len(configs))
	for _, cfg := range configs {
		candidates = append(candidates, cfg.GuideID)
	}

	guideID, err := p.Guides.ResolveGuide(ctx, candidates, transactionSetType)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "resolve guide", err, nil)
	}

	config, err := selectConfig(configs, guideID)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "select transaction set config", err, nil)
	}

	functionalCode, err := x12.FunctionalIdentifierCode(transactionSetType)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "functional identifier", err, nil)
	}

	// Control numbers are issued exactly once per event, strictly after
	// resolution succeeds; all destinations share them. They are consumed
	// even if delivery later fails.
	isaNumber, err := p.issue(ctx, controlnum.SegmentISA, config)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "issue ISA control number", err, nil)
	}
	gsNumber, err := p.issue(ctx, controlnum.SegmentGS, config)
	if err != nil {
		return nil, p.fatal(ctx, executionID, "issue GS control number", err, nil)
	}

	envelope := x12.NewEnvelope(x12.EnvelopeParams{
		SenderQualifier:          sender.InterchangeQualifier,
		SenderID:                 sender.InterchangeID,
		ReceiverQualifier:        receiver.InterchangeQualifier,
		ReceiverID:               receiver.InterchangeID,
		ApplicationSenderCode:    sender.ApplicationID,
		ApplicationReceiverCode:  receiver.ApplicationID,
		FunctionalIdentifierCode: functionalCode,
		UsageIndicatorCode:       config.UsageIndicatorCode,
		InterchangeControlNumber: isaNumber,
		GroupControlNumber:       gsNumber,
		IssuedAt:                 p.clock()(),
	})

	return &plan{
		transactionSetType: transactionSetType,
		guideID:            guideID,
		config:             config,
		envelope:           envelope,
	}, nil
}

func (p *Pipeline) issue(ctx context.Context, segment controlnum.Segment, cfg partner.TransactionSetConfig) (int64, error) {
	return p.ControlNumbers.Issue(ctx, controlnum.Scope{
		Segment:            segment,
		UsageIndicatorCode: cfg.UsageIndicatorCode,
		SendingPartnerID:   cfg.SendingPartnerID,
		ReceivingPartnerID: cfg.ReceivingPartnerID,
	})
}

// fanOut runs every destination attempt concurrently and waits for all of
// them to settle. Each goroutine writes only its own result slot; the
// join below is the only synchronization point.
func (p *Pipeline) fanOut(ctx context.Context, event *Event, pl *plan) []Result {
	results := make([]Result, len(pl.config.Destinations))

	var wg sync.WaitGroup
	for i, dest := range pl.config.Destinations {
		wg.Add(1)
		go func(i int, dest delivery.Destination) {
			defer wg.Done()
			defer func() {
				// Normalize panics from collaborator implementations into
				// this destination's result instead of tearing down siblings.
				if r := recover(); r != nil {
					results[i] = Result{Destination: dest, Error: fmt.Sprintf("panic: %v", r)}
				}
			}()
			confirmation, err := p.deliverOne(ctx, event, pl, dest)
			if err != nil {
				results[i] = Result{Destination: dest, Error: err.Error()}
				return
			}
			results[i] = Result{Destination: dest, Confirmation: confirmation}
		}(i, dest)
	}
	wg.Wait()

	return results
}

func (p *Pipeline) deliverOne(ctx context.Context, event *Event, pl *plan, dest delivery.Destination) (*delivery.Confirmation, error) {
	guideJSON := []byte(event.Payload)
	transactionSets := event.TransactionSets()

	if dest.MappingID != "" {
		mapped, err := p.Mapper.Map(ctx, dest.MappingID, event.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", translate.ErrMappingFailed, err)
		}
		var mappedSets x12.Payload
		if err := mappedSets.UnmarshalJSON(mapped); err != nil {
			return nil, fmt.Errorf("%w: output is not guide-shaped: %v", translate.ErrMappingFailed, err)
		}
		guideJSON = mapped
		transactionSets = mappedSets
	}

	if err := transactionSets.ValidateControlNumbers(); err != nil {
		return nil, err
	}

	ediText, err := p.Translator.Translate(ctx, guideJSON, pl.guideID, pl.envelope)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", translate.ErrTranslationFailed, err)
	}

	var objectKey string
	if dest.Type == delivery.TypeBucket {
		objectKey = bucketObjectKey(dest.Bucket.Path, pl.envelope.InterchangeHeader.ControlNumber, pl.transactionSetType)
	}

	return p.Deliverer.Deliver(ctx, dest, objectKey, ediText)
}

// bucketObjectKey derives a unique, traceable object name from the issued
// interchange control number.
func bucketObjectKey(configuredPath string, isaControlNumber int64, transactionSetType string) string {
	return path.Join(configuredPath, fmt.Sprintf("%d-%s.edi", isaControlNumber, transactionSetType))
}

func selectConfig(configs []partner.TransactionSetConfig, guideID string) (partner.TransactionSetConfig, error) {
	var matches []partner.TransactionSetConfig
	for _, cfg := range configs {
		if cfg.GuideID == guideID {
			matches = append(matches, cfg)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return partner.TransactionSetConfig{}, fmt.Errorf("%w: %s", ErrNoMatchingConfig, guideID)
	default:
		return partner.TransactionSetConfig{}, fmt.Errorf("%w: %s matches %d", ErrAmbiguousConfig, guideID, len(matches))
	}
}

// fatal records the failure against the execution id and wraps it.
func (p *Pipeline) fatal(ctx context.Context, executionID, stage string, err error, details any) error {
	ferr := &FatalError{ExecutionID: executionID, Stage: stage, Err: err}
	if lerr := p.Ledger.RecordFailure(ctx, executionID, ferr, details); lerr != nil {
		p.logger().Error("failed to record failure", "execution_id", executionID, "error", lerr)
	}
	return ferr
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func (p *Pipeline) clock() func() time.Time {
	if p.now != nil {
		return p.now
	}
	return time.Now
}
