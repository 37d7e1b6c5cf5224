// Package mongodb implements storage interfaces using MongoDB
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/edilane/go-x12/internal/storage"
	"github.com/edilane/go-x12/pkg/controlnum"
	"github.com/edilane/go-x12/pkg/ledger"
	"github.com/edilane/go-x12/pkg/partner"
)

// Store implements storage.Store using MongoDB
type Store struct {
	client *mongo.Client
	db     *mongo.Database

	// Collections
	profiles       *mongo.Collection
	partnerships   *mongo.Collection
	guides         *mongo.Collection
	controlNumbers *mongo.Collection
	executions     *mongo.Collection
	pollTargets    *mongo.Collection
}

// Config holds MongoDB connection settings
type Config struct {
	URI      string
	Database string
}

// NewStore creates a new MongoDB store
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("pinging MongoDB: %w", err)
	}

	db := client.Database(cfg.Database)

	s := &Store{
		client:         client,
		db:             db,
		profiles:       db.Collection("partner_profiles"),
		partnerships:   db.Collection("partnerships"),
		guides:         db.Collection("guides"),
		controlNumbers: db.Collection("control_numbers"),
		executions:     db.Collection("executions"),
		pollTargets:    db.Collection("poll_targets"),
	}

	if err := s.createIndexes(ctx); err != nil {
		return nil, fmt.Errorf("creating indexes: %w", err)
	}

	return s, nil
}

func (s *Store) createIndexes(ctx context.Context) error {
	_, err := s.profiles.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "partner_id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating profile indexes: %w", err)
	}

	_, err = s.executions.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("creating execution indexes: %w", err)
	}

	_, err = s.pollTargets.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "enabled", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("creating poll target indexes: %w", err)
	}

	return nil
}

// ResolveProfile implements partner.ProfileResolver.
func (s *Store) ResolveProfile(ctx context.Context, partnerID string) (*partner.Profile, error) {
	var profile partner.Profile
	err := s.profiles.FindOne(ctx, bson.M{"partner_id": partnerID}).Decode(&profile)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", partner.ErrProfileNotFound, partnerID)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving profile %s: %w", partnerID, err)
	}
	return &profile, nil
}

// UpsertProfile implements storage.ProfileStore.
func (s *Store) UpsertProfile(ctx context.Context, profile *partner.Profile) error {
	_, err := s.profiles.ReplaceOne(ctx,
		bson.M{"partner_id": profile.PartnerID},
		profile,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting profile %s: %w", profile.PartnerID, err)
	}
	return nil
}

// partnershipDoc stores a partnership under its pair key.
type partnershipDoc struct {
	Key             string                         `bson:"_id"`
	TransactionSets []partner.TransactionSetConfig `bson:"transaction_sets"`
}

// ResolvePartnership implements partner.PartnershipResolver. The record
// may be stored under either party's perspective, so the reverse key is
// tried whenever the first lookup yields nothing. Lookup errors on the
// first key also fall through to the second; a transient store outage is
// therefore indistinguishable from "stored under the other key".
func (s *Store) ResolvePartnership(ctx context.Context, sendingPartnerID, receivingPartnerID string) (*partner.Partnership, error) {
	primary := partner.Key(sendingPartnerID, receivingPartnerID)
	if ps, err := s.findPartnership(ctx, primary); err == nil {
		return ps, nil
	}

	fallback := partner.ReverseKey(sendingPartnerID, receivingPartnerID)
	ps, err := s.findPartnership(ctx, fallback)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", partner.ErrPartnershipNotFound, primary)
	}
	if err != nil {
		return nil, fmt.Errorf("resolving partnership %s: %w", primary, err)
	}
	return ps, nil
}

func (s *Store) findPartnership(ctx context.Context, key string) (*partner.Partnership, error) {
	var doc partnershipDoc
	if err := s.partnerships.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		return nil, err
	}
	return &partner.Partnership{ID: doc.Key, TransactionSets: doc.TransactionSets}, nil
}

// UpsertPartnership implements storage.PartnershipStore.
func (s *Store) UpsertPartnership(ctx context.Context, sendingPartnerID, receivingPartnerID string, ps *partner.Partnership) error {
	key := partner.Key(sendingPartnerID, receivingPartnerID)
	doc := partnershipDoc{Key: key, TransactionSets: ps.TransactionSets}
	_, err := s.partnerships.ReplaceOne(ctx, bson.M{"_id": key}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting partnership %s: %w", key, err)
	}
	return nil
}

// guideDoc registers one guide id for a transaction-set type.
type guideDoc struct {
	GuideID            string `bson:"_id"`
	TransactionSetType string `bson:"transaction_set_type"`
}

// ResolveGuide implements partner.GuideResolver: exactly one of the
// candidate guides must be registered for the requested type.
func (s *Store) ResolveGuide(ctx context.Context, candidateGuideIDs []string, transactionSetType string) (string, error) {
	if len(candidateGuideIDs) == 0 {
		return "", fmt.Errorf("%w: no candidate guides", partner.ErrGuideNotResolved)
	}

	cursor, err := s.guides.Find(ctx, bson.M{
		"_id":                  bson.M{"$in": candidateGuideIDs},
		"transaction_set_type": transactionSetType,
	})
	if err != nil {
		return "", fmt.Errorf("resolving guide for %s: %w", transactionSetType, err)
	}
	defer cursor.Close(ctx)

	var matches []guideDoc
	if err := cursor.All(ctx, &matches); err != nil {
		return "", fmt.Errorf("decoding guides: %w", err)
	}

	switch len(matches) {
	case 1:
		return matches[0].GuideID, nil
	case 0:
		return "", fmt.Errorf("%w: no candidate guide handles %s", partner.ErrGuideNotResolved, transactionSetType)
	default:
		return "", fmt.Errorf("%w: %d candidate guides handle %s", partner.ErrGuideNotResolved, len(matches), transactionSetType)
	}
}

// UpsertGuide implements storage.GuideStore.
func (s *Store) UpsertGuide(ctx context.Context, guideID, transactionSetType string) error {
	doc := guideDoc{GuideID: guideID, TransactionSetType: transactionSetType}
	_, err := s.guides.ReplaceOne(ctx, bson.M{"_id": guideID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting guide %s: %w", guideID, err)
	}
	return nil
}

// controlNumberDoc holds one scope's sequence counter.
type controlNumberDoc struct {
	Key   string `bson:"_id"`
	Value int64  `bson:"value"`
}

// Issue implements controlnum.Issuer with an atomic per-scope increment.
func (s *Store) Issue(ctx context.Context, scope controlnum.Scope) (int64, error) {
	var doc controlNumberDoc
	err := s.controlNumbers.FindOneAndUpdate(ctx,
		bson.M{"_id": scope.Key()},
		bson.M{"$inc": bson.M{"value": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("issuing control number for %s: %w", scope.Key(), err)
	}
	return doc.Value, nil
}

// executionDoc is one execution ledger entry.
type executionDoc struct {
	ExecutionID string        `bson:"_id"`
	Status      ledger.Status `bson:"status"`
	Input       any           `bson:"input,omitempty"`
	Error       string        `bson:"error,omitempty"`
	Details     any           `bson:"details,omitempty"`
	StartedAt   time.Time     `bson:"started_at"`
	FinishedAt  time.Time     `bson:"finished_at,omitempty"`
}

// RecordStart implements ledger.Ledger. Starting the same execution id
// twice is a no-op, keeping recording idempotent.
func (s *Store) RecordStart(ctx context.Context, executionID string, input any) error {
	_, err := s.executions.UpdateOne(ctx,
		bson.M{"_id": executionID},
		bson.M{"$setOnInsert": executionDoc{
			ExecutionID: executionID,
			Status:      ledger.StatusStarted,
			Input:       input,
			StartedAt:   time.Now(),
		}},
		options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("recording execution start %s: %w", executionID, err)
	}
	return nil
}

// RecordSuccess implements ledger.Ledger.
func (s *Store) RecordSuccess(ctx context.Context, executionID string) error {
	_, err := s.executions.UpdateOne(ctx,
		bson.M{"_id": executionID},
		bson.M{"$set": bson.M{
			"status":      ledger.StatusSucceeded,
			"finished_at": time.Now(),
		}})
	if err != nil {
		return fmt.Errorf("recording execution success %s: %w", executionID, err)
	}
	return nil
}

// RecordFailure implements ledger.Ledger.
func (s *Store) RecordFailure(ctx context.Context, executionID string, execErr error, details any) error {
	update := bson.M{
		"status":      ledger.StatusFailed,
		"finished_at": time.Now(),
	}
	if execErr != nil {
		update["error"] = execErr.Error()
	}
	if details != nil {
		update["details"] = details
	}
	_, err := s.executions.UpdateOne(ctx, bson.M{"_id": executionID}, bson.M{"$set": update})
	if err != nil {
		return fmt.Errorf("recording execution failure %s: %w", executionID, err)
	}
	return nil
}

// ListPollTargets implements storage.PollTargetStore, returning enabled
// targets only.
func (s *Store) ListPollTargets(ctx context.Context) ([]*storage.PollTarget, error) {
	cursor, err := s.pollTargets.Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, fmt.Errorf("listing poll targets: %w", err)
	}
	defer cursor.Close(ctx)

	var targets []*storage.PollTarget
	if err := cursor.All(ctx, &targets); err != nil {
		return nil, fmt.Errorf("decoding poll targets: %w", err)
	}
	return targets, nil
}

// UpsertPollTarget implements storage.PollTargetStore.
func (s *Store) UpsertPollTarget(ctx context.Context, target *storage.PollTarget) error {
	_, err := s.pollTargets.ReplaceOne(ctx, bson.M{"_id": target.ID}, target, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting poll target %s: %w", target.ID, err)
	}
	return nil
}

// UpdateWatermark implements storage.PollTargetStore.
func (s *Store) UpdateWatermark(ctx context.Context, targetID string, watermark time.Time) error {
	_, err := s.pollTargets.UpdateOne(ctx,
		bson.M{"_id": targetID},
		bson.M{"$set": bson.M{"poll.last_poll_time": watermark}})
	if err != nil {
		return fmt.Errorf("updating watermark for %s: %w", targetID, err)
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}
