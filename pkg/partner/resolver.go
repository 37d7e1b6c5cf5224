package partner

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrProfileNotFound is returned when a partner has no profile.
	ErrProfileNotFound = errors.New("partner profile not found")
	// ErrPartnershipNotFound is returned when neither key order resolves.
	ErrPartnershipNotFound = errors.New("partnership not found")
	// ErrGuideNotResolved is returned when no authoritative guide can be
	// chosen from the candidates.
	ErrGuideNotResolved = errors.New("guide not resolved")
)

// ProfileResolver maps partner identifiers to partner profiles.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, partnerID string) (*Profile, error)
}

// PartnershipResolver maps an ordered partner pair to its partnership
// record. Implementations must look up the sender|receiver key first and
// fall back to receiver|sender.
type PartnershipResolver interface {
	ResolvePartnership(ctx context.Context, sendingPartnerID, receivingPartnerID string) (*Partnership, error)
}

// GuideResolver selects the authoritative guide for a transaction-set
// type from a candidate list. Ambiguous or empty resolution is an error.
type GuideResolver interface {
	ResolveGuide(ctx context.Context, candidateGuideIDs []string, transactionSetType string) (string, error)
}

// StaticResolver implements all three resolver contracts from in-memory
// registrations. Suitable for point-to-point deployments and tests; the
// MongoDB-backed store provides the production implementation.
type StaticResolver struct {
	mu           sync.RWMutex
	profiles     map[string]*Profile
	partnerships map[string]*Partnership
	guides       map[string]string // guideID -> transactionSetType
}

// NewStaticResolver creates an empty static resolver.
func NewStaticResolver() *StaticResolver {
	return &StaticResolver{
		profiles:     make(map[string]*Profile),
		partnerships: make(map[string]*Partnership),
		guides:       make(map[string]string),
	}
}

// RegisterProfile registers a partner profile.
func (r *StaticResolver) RegisterProfile(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.PartnerID] = p
}

// RegisterPartnership registers a partnership under the given pair's key.
func (r *StaticResolver) RegisterPartnership(sendingPartnerID, receivingPartnerID string, ps *Partnership) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.partnerships[Key(sendingPartnerID, receivingPartnerID)] = ps
}

// RegisterGuide registers a guide id for a transaction-set type.
func (r *StaticResolver) RegisterGuide(guideID, transactionSetType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.guides[guideID] = transactionSetType
}

// ResolveProfile implements ProfileResolver.
func (r *StaticResolver) ResolveProfile(ctx context.Context, partnerID string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[partnerID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, partnerID)
	}
	return p, nil
}

// ResolvePartnership implements PartnershipResolver with the bidirectional
// key lookup.
func (r *StaticResolver) ResolvePartnership(ctx context.Context, sendingPartnerID, receivingPartnerID string) (*Partnership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ps, ok := r.partnerships[Key(sendingPartnerID, receivingPartnerID)]; ok {
		return ps, nil
	}
	if ps, ok := r.partnerships[ReverseKey(sendingPartnerID, receivingPartnerID)]; ok {
		return ps, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrPartnershipNotFound, Key(sendingPartnerID, receivingPartnerID))
}

// ResolveGuide implements GuideResolver: exactly one candidate must be
// registered for the requested transaction-set type.
func (r *StaticResolver) ResolveGuide(ctx context.Context, candidateGuideIDs []string, transactionSetType string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var matches []string
	for _, id := range candidateGuideIDs {
		if r.guides[id] == transactionSetType {
			matches = append(matches, id)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return "", fmt.Errorf("%w: no candidate guide handles %s", ErrGuideNotResolved, transactionSetType)
	default:
		return "", fmt.Errorf("%w: %d candidate guides handle %s", ErrGuideNotResolved, len(matches), transactionSetType)
	}
}
