package outbound

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/x12"
)

var (
	// ErrMalformedEvent is returned when an event fails shape validation.
	ErrMalformedEvent = errors.New("malformed outbound event")
	// ErrNoMatchingConfig is returned when no transaction-set config
	// matches the resolved guide.
	ErrNoMatchingConfig = errors.New("no transaction set config matches resolved guide")
	// ErrAmbiguousConfig is returned when more than one config matches.
	ErrAmbiguousConfig = errors.New("multiple transaction set configs match resolved guide")
	// ErrDeliveryFailed marks a run where at least one destination was
	// rejected; the report still carries the full partition.
	ErrDeliveryFailed = errors.New("delivery failed for one or more destinations")
)

// Metadata identifies the partner pair and, optionally, the explicit
// transaction-set type of an event.
type Metadata struct {
	SendingPartnerID   string `json:"sendingPartnerId"`
	ReceivingPartnerID string `json:"receivingPartnerId"`
	TransactionSet     string `json:"transactionSet,omitempty"`
}

// Event is one inbound business event to be delivered outbound. Payload
// holds the raw JSON as received (single transaction-set object or an
// ordered array); the validated form is populated by ParseEvent.
type Event struct {
	Metadata Metadata        `json:"metadata"`
	Payload  json.RawMessage `json:"payload"`

	parsed x12.Payload
}

// ParseEvent validates raw event JSON into the typed form every
// downstream step operates on. Events that fail here never reach
// resolution or delivery.
func ParseEvent(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if err := ev.validate(); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (e *Event) validate() error {
	if e.Metadata.SendingPartnerID == "" {
		return fmt.Errorf("%w: metadata.sendingPartnerId is required", ErrMalformedEvent)
	}
	if e.Metadata.ReceivingPartnerID == "" {
		return fmt.Errorf("%w: metadata.receivingPartnerId is required", ErrMalformedEvent)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: payload is required", ErrMalformedEvent)
	}
	var pl x12.Payload
	if err := json.Unmarshal(e.Payload, &pl); err != nil {
		return fmt.Errorf("%w: payload: %v", ErrMalformedEvent, err)
	}
	if len(pl) == 0 {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, x12.ErrEmptyPayload)
	}
	if err := pl.ConsistentTypes(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	e.parsed = pl
	return nil
}

// TransactionSets returns the validated payload.
func (e *Event) TransactionSets() x12.Payload {
	return e.parsed
}

// Result is the outcome of delivering one translated document to one
// destination. Exactly one of Confirmation and Error is set.
type Result struct {
	Destination  delivery.Destination   `json:"destination"`
	Confirmation *delivery.Confirmation `json:"confirmation,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

// Rejected reports whether this destination's attempt failed.
func (r Result) Rejected() bool {
	return r.Error != ""
}

// Report is the aggregated outcome of one pipeline run.
type Report struct {
	ExecutionID     string   `json:"executionId"`
	StatusCode      int      `json:"statusCode"`
	DeliveryResults []Result `json:"deliveryResults"`
}

// Rejected returns the subset of results that failed.
func (r *Report) Rejected() []Result {
	var out []Result
	for _, res := range r.DeliveryResults {
		if res.Rejected() {
			out = append(out, res)
		}
	}
	return out
}

// FatalError aborts a whole execution before or during resolution; it is
// recorded once against the execution id. Per-destination failures are
// never wrapped in FatalError.
type FatalError struct {
	ExecutionID string
	Stage       string
	Err         error
}

// Error implements error.
func (e *FatalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FatalError) Unwrap() error {
	return e.Err
}
