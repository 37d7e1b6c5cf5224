package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edilane/go-x12/pkg/controlnum"
	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/ledger"
	"github.com/edilane/go-x12/pkg/partner"
	"github.com/edilane/go-x12/pkg/translate"
	"github.com/edilane/go-x12/pkg/x12"
)

// countingIssuer wraps the memory issuer to assert issuance counts.
type countingIssuer struct {
	inner *controlnum.MemoryIssuer
	calls atomic.Int32
}

func (c *countingIssuer) Issue(ctx context.Context, scope controlnum.Scope) (int64, error) {
	c.calls.Add(1)
	return c.inner.Issue(ctx, scope)
}

type failingIssuer struct{}

func (failingIssuer) Issue(ctx context.Context, scope controlnum.Scope) (int64, error) {
	return 0, errors.New("sequence store unavailable")
}

// recordingDeliverer captures every delivery and can fail selected
// destinations.
type recordingDeliverer struct {
	mu        sync.Mutex
	delivered []recordedDelivery
	failFor   map[string]error // bucket path or webhook url -> error
}

type recordedDelivery struct {
	dest      delivery.Destination
	objectKey string
	ediText   string
}

func (r *recordingDeliverer) Deliver(ctx context.Context, dest delivery.Destination, objectKey string, ediText string) (*delivery.Confirmation, error) {
	key := dest.MappingID
	switch dest.Type {
	case delivery.TypeBucket:
		key = dest.Bucket.Path
	case delivery.TypeWebhook:
		key = dest.Webhook.URL
	}
	if err, ok := r.failFor[key]; ok {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delivered = append(r.delivered, recordedDelivery{dest: dest, objectKey: objectKey, ediText: ediText})
	return &delivery.Confirmation{Type: dest.Type, ObjectKey: objectKey}, nil
}

func transactionSetJSON(code string, controlNumber string) string {
	return fmt.Sprintf(`{"heading":{"transaction_set_header_ST":{"transaction_set_identifier_code_01":%q,"transaction_set_control_number_02":%q}}}`, code, controlNumber)
}

func eventJSON(t *testing.T, payload string) []byte {
	t.Helper()
	return []byte(fmt.Sprintf(`{"metadata":{"sendingPartnerId":"acme","receivingPartnerId":"widgetco"},"payload":%s}`, payload))
}

func identityTranslator() translate.Translator {
	return translate.TranslatorFunc(func(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
		return fmt.Sprintf("ISA|%d|%s", envelope.InterchangeHeader.ControlNumber, guideID), nil
	})
}

func testPipeline(t *testing.T, destinations []delivery.Destination) (*Pipeline, *recordingDeliverer, *countingIssuer, *ledger.MemoryLedger) {
	t.Helper()

	resolver := partner.NewStaticResolver()
	resolver.RegisterProfile(&partner.Profile{
		PartnerID:            "acme",
		InterchangeQualifier: "ZZ",
		InterchangeID:        "ACME",
		ApplicationID:        "ACMEAPP",
	})
	resolver.RegisterProfile(&partner.Profile{
		PartnerID:            "widgetco",
		InterchangeQualifier: "14",
		InterchangeID:        "WIDGETCO",
		ApplicationID:        "WIDGETAPP",
	})
	resolver.RegisterPartnership("acme", "widgetco", &partner.Partnership{
		ID: "acme|widgetco",
		TransactionSets: []partner.TransactionSetConfig{{
			GuideID:            "guide-850-v1",
			UsageIndicatorCode: x12.UsageTest,
			SendingPartnerID:   "acme",
			ReceivingPartnerID: "widgetco",
			Destinations:       destinations,
		}},
	})
	resolver.RegisterGuide("guide-850-v1", "850")

	deliverer := &recordingDeliverer{failFor: map[string]error{}}
	issuer := &countingIssuer{inner: controlnum.NewMemoryIssuer()}
	lgr := ledger.NewMemoryLedger()

	return &Pipeline{
		Profiles:       resolver,
		Partnerships:   resolver,
		Guides:         resolver,
		ControlNumbers: issuer,
		Mapper: translate.MapperFunc(func(ctx context.Context, mappingID string, input []byte) ([]byte, error) {
			return input, nil
		}),
		Translator: identityTranslator(),
		Deliverer:  deliverer,
		Ledger:     lgr,
	}, deliverer, issuer, lgr
}

func bucketDest(path string) delivery.Destination {
	return delivery.Destination{
		Type:   delivery.TypeBucket,
		Bucket: &delivery.BucketDestination{BucketName: "edi", Path: path},
	}
}

func webhookDest(url string) delivery.Destination {
	return delivery.Destination{
		Type:    delivery.TypeWebhook,
		Webhook: &delivery.WebhookDestination{URL: url},
	}
}

func TestPipeline_SingleDestinationSuccess(t *testing.T) {
	p, deliverer, issuer, lgr := testPipeline(t, []delivery.Destination{bucketDest("widgetco")})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	require.NoError(t, err)
	require.NotNil(t, report)

	assert.Equal(t, 200, report.StatusCode)
	require.Len(t, report.DeliveryResults, 1)
	assert.False(t, report.DeliveryResults[0].Rejected())

	// The object key folds the configured path, the issued ISA number, and
	// the transaction-set type together.
	require.Len(t, deliverer.delivered, 1)
	assert.Equal(t, "widgetco/1-850.edi", deliverer.delivered[0].objectKey)

	// One ISA number plus one GS number for the whole event.
	assert.Equal(t, int32(2), issuer.calls.Load())

	entry, ok := lgr.Entry(report.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusSucceeded, entry.Status)
}

func TestPipeline_ControlNumbersSharedAcrossDestinations(t *testing.T) {
	p, deliverer, issuer, _ := testPipeline(t, []delivery.Destination{
		bucketDest("a"),
		bucketDest("b"),
		webhookDest("https://partner.example/edi"),
	})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	require.NoError(t, err)
	assert.Len(t, report.DeliveryResults, 3)

	// Still exactly one ISA + one GS regardless of fan-out width.
	assert.Equal(t, int32(2), issuer.calls.Load())

	// Every destination received the same interchange number.
	for _, d := range deliverer.delivered {
		assert.Equal(t, "ISA|1|guide-850-v1", d.ediText)
	}
}

func TestPipeline_MissingProfileIsFatal(t *testing.T) {
	p, deliverer, issuer, lgr := testPipeline(t, []delivery.Destination{bucketDest("x")})

	raw := []byte(`{"metadata":{"sendingPartnerId":"nobody","receivingPartnerId":"widgetco"},"payload":` +
		transactionSetJSON("850", "1") + `}`)
	event, err := ParseEvent(raw)
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.Nil(t, report)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, partner.ErrProfileNotFound)
	assert.Equal(t, "resolve sending partner", fatal.Stage)

	// Resolution failed before issuance, so no control numbers were burned
	// and nothing was delivered.
	assert.Equal(t, int32(0), issuer.calls.Load())
	assert.Empty(t, deliverer.delivered)

	entry, ok := lgr.Entry(fatal.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusFailed, entry.Status)
}

func TestPipeline_ReversedPairHasNoConfigs(t *testing.T) {
	p, _, _, _ := testPipeline(t, []delivery.Destination{bucketDest("x")})

	raw := []byte(`{"metadata":{"sendingPartnerId":"widgetco","receivingPartnerId":"acme"},"payload":` +
		transactionSetJSON("850", "1") + `}`)
	event, err := ParseEvent(raw)
	require.NoError(t, err)

	// The reversed pair resolves the partnership through the fallback key,
	// but none of its configs belong to this direction, so no guide can be
	// chosen.
	_, err = p.Run(context.Background(), event)
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.ErrorIs(t, err, partner.ErrGuideNotResolved)
	assert.Equal(t, "resolve guide", fatal.Stage)
}

func TestPipeline_IssuerFailureIsFatal(t *testing.T) {
	p, deliverer, _, _ := testPipeline(t, []delivery.Destination{bucketDest("x")})
	p.ControlNumbers = failingIssuer{}

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.Nil(t, report)

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "issue ISA control number", fatal.Stage)
	assert.Empty(t, deliverer.delivered)
}

func TestPipeline_DestinationFailureIsolated(t *testing.T) {
	p, deliverer, _, lgr := testPipeline(t, []delivery.Destination{
		bucketDest("good"),
		webhookDest("https://down.example/edi"),
		bucketDest("also-good"),
	})
	deliverer.failFor["https://down.example/edi"] = errors.New("connection refused")

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	require.NotNil(t, report, "partial failures still return the full report")
	assert.ErrorIs(t, err, ErrDeliveryFailed)

	assert.Equal(t, 500, report.StatusCode)
	require.Len(t, report.DeliveryResults, 3)

	// Result order matches the configured destination order.
	assert.False(t, report.DeliveryResults[0].Rejected())
	assert.True(t, report.DeliveryResults[1].Rejected())
	assert.Contains(t, report.DeliveryResults[1].Error, "connection refused")
	assert.False(t, report.DeliveryResults[2].Rejected())

	// The sibling deliveries completed and are not rolled back.
	assert.Len(t, deliverer.delivered, 2)

	entry, ok := lgr.Entry(report.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, ledger.StatusFailed, entry.Status)
	assert.NotNil(t, entry.Details)
}

func TestPipeline_MappingAppliedPerDestination(t *testing.T) {
	mapped := bucketDest("mapped")
	mapped.MappingID = "uppercase-v2"
	p, _, _, _ := testPipeline(t, []delivery.Destination{mapped, bucketDest("plain")})

	var mappedIDs []string
	var mu sync.Mutex
	p.Mapper = translate.MapperFunc(func(ctx context.Context, mappingID string, input []byte) ([]byte, error) {
		mu.Lock()
		mappedIDs = append(mappedIDs, mappingID)
		mu.Unlock()
		return input, nil
	})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	_, err = p.Run(context.Background(), event)
	require.NoError(t, err)

	// Only the destination carrying a mapping id invokes the mapper.
	assert.Equal(t, []string{"uppercase-v2"}, mappedIDs)
}

func TestPipeline_MappingFailureIsolated(t *testing.T) {
	mapped := bucketDest("mapped")
	mapped.MappingID = "broken"
	p, deliverer, _, _ := testPipeline(t, []delivery.Destination{mapped, bucketDest("plain")})

	p.Mapper = translate.MapperFunc(func(ctx context.Context, mappingID string, input []byte) ([]byte, error) {
		return nil, errors.New("mapping timed out")
	})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.Len(t, report.DeliveryResults, 2)

	assert.True(t, report.DeliveryResults[0].Rejected())
	assert.Contains(t, report.DeliveryResults[0].Error, translate.ErrMappingFailed.Error())
	assert.False(t, report.DeliveryResults[1].Rejected())
	assert.Len(t, deliverer.delivered, 1)
}

func TestPipeline_ControlNumberSequenceRejectedPerDestination(t *testing.T) {
	p, deliverer, _, _ := testPipeline(t, []delivery.Destination{bucketDest("x")})

	payload := fmt.Sprintf("[%s,%s]",
		transactionSetJSON("850", "1"),
		transactionSetJSON("850", "3"))
	event, err := ParseEvent(eventJSON(t, payload))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.Len(t, report.DeliveryResults, 1)
	assert.Contains(t, report.DeliveryResults[0].Error, x12.ErrControlNumberSequence.Error())
	assert.Empty(t, deliverer.delivered)
}

func TestPipeline_TranslationFailureIsolated(t *testing.T) {
	p, _, _, _ := testPipeline(t, []delivery.Destination{bucketDest("x")})
	p.Translator = translate.TranslatorFunc(func(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
		return "", errors.New("guide schema mismatch")
	})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.Len(t, report.DeliveryResults, 1)
	assert.Contains(t, report.DeliveryResults[0].Error, translate.ErrTranslationFailed.Error())
}

func TestPipeline_PanicInCollaboratorContained(t *testing.T) {
	p, _, _, _ := testPipeline(t, []delivery.Destination{bucketDest("a"), bucketDest("b")})
	p.Translator = translate.TranslatorFunc(func(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
		panic("translator bug")
	})

	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	report, err := p.Run(context.Background(), event)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	require.Len(t, report.DeliveryResults, 2)
	for _, res := range report.DeliveryResults {
		assert.Contains(t, res.Error, "panic")
	}
}

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{
			name: "single object payload",
			raw:  string(eventJSON(t, transactionSetJSON("850", "1"))),
		},
		{
			name: "array payload",
			raw:  string(eventJSON(t, "["+transactionSetJSON("850", "1")+"]")),
		},
		{
			name:    "missing sender",
			raw:     `{"metadata":{"receivingPartnerId":"b"},"payload":{}}`,
			wantErr: true,
		},
		{
			name:    "missing receiver",
			raw:     `{"metadata":{"sendingPartnerId":"a"},"payload":{}}`,
			wantErr: true,
		},
		{
			name:    "missing payload",
			raw:     `{"metadata":{"sendingPartnerId":"a","receivingPartnerId":"b"}}`,
			wantErr: true,
		},
		{
			name:    "empty payload array",
			raw:     `{"metadata":{"sendingPartnerId":"a","receivingPartnerId":"b"},"payload":[]}`,
			wantErr: true,
		},
		{
			name: "mixed transaction set types",
			raw: `{"metadata":{"sendingPartnerId":"a","receivingPartnerId":"b"},"payload":[` +
				transactionSetJSON("850", "1") + "," + transactionSetJSON("810", "2") + `]}`,
			wantErr: true,
		},
		{
			name:    "not json",
			raw:     `{{`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, ev.TransactionSets())
		})
	}
}

func TestReportRejected(t *testing.T) {
	report := &Report{DeliveryResults: []Result{
		{Error: "boom"},
		{Confirmation: &delivery.Confirmation{Type: delivery.TypeBucket}},
		{Error: "bang"},
	}}
	assert.Len(t, report.Rejected(), 2)
}

func TestFatalErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	fatal := &FatalError{ExecutionID: "x", Stage: "resolve", Err: cause}
	assert.ErrorIs(t, fatal, cause)
	assert.Contains(t, fatal.Error(), "resolve")
}

func TestEventRoundTripsThroughJSON(t *testing.T) {
	event, err := ParseEvent(eventJSON(t, transactionSetJSON("850", "1")))
	require.NoError(t, err)

	out, err := json.Marshal(event)
	require.NoError(t, err)

	again, err := ParseEvent(out)
	require.NoError(t, err)
	assert.Equal(t, event.Metadata, again.Metadata)
}
