package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edilane/go-x12/pkg/controlnum"
	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/ledger"
	"github.com/edilane/go-x12/pkg/outbound"
	"github.com/edilane/go-x12/pkg/partner"
	"github.com/edilane/go-x12/pkg/translate"
	"github.com/edilane/go-x12/pkg/x12"
)

type stubDeliverer struct {
	err error
}

func (s stubDeliverer) Deliver(ctx context.Context, dest delivery.Destination, objectKey string, ediText string) (*delivery.Confirmation, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &delivery.Confirmation{Type: dest.Type, ObjectKey: objectKey}, nil
}

func testServer(t *testing.T, deliverer outbound.Deliverer) *Server {
	t.Helper()

	resolver := partner.NewStaticResolver()
	resolver.RegisterProfile(&partner.Profile{PartnerID: "acme", InterchangeQualifier: "ZZ", InterchangeID: "ACME", ApplicationID: "ACMEAPP"})
	resolver.RegisterProfile(&partner.Profile{PartnerID: "widgetco", InterchangeQualifier: "14", InterchangeID: "WIDGETCO", ApplicationID: "WIDGETAPP"})
	resolver.RegisterPartnership("acme", "widgetco", &partner.Partnership{
		ID: "acme|widgetco",
		TransactionSets: []partner.TransactionSetConfig{{
			GuideID:            "guide-850-v1",
			UsageIndicatorCode: x12.UsageTest,
			SendingPartnerID:   "acme",
			ReceivingPartnerID: "widgetco",
			Destinations: []delivery.Destination{{
				Type:   delivery.TypeBucket,
				Bucket: &delivery.BucketDestination{BucketName: "edi", Path: "widgetco"},
			}},
		}},
	})
	resolver.RegisterGuide("guide-850-v1", "850")

	pipeline := &outbound.Pipeline{
		Profiles:       resolver,
		Partnerships:   resolver,
		Guides:         resolver,
		ControlNumbers: controlnum.NewMemoryIssuer(),
		Translator: translate.TranslatorFunc(func(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
			return "ISA*~", nil
		}),
		Deliverer: deliverer,
		Ledger:    ledger.NewMemoryLedger(),
	}
	return New(pipeline, nil)
}

func eventBody(sender, receiver string) string {
	return fmt.Sprintf(`{"metadata":{"sendingPartnerId":%q,"receivingPartnerId":%q},"payload":{"heading":{"transaction_set_header_ST":{"transaction_set_identifier_code_01":"850","transaction_set_control_number_02":"1"}}}}`, sender, receiver)
}

func TestHandleEvent_Success(t *testing.T) {
	s := testServer(t, stubDeliverer{})

	req := httptest.NewRequest("POST", "/events", strings.NewReader(eventBody("acme", "widgetco")))
	rec := httptest.NewRecorder()
	s.handleEvent(rec, req)

	require.Equal(t, 200, rec.Code)

	var report outbound.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.NotEmpty(t, report.ExecutionID)
	require.Len(t, report.DeliveryResults, 1)
	assert.Equal(t, "widgetco/1-850.edi", report.DeliveryResults[0].Confirmation.ObjectKey)
}

func TestHandleEvent_MalformedBody(t *testing.T) {
	s := testServer(t, stubDeliverer{})

	req := httptest.NewRequest("POST", "/events", strings.NewReader(`{"metadata":{}}`))
	rec := httptest.NewRecorder()
	s.handleEvent(rec, req)

	assert.Equal(t, 400, rec.Code)
}

func TestHandleEvent_ResolutionFailure(t *testing.T) {
	s := testServer(t, stubDeliverer{})

	req := httptest.NewRequest("POST", "/events", strings.NewReader(eventBody("nobody", "widgetco")))
	rec := httptest.NewRecorder()
	s.handleEvent(rec, req)

	assert.Equal(t, 422, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["executionId"])
	assert.Contains(t, body["error"], "resolve sending partner")
}

func TestHandleEvent_DeliveryFailure(t *testing.T) {
	s := testServer(t, stubDeliverer{err: errors.New("bucket unavailable")})

	req := httptest.NewRequest("POST", "/events", strings.NewReader(eventBody("acme", "widgetco")))
	rec := httptest.NewRecorder()
	s.handleEvent(rec, req)

	// Partial failure: the full report comes back with the 500.
	require.Equal(t, 500, rec.Code)

	var report outbound.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report.DeliveryResults, 1)
	assert.Contains(t, report.DeliveryResults[0].Error, "bucket unavailable")
}

func TestHandleHealth(t *testing.T) {
	s := testServer(t, stubDeliverer{})

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}