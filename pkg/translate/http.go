package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/edilane/go-x12/pkg/x12"
)

// ServiceConfig holds the address of a remote mapping or translation
// service.
type ServiceConfig struct {
	URL     string
	Timeout time.Duration
}

// HTTPService invokes remote mapping and translation services over HTTP.
// It implements both Mapper and Translator.
type HTTPService struct {
	baseURL string
	client  *http.Client
}

// NewHTTPService creates a client for the service at cfg.URL.
func NewHTTPService(cfg *ServiceConfig) *HTTPService {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPService{
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Map implements Mapper: POST /mappings/{mappingID} with the raw input
// JSON; the response body is the mapped JSON.
func (s *HTTPService) Map(ctx context.Context, mappingID string, input []byte) ([]byte, error) {
	body, err := s.post(ctx, s.baseURL+"/mappings/"+mappingID, input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMappingFailed, err)
	}
	return body, nil
}

// translateRequest is the wire shape of a translation invocation.
type translateRequest struct {
	GuideID  string          `json:"guideId"`
	Envelope *x12.Envelope   `json:"envelope"`
	Payload  json.RawMessage `json:"payload"`
}

type translateResponse struct {
	EDI string `json:"edi"`
}

// Translate implements Translator: POST /translate with the guide JSON
// and envelope; the response carries the serialized EDI text.
func (s *HTTPService) Translate(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
	reqBody, err := json.Marshal(translateRequest{
		GuideID:  guideID,
		Envelope: envelope,
		Payload:  guideJSON,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encoding request: %v", ErrTranslationFailed, err)
	}

	body, err := s.post(ctx, s.baseURL+"/translate", reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTranslationFailed, err)
	}

	var resp translateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %v", ErrTranslationFailed, err)
	}
	if resp.EDI == "" {
		return "", fmt.Errorf("%w: empty document returned", ErrTranslationFailed)
	}
	return resp.EDI, nil
}

func (s *HTTPService) post(ctx context.Context, url string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}
