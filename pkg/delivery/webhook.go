package delivery

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"
)

// Recommended TLS 1.2 cipher suites for webhook endpoints.
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// WebhookConfig contains webhook client configuration.
type WebhookConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	RootCAs         *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration

	// Retry policy for transient transport errors and 5xx responses.
	MaxRetries     int
	InitialBackoff time.Duration
}

// DefaultWebhookConfig returns a default webhook client configuration.
func DefaultWebhookConfig() *WebhookConfig {
	return &WebhookConfig{
		MinTLSVersion:   tls.VersionTLS12,
		MaxTLSVersion:   tls.VersionTLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		MaxRetries:      3,
		InitialBackoff:  time.Second,
	}
}

// WebhookClient posts EDI documents to webhook destinations over HTTPS.
type WebhookClient struct {
	client     *http.Client
	maxRetries uint64
	backoff    time.Duration
}

// NewWebhookClient creates a webhook client.
func NewWebhookClient(config *WebhookConfig) *WebhookClient {
	if config == nil {
		config = DefaultWebhookConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		RootCAs:      config.RootCAs,
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &WebhookClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		maxRetries: uint64(config.MaxRetries),
		backoff:    config.InitialBackoff,
	}
}

// Send implements WebhookSender. Transport errors and 5xx responses are
// retried with capped exponential backoff; 4xx responses are not, since
// the receiver has rejected the document.
func (c *WebhookClient) Send(ctx context.Context, url string, body []byte) (int, error) {
	var status int

	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/edi-x12")
		req.Header.Set("User-Agent", "go-x12/1.0")

		resp, err := c.client.Do(req)
		if err != nil {
			return retry.RetryableError(fmt.Errorf("failed to send request: %w", err))
		}
		defer resp.Body.Close()

		status = resp.StatusCode
		if resp.StatusCode >= 500 {
			respBody, _ := io.ReadAll(resp.Body)
			return retry.RetryableError(fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody)))
		}
		if resp.StatusCode >= 400 {
			respBody, _ := io.ReadAll(resp.Body)
			return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(respBody))
		}
		return nil
	})
	if err != nil {
		return status, err
	}
	return status, nil
}
