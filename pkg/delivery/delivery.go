// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package delivery implements the outbound destination types and their
// transports: S3-compatible object storage buckets and HTTPS webhooks.
//
// Destination is a closed tagged variant; the dispatcher rejects unknown
// destination types at the boundary rather than defaulting.
package delivery

import (
	"context"
	"errors"
	"fmt"
)

// Type discriminates the destination variant.
type Type string

const (
	TypeBucket  Type = "bucket"
	TypeWebhook Type = "webhook"
)

// ErrUnsupportedDestination is returned for destination types outside the
// closed set.
var ErrUnsupportedDestination = errors.New("unsupported destination type")

// BucketDestination targets an object storage bucket. Path is the key
// prefix objects are written under.
type BucketDestination struct {
	BucketName string `json:"bucketName" bson:"bucket_name"`
	Path       string `json:"path" bson:"path"`
}

// WebhookDestination targets an HTTPS endpoint.
type WebhookDestination struct {
	URL string `json:"url" bson:"url"`
}

// Destination is one delivery target within a transaction-set config.
// MappingID, when set, names the transformation applied to the event
// payload before translation.
type Destination struct {
	Type      Type                `json:"type" bson:"type"`
	MappingID string              `json:"mappingId,omitempty" bson:"mapping_id,omitempty"`
	Bucket    *BucketDestination  `json:"bucket,omitempty" bson:"bucket,omitempty"`
	Webhook   *WebhookDestination `json:"webhook,omitempty" bson:"webhook,omitempty"`
}

// Validate checks the variant's shape.
func (d Destination) Validate() error {
	switch d.Type {
	case TypeBucket:
		if d.Bucket == nil || d.Bucket.BucketName == "" {
			return fmt.Errorf("bucket destination requires a bucket name")
		}
	case TypeWebhook:
		if d.Webhook == nil || d.Webhook.URL == "" {
			return fmt.Errorf("webhook destination requires a url")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedDestination, d.Type)
	}
	return nil
}

// Confirmation is the destination-specific success value of one delivery.
type Confirmation struct {
	Type Type `json:"type"`

	// Bucket deliveries
	BucketName string `json:"bucketName,omitempty"`
	ObjectKey  string `json:"objectKey,omitempty"`

	// Webhook deliveries
	StatusCode int `json:"statusCode,omitempty"`
}

// ObjectWriter writes one object to a bucket.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// WebhookSender posts a serialized document to a webhook endpoint and
// returns the response status code.
type WebhookSender interface {
	Send(ctx context.Context, url string, body []byte) (int, error)
}

// Dispatcher routes a delivery to the transport matching the destination
// variant.
type Dispatcher struct {
	Objects  ObjectWriter
	Webhooks WebhookSender
}

// Deliver sends ediText to the destination. For bucket destinations,
// objectKey is the full key computed by the caller; the configured path
// prefix is already folded in.
func (d *Dispatcher) Deliver(ctx context.Context, dest Destination, objectKey string, ediText string) (*Confirmation, error) {
	if err := dest.Validate(); err != nil {
		return nil, err
	}
	switch dest.Type {
	case TypeBucket:
		if d.Objects == nil {
			return nil, errors.New("no object writer configured")
		}
		if err := d.Objects.PutObject(ctx, dest.Bucket.BucketName, objectKey, []byte(ediText)); err != nil {
			return nil, fmt.Errorf("bucket write failed: %w", err)
		}
		return &Confirmation{Type: TypeBucket, BucketName: dest.Bucket.BucketName, ObjectKey: objectKey}, nil
	case TypeWebhook:
		if d.Webhooks == nil {
			return nil, errors.New("no webhook sender configured")
		}
		status, err := d.Webhooks.Send(ctx, dest.Webhook.URL, []byte(ediText))
		if err != nil {
			return nil, fmt.Errorf("webhook delivery failed: %w", err)
		}
		return &Confirmation{Type: TypeWebhook, StatusCode: status}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDestination, dest.Type)
	}
}
