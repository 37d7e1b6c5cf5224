// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package translate defines the collaborator contracts for mapping and
// EDI translation.
//
// Mapping transforms arbitrary input JSON into guide-schema-shaped JSON
// via a named transformation; translation turns guide JSON plus envelope
// metadata into serialized EDI text. Both are remote, capability-bearing
// services from this module's point of view, and both may fail.
package translate

import (
	"context"
	"errors"

	"github.com/edilane/go-x12/pkg/x12"
)

var (
	// ErrMappingFailed wraps mapping-service failures.
	ErrMappingFailed = errors.New("mapping invocation failed")
	// ErrTranslationFailed wraps translation-service failures.
	ErrTranslationFailed = errors.New("translation failed")
)

// Mapper invokes a named transformation on raw event JSON, producing
// guide-schema JSON.
type Mapper interface {
	Map(ctx context.Context, mappingID string, input []byte) ([]byte, error)
}

// Translator turns guide JSON plus the shared envelope into EDI text.
type Translator interface {
	Translate(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(ctx context.Context, mappingID string, input []byte) ([]byte, error)

// Map implements Mapper.
func (f MapperFunc) Map(ctx context.Context, mappingID string, input []byte) ([]byte, error) {
	return f(ctx, mappingID, input)
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error)

// Translate implements Translator.
func (f TranslatorFunc) Translate(ctx context.Context, guideJSON []byte, guideID string, envelope *x12.Envelope) (string, error) {
	return f(ctx, guideJSON, guideID, envelope)
}
