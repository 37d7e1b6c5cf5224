// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package x12 models the pieces of an X12 interchange that the
// orchestration core needs to reason about: the ISA/GS envelope headers,
// the functional identifier code table, and the guide-shaped transaction
// set payload with its embedded identifier and control-number fields.
//
// The package deliberately stops short of EDI serialization. Translation
// of guide JSON plus an envelope into wire-format EDI text is a
// collaborator concern (see pkg/translate).
package x12
