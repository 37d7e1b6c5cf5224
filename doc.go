// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

/*
Package gox12 implements an orchestration layer for exchanging X12 EDI
documents with trading partners over outbound delivery channels (object
storage buckets, webhooks) and inbound polling channels (FTP/SFTP).

# Overview

go-x12 does not encode EDI itself. Translation, guide resolution, and
mapping execution are collaborator services reachable through narrow
request/response contracts. What this module owns is the orchestration
around them:

  - the outbound delivery pipeline: partnership and guide resolution,
    interchange/group control-number issuance, envelope construction, and
    concurrent fan-out to every configured destination with per-destination
    failure isolation and partial-result aggregation
  - the FTP/SFTP poller: watermark-based candidate selection against a
    remote directory, explicit file-list resolution, download and
    re-delivery to storage, and classification of every remote entry as
    processed, skipped, or errored

# Package Structure

The library is organized into the following packages:

	github.com/edilane/go-x12/pkg/x12        - Envelope model, payload validation, functional identifier codes
	github.com/edilane/go-x12/pkg/partner    - Partner profiles, partnerships, resolvers
	github.com/edilane/go-x12/pkg/controlnum - Control-number issuance contracts
	github.com/edilane/go-x12/pkg/translate  - Mapping and translation collaborator contracts
	github.com/edilane/go-x12/pkg/ledger     - Execution ledger contract
	github.com/edilane/go-x12/pkg/delivery   - Bucket and webhook destinations
	github.com/edilane/go-x12/pkg/outbound   - Outbound delivery pipeline
	github.com/edilane/go-x12/pkg/poller     - FTP/SFTP polling

Server-side wiring (configuration, MongoDB-backed storage and execution
ledger, the HTTP ingress, the background poll scheduler) lives under
internal/ and is assembled by the daemon in cmd/exchanged.

# Quick Start

See examples/basic/main.go for a complete wired pipeline: static resolvers,
an in-memory control-number issuer, and a single bucket destination.

# License

BSD-2-Clause License
*/
package gox12
