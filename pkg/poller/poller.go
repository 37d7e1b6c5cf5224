// Copyright (c) 2025 EDILane
// SPDX-License-Identifier: BSD-2-Clause

// Package poller implements FTP/SFTP polling of trading partner file
// drops: candidate selection against a time watermark, download and
// re-delivery to destination storage, optional remote cleanup, and
// classification of every considered entry as processed, skipped, or
// errored.
//
// A poll run is sequential: one connection handle serves list, retrieve,
// and delete in order. Concurrency across poll targets belongs to the
// caller (see internal/scheduler); each run owns its own connection.
//
// The poller never mutates its config. It returns the aggregated results
// plus a recommended watermark; the caller persists the watermark only
// when the run reports no processing errors.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"time"
)

// Config describes one poll target. LastPollTime is the watermark from
// the previous successful run; the zero value means poll everything.
type Config struct {
	Connection            ConnectionDetails `json:"connectionDetails" yaml:"connection" bson:"connection"`
	RemotePath            string            `json:"remotePath" yaml:"remotePath" bson:"remote_path"`
	RemoteFiles           []string          `json:"remoteFiles,omitempty" yaml:"remoteFiles" bson:"remote_files,omitempty"`
	DestinationPath       string            `json:"destinationPath" yaml:"destinationPath" bson:"destination_path"`
	DeleteAfterProcessing bool              `json:"deleteAfterProcessing" yaml:"deleteAfterProcessing" bson:"delete_after_processing"`
	LastPollTime          time.Time         `json:"lastPollTime,omitempty" yaml:"lastPollTime" bson:"last_poll_time"`
}

// SkippedItem records a remote entry that was deliberately not processed.
type SkippedItem struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// ProcessingError records a per-file failure. It never aborts the rest of
// the run.
type ProcessingError struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// Results is the aggregated outcome of one poll run. RecommendedWatermark
// is the poll start time; the caller persists it as the next LastPollTime
// only when ProcessingErrors is empty.
type Results struct {
	ProcessedFiles       []string          `json:"processedFiles"`
	SkippedItems         []SkippedItem     `json:"skippedItems"`
	ProcessingErrors     []ProcessingError `json:"processingErrors"`
	RecommendedWatermark time.Time         `json:"recommendedWatermark"`
}

// Clean reports whether the run had no processing errors.
func (r *Results) Clean() bool {
	return len(r.ProcessingErrors) == 0
}

// DestinationWriter persists a downloaded file to destination storage.
type DestinationWriter interface {
	Write(ctx context.Context, path string, data []byte) error
}

// Poller polls remote file endpoints.
type Poller struct {
	Storage DestinationWriter
	Logger  *slog.Logger

	// Dial, when set, overrides the protocol dispatch table.
	Dial DialFunc

	// now is replaceable in tests.
	now func() time.Time
}

// New creates a poller delivering downloads through storage.
func New(storage DestinationWriter, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{Storage: storage, Logger: logger}
}

// Poll runs one poll against the configured target. Connection-level
// failures (unsupported protocol, dial or directory listing errors) are
// returned as errors; per-file failures are collected in the results.
func (p *Poller) Poll(ctx context.Context, cfg Config) (*Results, error) {
	startedAt := p.clock()()
	log := p.Logger.With("protocol", cfg.Connection.Protocol,
		"host", cfg.Connection.Host, "remote_path", cfg.RemotePath)

	dial := p.Dial
	if dial == nil {
		var err error
		dial, err = dialerFor(cfg.Connection.Protocol)
		if err != nil {
			return nil, err
		}
	}

	client, err := dial(ctx, cfg.Connection)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", cfg.Connection.Host, err)
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.Warn("failed to close remote connection", "error", cerr)
		}
	}()

	results := &Results{RecommendedWatermark: startedAt}

	candidates, err := p.selectCandidates(ctx, client, cfg, results)
	if err != nil {
		return nil, err
	}

	candidates = p.applyWatermark(candidates, cfg.LastPollTime, startedAt, results)

	for _, entry := range candidates {
		if err := p.processOne(ctx, client, cfg, entry); err != nil {
			log.Warn("file processing failed", "path", entry.Path, "error", err)
			results.ProcessingErrors = append(results.ProcessingErrors, ProcessingError{
				Path:  entry.Path,
				Error: err.Error(),
			})
			continue
		}
		results.ProcessedFiles = append(results.ProcessedFiles, entry.Path)
	}

	log.Info("poll complete", "processed", len(results.ProcessedFiles),
		"skipped", len(results.SkippedItems), "errors", len(results.ProcessingErrors))
	return results, nil
}

// selectCandidates builds the ordered candidate list. An explicit file
// list is an exact manifest and resolves fail-fast: the first zero-match,
// multi-match, or non-file entry records a processing error, stops
// resolution of the remaining names, and discards the whole batch —
// nothing resolved before the halt is processed. Directory listings
// classify non-file entries as skipped and continue.
func (p *Poller) selectCandidates(ctx context.Context, client RemoteClient, cfg Config, results *Results) ([]Entry, error) {
	if len(cfg.RemoteFiles) > 0 {
		var candidates []Entry
		for _, name := range cfg.RemoteFiles {
			remote := path.Join(cfg.RemotePath, name)
			entries, err := client.List(ctx, remote)
			if err != nil {
				results.ProcessingErrors = append(results.ProcessingErrors, ProcessingError{
					Path:  remote,
					Error: fmt.Sprintf("listing failed: %v", err),
				})
				return nil, nil
			}
			if len(entries) != 1 {
				results.ProcessingErrors = append(results.ProcessingErrors, ProcessingError{
					Path:  remote,
					Error: fmt.Sprintf("expected exactly one match, found %d", len(entries)),
				})
				return nil, nil
			}
			if entries[0].Type != EntryTypeFile {
				results.ProcessingErrors = append(results.ProcessingErrors, ProcessingError{
					Path:  remote,
					Error: "not a file",
				})
				return nil, nil
			}
			candidates = append(candidates, entries[0])
		}
		return candidates, nil
	}

	entries, err := client.List(ctx, cfg.RemotePath)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", cfg.RemotePath, err)
	}
	var candidates []Entry
	for _, entry := range entries {
		if entry.Type != EntryTypeFile {
			results.SkippedItems = append(results.SkippedItems, SkippedItem{
				Path:   entry.Path,
				Reason: "not a file",
			})
			continue
		}
		candidates = append(candidates, entry)
	}
	return candidates, nil
}

// applyWatermark filters candidates against the last poll time. On the
// first stale candidate the scan stops: candidates are assumed to arrive
// in a meaningful order, so anything after a known-stale file is not
// evaluated this run.
func (p *Poller) applyWatermark(candidates []Entry, lastPollTime, startedAt time.Time, results *Results) []Entry {
	var fresh []Entry
	for _, entry := range candidates {
		modTime := entry.ModTime
		if modTime.IsZero() {
			modTime = startedAt
		}
		if modTime.Before(lastPollTime) {
			results.SkippedItems = append(results.SkippedItems, SkippedItem{
				Path: entry.Path,
				Reason: fmt.Sprintf("modified at %s, before last poll at %s",
					modTime.Format(time.RFC3339), lastPollTime.Format(time.RFC3339)),
			})
			break
		}
		fresh = append(fresh, entry)
	}
	return fresh
}

// processOne downloads a candidate, writes it to destination storage, and
// deletes the remote original only after a successful write when
// configured to do so.
func (p *Poller) processOne(ctx context.Context, client RemoteClient, cfg Config, entry Entry) error {
	data, err := client.Retrieve(ctx, entry.Path)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	destination := path.Join(cfg.DestinationPath, entry.Name)
	if err := p.Storage.Write(ctx, destination, data); err != nil {
		return fmt.Errorf("writing %s: %w", destination, err)
	}

	if cfg.DeleteAfterProcessing {
		if err := client.Delete(ctx, entry.Path); err != nil {
			return fmt.Errorf("deleting remote original: %w", err)
		}
	}
	return nil
}

func (p *Poller) clock() func() time.Time {
	if p.now != nil {
		return p.now
	}
	return time.Now
}
