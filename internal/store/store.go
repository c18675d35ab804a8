// Package store persists job documents as JSON blobs keyed by job id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/phobologic/depprune/internal/model"
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("not found")

// ErrCorrupt is returned when a stored document exists but does not decode.
var ErrCorrupt = errors.New("corrupt document")

// BlobStore is a flat key/value byte store.
type BlobStore interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Key returns the object key for a job document: jobs/<job-id>/<name>.json.
func Key(jobID, name string) string {
	return "jobs/" + strings.TrimSpace(jobID) + "/" + name + ".json"
}

// Load decodes the named document into v.
func Load(ctx context.Context, bs BlobStore, jobID, name string, v any) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job_id is required")
	}
	data, err := bs.Read(ctx, Key(jobID, name))
	if err != nil {
		return fmt.Errorf("reading %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w: %w", name, ErrCorrupt, err)
	}
	return nil
}

// Save replaces the named document with v.
func Save(ctx context.Context, bs BlobStore, jobID, name string, v any) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job_id is required")
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", name, err)
	}
	if err := bs.Write(ctx, Key(jobID, name), data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Update merges the top-level fields of patch into the named document,
// creating it when absent. Nested values are replaced, not merged.
// Concurrent updates are last-writer-wins.
func Update(ctx context.Context, bs BlobStore, jobID, name string, patch any) error {
	if strings.TrimSpace(jobID) == "" {
		return fmt.Errorf("job_id is required")
	}

	doc := make(map[string]json.RawMessage)
	data, err := bs.Read(ctx, Key(jobID, name))
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return fmt.Errorf("reading %s: %w", name, err)
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decoding %s: %w: %w", name, ErrCorrupt, err)
		}
	}

	raw, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("encoding patch: %w", err)
	}
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("patch for %s is not an object: %w", name, err)
	}
	for k, v := range fields {
		doc[k] = v
	}

	return Save(ctx, bs, jobID, name, doc)
}

// LoadJob reads job.json.
func LoadJob(ctx context.Context, bs BlobStore, jobID string) (*model.Job, error) {
	var job model.Job
	if err := Load(ctx, bs, jobID, model.DocJob, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJob merges fields into job.json.
func UpdateJob(ctx context.Context, bs BlobStore, jobID string, fields map[string]any) error {
	return Update(ctx, bs, jobID, model.DocJob, fields)
}
