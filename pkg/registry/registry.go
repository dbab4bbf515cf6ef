// Package registry stores versioned model artifacts in a blob store and
// maintains a separate, atomically updated "latest" pointer.
//
// Blob layout:
//
//	models/<name>/<version>/artifact   immutable artifact, append-only
//	models/<name>/latest               pointer record naming one version
//
// Promotion happens only after the artifact blob is durably stored, so a
// partially written artifact is never reachable through FetchLatest.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tariffwise/tariffwise/pkg/blob"
	"github.com/tariffwise/tariffwise/pkg/model"
)

var (
	// ErrNoModelPublished means the latest pointer has never been written.
	// Expected on cold start; callers fall back rather than crash.
	ErrNoModelPublished = errors.New("no model published")

	// ErrVersionNotFound means a fetch named an unknown version.
	ErrVersionNotFound = errors.New("model version not found")
)

const versionTimeLayout = "20060102T150405Z"

// latestPointer is the mutable record behind models/<name>/latest.
type latestPointer struct {
	Version    string    `json:"version"`
	PromotedAt time.Time `json:"promoted_at"`
}

// Registry is a versioned artifact store over a BlobStore.
type Registry struct {
	store blob.BlobStore
	name  string
}

// New creates a registry for the named model family.
func New(store blob.BlobStore, name string) *Registry {
	return &Registry{store: store, name: name}
}

func (r *Registry) artifactKey(version string) string {
	return fmt.Sprintf("models/%s/%s/artifact", r.name, version)
}

func (r *Registry) latestKey() string {
	return fmt.Sprintf("models/%s/latest", r.name)
}

// NewVersion derives a version ID from the current UTC time plus a short
// run suffix, so concurrent training runs can never collide.
func NewVersion(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", now.UTC().Format(versionTimeLayout), suffix)
}

// Publish durably stores the artifact under a fresh version and returns the
// version ID. Publish is append-only: it never overwrites and never touches
// the latest pointer.
func (r *Registry) Publish(ctx context.Context, artifact *model.Artifact) (string, error) {
	version := NewVersion(time.Now())
	artifact.Version = version

	data, err := artifact.Marshal()
	if err != nil {
		return "", err
	}
	if err := r.store.Put(ctx, r.artifactKey(version), bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("failed to publish version %s: %w", version, err)
	}
	return version, nil
}

// Promote atomically points latest at an already-published version.
func (r *Registry) Promote(ctx context.Context, version string) error {
	// Refuse to promote a version whose artifact is not durably stored.
	if _, err := r.Fetch(ctx, version); err != nil {
		return err
	}
	pointer, err := json.Marshal(latestPointer{Version: version, PromotedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to marshal latest pointer: %w", err)
	}
	if err := r.store.Put(ctx, r.latestKey(), bytes.NewReader(pointer)); err != nil {
		return fmt.Errorf("failed to promote version %s: %w", version, err)
	}
	return nil
}

// PublishAndPromote publishes the artifact and then promotes it.
func (r *Registry) PublishAndPromote(ctx context.Context, artifact *model.Artifact) (string, error) {
	version, err := r.Publish(ctx, artifact)
	if err != nil {
		return "", err
	}
	if err := r.Promote(ctx, version); err != nil {
		return "", err
	}
	return version, nil
}

// Fetch returns the artifact for an exact version.
func (r *Registry) Fetch(ctx context.Context, version string) (*model.Artifact, error) {
	reader, err := r.store.Get(ctx, r.artifactKey(version))
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrVersionNotFound, version)
		}
		return nil, fmt.Errorf("failed to fetch version %s: %w", version, err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read version %s: %w", version, err)
	}
	return model.UnmarshalArtifact(data)
}

// FetchLatest resolves the latest pointer and returns its artifact.
func (r *Registry) FetchLatest(ctx context.Context) (*model.Artifact, error) {
	reader, err := r.store.Get(ctx, r.latestKey())
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return nil, ErrNoModelPublished
		}
		return nil, fmt.Errorf("failed to read latest pointer: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest pointer: %w", err)
	}
	var pointer latestPointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return nil, fmt.Errorf("failed to parse latest pointer: %w", err)
	}
	if pointer.Version == "" {
		return nil, ErrNoModelPublished
	}
	return r.Fetch(ctx, pointer.Version)
}

// LatestVersion returns the currently promoted version without fetching the
// artifact body.
func (r *Registry) LatestVersion(ctx context.Context) (string, error) {
	reader, err := r.store.Get(ctx, r.latestKey())
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return "", ErrNoModelPublished
		}
		return "", fmt.Errorf("failed to read latest pointer: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read latest pointer: %w", err)
	}
	var pointer latestPointer
	if err := json.Unmarshal(data, &pointer); err != nil {
		return "", fmt.Errorf("failed to parse latest pointer: %w", err)
	}
	return pointer.Version, nil
}

// ListVersions returns all published versions, oldest first. Timestamp-led
// version IDs make lexicographic order chronological.
func (r *Registry) ListVersions(ctx context.Context) ([]string, error) {
	prefix := fmt.Sprintf("models/%s/", r.name)
	keys, err := r.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	versions := []string{}
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 && parts[1] == "artifact" {
			versions = append(versions, parts[0])
		}
	}
	sort.Strings(versions)
	return versions, nil
}
