package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	props "github.com/goliatone/go-props"
)

var ErrDigestMismatch = errors.New("registry: schema digest mismatch")

var ErrNotFound = errors.New("registry: schema not found")

// Ref identifies one registered schema version of a piece.
type Ref struct {
	Piece   string
	Version string
}

// Meta is storage-owned metadata used for audit and conflict detection.
type Meta struct {
	Digest       string            `json:"digest,omitempty"`
	RegisteredAt time.Time         `json:"registered_at,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// Store loads/saves one schema for a single reference.
type Store interface {
	Load(ctx context.Context, ref Ref) (schema *props.Schema, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, schema *props.Schema, meta Meta) (Meta, error)
}

// Registry validates and serves piece schemas.
type Registry struct {
	Store Store
	// Now is used to stamp registrations; defaults to time.Now.
	Now func() time.Time
}

func (r Ref) Identifier() (string, error) {
	piece := strings.TrimSpace(r.Piece)
	version := strings.TrimSpace(r.Version)
	switch {
	case piece == "":
		return "", fmt.Errorf("registry: piece is required")
	case version == "":
		return "", fmt.Errorf("registry: version is required for piece %q", piece)
	case strings.ContainsAny(piece, "@/") || strings.ContainsAny(version, "@/"):
		return "", fmt.Errorf("registry: ref %q@%q must not contain '@' or '/'", piece, version)
	}
	return fmt.Sprintf("%s@%s", piece, version), nil
}

func (r Ref) String() string {
	return fmt.Sprintf("%s@%s", r.Piece, r.Version)
}

// Register stores schema under ref. Registering an identical schema again is
// a no-op returning the stored meta; a different schema under the same ref
// fails with ErrDigestMismatch. schema must come from props.NewSchema.
func (r Registry) Register(ctx context.Context, ref Ref, schema *props.Schema, meta Meta) (Meta, error) {
	if r.Store == nil {
		return Meta{}, fmt.Errorf("registry: store is required")
	}
	if schema == nil {
		return Meta{}, fmt.Errorf("registry: schema is required")
	}
	if _, err := ref.Identifier(); err != nil {
		return Meta{}, err
	}

	digest := schema.Digest()
	_, stored, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return Meta{}, fmt.Errorf("registry: load %s: %w", ref, err)
	}
	if ok {
		if stored.Digest != digest {
			return stored, fmt.Errorf("%w: %s has %q, got %q", ErrDigestMismatch, ref, stored.Digest, digest)
		}
		return stored, nil
	}

	saveMeta := mergeMeta(Meta{Digest: digest, RegisteredAt: r.now()}, meta)
	saveMeta.Digest = digest
	saved, err := r.Store.Save(ctx, ref, schema, saveMeta)
	if err != nil {
		return Meta{}, fmt.Errorf("registry: save %s: %w", ref, err)
	}
	return saved, nil
}

// Lookup returns the schema registered under ref.
func (r Registry) Lookup(ctx context.Context, ref Ref) (*props.Schema, Meta, error) {
	if r.Store == nil {
		return nil, Meta{}, fmt.Errorf("registry: store is required")
	}
	schema, meta, ok, err := r.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("registry: load %s: %w", ref, err)
	}
	if !ok {
		return nil, Meta{}, fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return schema, meta, nil
}

// Open looks up ref and opens a resolution session running the first pass.
func (r Registry) Open(ctx context.Context, ref Ref, initial props.Snapshot, opts ...props.SessionOption) (*props.Session, props.View, error) {
	schema, _, err := r.Lookup(ctx, ref)
	if err != nil {
		return nil, props.View{}, err
	}
	return props.Open(ctx, schema, initial, opts...)
}

func (r Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.Digest != "" {
		out.Digest = override.Digest
	}
	if !override.RegisteredAt.IsZero() {
		out.RegisteredAt = override.RegisteredAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}
