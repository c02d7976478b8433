// Package graph implements the knowledge-graph operations behind the tool
// surface: vertex resolution, the relationship view, and the create, update
// and delete operations with their existence and uniqueness checks.
//
// A Service is stateless apart from its collaborators. Every operation is a
// self-contained request against the storage.Engine; there is no transaction
// spanning several engine calls, so a multi-step operation that fails halfway
// leaves the steps already performed in place.
//
// Example:
//
//	engine := storage.NewMemoryEngine(graph.UniqueConstraints(reg)...)
//	svc := graph.NewService(engine, reg, graph.Options{Logger: logger})
//
//	created, err := svc.CreateVertex(ctx, "notion", map[string]any{"caption": "Grace"})
//	if err != nil {
//		return err
//	}
//	view, err := svc.ReadVertex(ctx, created.InternalID())
package graph

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orneryd/theomcp/pkg/apperror"
	"github.com/orneryd/theomcp/pkg/convert"
	"github.com/orneryd/theomcp/pkg/metrics"
	"github.com/orneryd/theomcp/pkg/schema"
	"github.com/orneryd/theomcp/pkg/storage"
)

// Record keys.
const (
	KeyInternalID    = "internal_id"
	KeyLabel         = "label"
	KeyID            = schema.PropID
	KeyCaption       = schema.PropCaption
	KeyRelationships = "relationships"
)

// Defaults for query operations.
const (
	DefaultResolveLimit = 10
	DefaultListLimit    = 1000
	DefaultFindLimit    = 50
	DefaultSearchLimit  = 10
)

// Options configures a Service.
type Options struct {
	// Logger receives debug output for mutations. Nil disables logging.
	Logger *zap.Logger
	// Metrics counts mutations and store failures. Nil disables metrics.
	Metrics *metrics.Metrics
}

// Service runs graph operations against a storage.Engine.
type Service struct {
	engine  storage.Engine
	schema  *schema.Registry
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewService creates a Service.
func NewService(engine storage.Engine, reg *schema.Registry, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		engine:  engine,
		schema:  reg,
		logger:  logger.Named("graph"),
		metrics: opts.Metrics,
	}
}

// UniqueConstraints lists the (label, property) pairs the schema declares
// unique, for engines that enforce them at insert time.
func UniqueConstraints(reg *schema.Registry) []storage.UniqueConstraint {
	var out []storage.UniqueConstraint
	for _, label := range reg.Labels() {
		for _, p := range reg.UniqueProperties(label) {
			out = append(out, storage.UniqueConstraint{Label: label, Property: p})
		}
	}
	return out
}

// Schema returns the effective schema definition.
func (s *Service) Schema() schema.Definition {
	return s.schema.Definition()
}

// Registry returns the schema registry.
func (s *Service) Registry() *schema.Registry {
	return s.schema
}

// ReadVertex returns the vertex with the given store identity, with its
// relationships view under "relationships".
func (s *Service) ReadVertex(ctx context.Context, internalID any) (Record, error) {
	raw, err := s.engine.GetVertex(ctx, internalID)
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidID) {
		return nil, apperror.New(apperror.KindNotFound, "vertex not found: internal_id=%v", internalID).
			WithDetails(map[string]any{KeyInternalID: internalID})
	}
	if err != nil {
		return nil, s.storeError("get_vertex", err, "reading vertex %v", internalID)
	}
	return s.withRelationships(ctx, Flatten(raw))
}

// ReadVertexByID returns the vertex with the given label and business id,
// with its relationships view.
func (s *Service) ReadVertexByID(ctx context.Context, label string, id any) (Record, error) {
	rec, err := s.findByID(ctx, label, id)
	if err != nil {
		return nil, err
	}
	return s.withRelationships(ctx, rec)
}

// Relationships builds the merged relationships view of a vertex: outgoing
// edges keyed by their label, incoming edges keyed by the inverse name.
func (s *Service) Relationships(ctx context.Context, internalID any) (Relationships, error) {
	var outgoing, incoming []storage.Neighbor

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		outgoing, err = s.engine.Neighbors(gctx, internalID, storage.Outgoing)
		return err
	})
	g.Go(func() error {
		var err error
		incoming, err = s.engine.Neighbors(gctx, internalID, storage.Incoming)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.New(apperror.KindNotFound, "vertex not found: internal_id=%v", internalID)
		}
		return nil, s.storeError("neighbors", err, "reading relationships of %v", internalID)
	}

	return MergeRelationshipView(groupNeighbors(outgoing), RenameIncoming(groupNeighbors(incoming))), nil
}

func (s *Service) withRelationships(ctx context.Context, rec Record) (Record, error) {
	rels, err := s.Relationships(ctx, rec.InternalID())
	if err != nil {
		return nil, err
	}
	rec[KeyRelationships] = rels
	return rec, nil
}

// findByID returns the single vertex with label and business id.
func (s *Service) findByID(ctx context.Context, label string, id any) (Record, error) {
	canon, err := s.schema.NormalizeLabel(label)
	if err != nil {
		return nil, err
	}
	n, err := s.businessID(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.ResolveUniqueVertex(ctx, ByID(n, canon))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) businessID(id any) (int64, error) {
	n, ok := convert.ToInt64(id)
	if !ok {
		return 0, apperror.New(apperror.KindInvalidArgument, "id must be an integer, got %v", id).
			WithDetails(map[string]any{KeyID: id})
	}
	return n, nil
}

// storeError translates an engine error into a typed failure and counts it.
func (s *Service) storeError(op string, err error, format string, args ...any) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperror.ErrNotFound.WithInternal(err)
	case errors.Is(err, storage.ErrAlreadyExists):
		return apperror.ErrAlreadyExists.WithInternal(err)
	case errors.Is(err, storage.ErrInvalidData):
		return apperror.ErrInvalidArgument.WithInternal(err)
	}
	s.metrics.StoreError(op)
	s.logger.Warn("store operation failed", zap.String("operation", op), zap.Error(err))
	return apperror.Wrap(err, format, args...)
}
