package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

var searchTracer = otel.Tracer("catalog/search")

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// Store is the persistence surface the search service reads from
type Store interface {
	storage.TaxonomyRepository
	storage.ClassificationRepository
	storage.MetadataRepository
	storage.ApiRepository
}

// Recorder receives search measurements
type Recorder interface {
	RecordSearch(strategy string, duration time.Duration, results int)
	RecordSkip(stage string)
}

type nopRecorder struct{}

func (nopRecorder) RecordSearch(string, time.Duration, int) {}
func (nopRecorder) RecordSkip(string)                       {}

// Result joins one API version with its API and metadata
type Result struct {
	Api      *catalog.Api        `json:"api"`
	Metadata *catalog.Metadata   `json:"metadata"`
	Version  *catalog.ApiVersion `json:"version"`
}

// Request is a paginated search
type Request struct {
	Filters []filter.Filter
	Limit   int // Max results (default: 50)
	Offset  int
}

// Response is one page of search results
type Response struct {
	Results    []*Result `json:"results"`
	TotalCount int       `json:"total_count"`
	Strategy   string    `json:"strategy"`
}

// Config tunes the search service
type Config struct {
	// GroupConcurrency bounds concurrent link lookups while grouping
	GroupConcurrency int
}

// DefaultConfig returns the default search configuration
func DefaultConfig() Config {
	return Config{GroupConcurrency: 8}
}

// Service runs filtered catalog searches
type Service struct {
	store    Store
	resolver *taxonomy.Resolver
	logger   *observability.Logger
	recorder Recorder
	cfg      Config
}

// NewService creates a search service. A nil logger logs at info level to
// stdout.
func NewService(store Store, resolver *taxonomy.Resolver, logger *observability.Logger, cfg Config) *Service {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if cfg.GroupConcurrency <= 0 {
		cfg.GroupConcurrency = DefaultConfig().GroupConcurrency
	}
	return &Service{
		store:    store,
		resolver: resolver,
		logger:   logger,
		recorder: nopRecorder{},
		cfg:      cfg,
	}
}

// SetRecorder installs a metrics recorder
func (s *Service) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	s.recorder = r
}

// Search runs the filters and returns one page of results ordered by API id
// and version. An empty filter set yields no results; use ListAll for an
// unconstrained listing.
func (s *Service) Search(ctx context.Context, req Request) (*Response, error) {
	ctx, span := searchTracer.Start(ctx, "Search",
		trace.WithAttributes(
			attribute.Int("filters", len(req.Filters)),
			attribute.Int("limit", req.Limit),
			attribute.Int("offset", req.Offset),
		),
	)
	defer span.End()

	start := time.Now()
	plan, err := filter.Compile(ctx, req.Filters, s.resolver)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to compile filters")
		return nil, fmt.Errorf("failed to compile filters: %w", err)
	}
	strategy := plan.Strategy()
	span.SetAttributes(attribute.String("strategy", strategy.String()))

	var results []*Result
	err = s.run(ctx, plan, func(r *Result) bool {
		results = append(results, r)
		return true
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}
	s.recorder.RecordSearch(strategy.String(), time.Since(start), len(results))

	return &Response{
		Results:    paginate(results, req.Limit, req.Offset),
		TotalCount: len(results),
		Strategy:   strategy.String(),
	}, nil
}

// Stream runs the filters and hands each result to fn until fn returns
// false. Results arrive ordered by API id and version.
func (s *Service) Stream(ctx context.Context, filters []filter.Filter, fn func(*Result) bool) error {
	ctx, span := searchTracer.Start(ctx, "Stream")
	defer span.End()

	plan, err := filter.Compile(ctx, filters, s.resolver)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to compile filters: %w", err)
	}
	return s.run(ctx, plan, fn)
}

// ListAll returns every API version that has metadata, unfiltered
func (s *Service) ListAll(ctx context.Context, limit, offset int) (*Response, error) {
	ctx, span := searchTracer.Start(ctx, "ListAll")
	defer span.End()

	candidates, err := s.store.ListMetadataMatching(ctx, filter.True())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	sortMetadata(candidates)

	var results []*Result
	err = s.join(ctx, candidates, func(r *Result) bool {
		results = append(results, r)
		return true
	})
	if err != nil {
		return nil, err
	}
	return &Response{
		Results:    paginate(results, limit, offset),
		TotalCount: len(results),
		Strategy:   "all",
	}, nil
}

// skip records a dropped record. Only missing records are skipped; other
// errors abort the request.
func (s *Service) skip(ctx context.Context, err error, stage, apiID, version string) error {
	if !errors.Is(err, catalog.ErrNotFound) {
		return err
	}
	s.recorder.RecordSkip(stage)
	s.logger.WithFields(map[string]interface{}{
		"request_id": observability.GetRequestID(ctx),
		"stage":      stage,
		"api_id":     apiID,
		"version":    version,
	}).Debug("skipping search record with broken reference")
	return nil
}

func paginate(results []*Result, limit, offset int) []*Result {
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset >= len(results) {
		return []*Result{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}
