package search

import (
	"context"
	"fmt"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/filter"
)

// Stage names used for skip accounting
const (
	stageMetadata = "metadata"
	stageApi      = "api"
	stageVersion  = "version"
	stageEntry    = "entry"
)

// run executes a compiled plan. Every strategy produces candidate metadata
// first and then joins outward to the API and its version.
func (s *Service) run(ctx context.Context, plan *filter.Plan, fn func(*Result) bool) error {
	var (
		candidates []*catalog.Metadata
		err        error
	)

	switch plan.Strategy() {
	case filter.StrategyNone:
		return nil
	case filter.StrategyClassification:
		candidates, err = s.classified(ctx, plan)
	case filter.StrategyMetadata:
		candidates, err = s.matchingMetadata(ctx, plan)
	case filter.StrategyMixed:
		candidates, err = s.classified(ctx, plan)
		if err == nil {
			candidates = refine(candidates, plan.Metadata)
		}
	}
	if err != nil {
		return err
	}

	sortMetadata(candidates)
	return s.join(ctx, candidates, fn)
}

// classified returns the metadata of every API version whose links satisfy
// each requested taxonomy.
func (s *Service) classified(ctx context.Context, plan *filter.Plan) ([]*catalog.Metadata, error) {
	ctx, span := searchTracer.Start(ctx, "classified")
	defer span.End()

	links, err := s.store.ListLinksMatching(ctx, plan.LinkPredicate())
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list classification links: %w", err)
	}
	span.SetAttributes(attribute.Int("links", len(links)))

	type versionKey struct{ apiID, version string }
	byVersion := make(map[versionKey][]*catalog.ClassificationLink)
	var order []versionKey
	for _, l := range links {
		k := versionKey{l.ApiID, l.ApiVersion}
		if _, ok := byVersion[k]; !ok {
			order = append(order, k)
		}
		byVersion[k] = append(byVersion[k], l)
	}

	var out []*catalog.Metadata
	for _, k := range order {
		if !plan.SatisfiedBy(byVersion[k]) {
			continue
		}
		md, err := s.store.GetMetadata(ctx, k.apiID, k.version)
		if err != nil {
			if err := s.skip(ctx, err, stageMetadata, k.apiID, k.version); err != nil {
				return nil, fmt.Errorf("failed to get metadata: %w", err)
			}
			continue
		}
		out = append(out, md)
	}
	return out, nil
}

func (s *Service) matchingMetadata(ctx context.Context, plan *filter.Plan) ([]*catalog.Metadata, error) {
	ctx, span := searchTracer.Start(ctx, "matchingMetadata",
		trace.WithAttributes(attribute.String("predicate", plan.Metadata.String())))
	defer span.End()

	if plan.Metadata.Op == filter.OpFalse {
		return nil, nil
	}
	out, err := s.store.ListMetadataMatching(ctx, plan.Metadata)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	return out, nil
}

func refine(candidates []*catalog.Metadata, pred filter.Predicate) []*catalog.Metadata {
	out := candidates[:0]
	for _, md := range candidates {
		if pred.Match(md) {
			out = append(out, md)
		}
	}
	return out
}

// join resolves the API and version of each candidate. Candidates whose API
// or version is missing are skipped.
func (s *Service) join(ctx context.Context, candidates []*catalog.Metadata, fn func(*Result) bool) error {
	ctx, span := searchTracer.Start(ctx, "join", trace.WithAttributes(attribute.Int("candidates", len(candidates))))
	defer span.End()

	apis := make(map[string]*catalog.Api)
	for _, md := range candidates {
		if err := ctx.Err(); err != nil {
			return err
		}

		a, ok := apis[md.ApiID]
		if !ok {
			var err error
			a, err = s.store.GetApi(ctx, md.ApiID)
			if err != nil {
				if err := s.skip(ctx, err, stageApi, md.ApiID, md.ApiVersion); err != nil {
					return fmt.Errorf("failed to get api: %w", err)
				}
				// remember the gap so later versions of the api skip without a lookup
				apis[md.ApiID] = nil
				continue
			}
			apis[md.ApiID] = a
		}
		if a == nil {
			s.recorder.RecordSkip(stageApi)
			continue
		}

		v, err := s.store.GetVersion(ctx, md.ApiID, md.ApiVersion)
		if err != nil {
			if err := s.skip(ctx, err, stageVersion, md.ApiID, md.ApiVersion); err != nil {
				return fmt.Errorf("failed to get version: %w", err)
			}
			continue
		}

		if !fn(&Result{Api: a, Metadata: md, Version: v}) {
			return nil
		}
	}
	return nil
}

func sortMetadata(mds []*catalog.Metadata) {
	sort.SliceStable(mds, func(i, j int) bool {
		if mds[i].ApiID != mds[j].ApiID {
			return mds[i].ApiID < mds[j].ApiID
		}
		return mds[i].ApiVersion < mds[j].ApiVersion
	})
}
