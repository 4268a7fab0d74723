package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/catalog/pkg/async"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// Import outcomes reported to the Recorder
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Store is what an import writes to and reads back for validation
type Store interface {
	storage.TaxonomyWriter
	taxonomy.EntryStore
}

// Recorder receives import measurements
type Recorder interface {
	RecordImport(status string, entries int)
}

type nopRecorder struct{}

func (nopRecorder) RecordImport(string, int) {}

// Result summarizes one imported file
type Result struct {
	Path     string   `json:"path,omitempty"`
	NID      string   `json:"nid"`
	Version  string   `json:"version"`
	Stored   int      `json:"stored"`
	Rejected []string `json:"rejected,omitempty"`
}

// Status classifies the result for metrics
func (r *Result) Status() string {
	if len(r.Rejected) > 0 {
		return StatusPartial
	}
	return StatusSuccess
}

// Importer loads taxonomy YAML files into storage
type Importer struct {
	store    Store
	logger   *observability.Logger
	recorder Recorder
	after    []func(ctx context.Context, nid, version string) error
}

// New creates an importer. A nil logger logs at info level to stdout.
func New(store Store, logger *observability.Logger) *Importer {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Importer{store: store, logger: logger, recorder: nopRecorder{}}
}

// SetRecorder installs a metrics recorder
func (i *Importer) SetRecorder(r Recorder) {
	if r == nil {
		r = nopRecorder{}
	}
	i.recorder = r
}

// AfterImport registers fn to run once a taxonomy version has been written.
// Its error is logged, not returned.
func (i *Importer) AfterImport(fn func(ctx context.Context, nid, version string) error) {
	i.after = append(i.after, fn)
}

// Import reads and imports one file
func (i *Importer) Import(ctx context.Context, path string) (*Result, error) {
	fh, err := os.Open(path)
	if err != nil {
		i.recorder.RecordImport(StatusFailed, 0)
		return nil, fmt.Errorf("failed to open taxonomy file: %w", err)
	}
	defer fh.Close()

	f, err := Parse(fh)
	if err != nil {
		i.recorder.RecordImport(StatusFailed, 0)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res, err := i.ImportFile(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.Path = path
	return res, nil
}

// ImportFile upserts the taxonomy header and its entries, then builds the
// hierarchy of the stored version and reports every entry it rejects.
// Entries that fail validation are not written.
func (i *Importer) ImportFile(ctx context.Context, f *File) (*Result, error) {
	t := f.Taxonomy()
	if err := t.Validate(); err != nil {
		i.recorder.RecordImport(StatusFailed, 0)
		return nil, err
	}
	res := &Result{NID: t.NID, Version: t.Version}
	logger := i.logger.WithFields(map[string]interface{}{
		"nid":     t.NID,
		"version": t.Version,
	})

	if err := i.store.PutTaxonomy(ctx, t); err != nil {
		i.recorder.RecordImport(StatusFailed, 0)
		return nil, fmt.Errorf("failed to store taxonomy: %w", err)
	}

	seen := make(map[string]struct{}, len(f.Entries))
	for n, e := range f.Entries {
		entry := e.toCatalog(t.NID, t.Version)
		if err := entry.Validate(); err != nil {
			res.Rejected = append(res.Rejected, fmt.Sprintf("entry %d: %v", n, err))
			continue
		}
		if _, dup := seen[entry.URN]; dup {
			res.Rejected = append(res.Rejected, fmt.Sprintf("entry %d: %s: duplicate urn", n, entry.URN))
			continue
		}
		seen[entry.URN] = struct{}{}

		if err := i.store.PutEntry(ctx, entry); err != nil {
			i.recorder.RecordImport(StatusFailed, res.Stored)
			return nil, fmt.Errorf("failed to store entry %s: %w", entry.URN, err)
		}
		res.Stored++
	}

	stored, err := i.store.ListAllEntries(ctx, t.NID, t.Version)
	if err != nil {
		i.recorder.RecordImport(StatusFailed, res.Stored)
		return nil, fmt.Errorf("failed to read back entries: %w", err)
	}
	tree := taxonomy.NewTree()
	for _, entry := range stored {
		if err := tree.Insert(entry); err != nil && !errors.Is(err, taxonomy.ErrReferenceEntry) {
			res.Rejected = append(res.Rejected, err.Error())
		}
	}

	i.recorder.RecordImport(res.Status(), res.Stored)
	logger.WithFields(map[string]interface{}{
		"stored":   res.Stored,
		"rejected": len(res.Rejected),
		"nodes":    tree.Len(),
	}).Info("taxonomy imported")

	for _, fn := range i.after {
		if err := fn(ctx, t.NID, t.Version); err != nil {
			logger.WithError(err).Warn("post-import hook failed")
		}
	}
	return res, nil
}

// IsTaxonomyFile reports whether path has a YAML extension
func IsTaxonomyFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// ImportDir imports every taxonomy file below dir with up to workers
// concurrent imports. Results are sorted by path; failed files are returned
// as errors and do not stop the others.
func (i *Importer) ImportDir(ctx context.Context, dir string, workers int) ([]*Result, []error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsTaxonomyFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, []error{fmt.Errorf("failed to scan %s: %w", dir, err)}
	}

	results := make([]*Result, len(paths))
	indexes := make([]int, len(paths))
	for n := range indexes {
		indexes[n] = n
	}
	errs := async.Batch(ctx, indexes, workers, "taxonomy import", 5*time.Minute, func(ctx context.Context, n int) error {
		res, err := i.Import(ctx, paths[n])
		if err != nil {
			return err
		}
		results[n] = res
		return nil
	})

	out := results[:0]
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Path < out[b].Path })
	return out, errs
}
