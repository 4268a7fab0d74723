package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/catalog/pkg/async"
	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/httputil"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/search"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/storage/blob"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

// maxSpecificationBytes bounds a single specification upload
const maxSpecificationBytes = 10 << 20

// TaxonomyHook runs in the background after entries of a taxonomy are written
type TaxonomyHook func(ctx context.Context, nid, version string) error

// Options wires the server's collaborators. Store, Blobs, Resolver and
// Search are required.
type Options struct {
	Store    storage.Storage
	Blobs    blob.Store
	Resolver *taxonomy.Resolver
	Search   *search.Service
	Logger   *observability.Logger

	// Tokens guard write routes; empty leaves them open
	Tokens []string

	// OnTaxonomyChange is optional
	OnTaxonomyChange TaxonomyHook
}

// Server is the catalog REST API
type Server struct {
	store        storage.Storage
	blobs        blob.Store
	resolver     *taxonomy.Resolver
	search       *search.Service
	trees        *taxonomy.TreeService
	parser       *filter.QueryParser
	logger       *observability.Logger
	router       *mux.Router
	onChange     TaxonomyHook
	requireToken func(http.Handler) http.Handler
}

// NewServer creates the API server and registers its routes
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	s := &Server{
		store:        opts.Store,
		blobs:        opts.Blobs,
		resolver:     opts.Resolver,
		search:       opts.Search,
		trees:        taxonomy.NewTreeService(opts.Store, opts.Store, logger),
		parser:       filter.NewQueryParser(),
		logger:       logger,
		router:       mux.NewRouter(),
		onChange:     opts.OnTaxonomyChange,
		requireToken: httputil.BearerTokenMiddleware(opts.Tokens),
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "no route for "+r.URL.Path)
	})
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	// APIs and versions
	r.Handle("/apis", s.write(s.createApi)).Methods(http.MethodPost)
	r.HandleFunc("/apis", s.listApis).Methods(http.MethodGet)
	r.HandleFunc("/apis/{id}", s.getApi).Methods(http.MethodGet)
	r.Handle("/apis/{id}/versions", s.write(s.createVersion)).Methods(http.MethodPost)
	r.HandleFunc("/apis/{id}/versions", s.listVersions).Methods(http.MethodGet)
	r.HandleFunc("/apis/{id}/versions/{version}", s.getVersion).Methods(http.MethodGet)
	r.Handle("/apis/{id}/versions/{version}/metadata", s.write(s.putMetadata)).Methods(http.MethodPut)
	r.HandleFunc("/apis/{id}/versions/{version}/metadata", s.getMetadata).Methods(http.MethodGet)
	r.Handle("/apis/{id}/versions/{version}/specification",
		s.write(httputil.MaxBytesMiddleware(maxSpecificationBytes)(http.HandlerFunc(s.putSpecification)).ServeHTTP)).
		Methods(http.MethodPut)
	r.HandleFunc("/apis/{id}/versions/{version}/specification", s.getSpecification).Methods(http.MethodGet)

	// Classifications
	r.Handle("/apis/{id}/versions/{version}/classifications", s.write(s.classify)).Methods(http.MethodPost)
	r.Handle("/apis/{id}/versions/{version}/classifications/{urn}", s.write(s.unclassify)).Methods(http.MethodDelete)
	r.HandleFunc("/apis/{id}/classifications", s.listClassifications).Methods(http.MethodGet)

	// Taxonomies
	r.Handle("/taxonomies", s.write(s.createTaxonomy)).Methods(http.MethodPost)
	r.HandleFunc("/taxonomies", s.listTaxonomies).Methods(http.MethodGet)
	r.Handle("/taxonomies/{nid}/{version}/entries", s.write(s.putEntries)).Methods(http.MethodPut)
	r.HandleFunc("/taxonomies/{nid}/{version}/entries", s.listEntries).Methods(http.MethodGet)
	r.HandleFunc("/taxonomies/{nid}/{version}/tree", s.getTree).Methods(http.MethodGet)

	// Discovery
	r.HandleFunc("/search", s.searchApis).Methods(http.MethodGet)
	r.HandleFunc("/browse", s.browse).Methods(http.MethodGet)
	r.HandleFunc("/catalog", s.listCatalog).Methods(http.MethodGet)
}

func (s *Server) write(h http.HandlerFunc) http.Handler {
	return s.requireToken(h)
}

// Router exposes the router so callers can install middleware with Use
func (s *Server) Router() *mux.Router {
	return s.router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// taxonomyChanged drops resolved subtrees and runs the change hook without
// blocking the response.
func (s *Server) taxonomyChanged(r *http.Request, nid, version string) {
	if s.resolver != nil {
		s.resolver.Invalidate()
	}
	if s.onChange == nil {
		return
	}
	ctx := context.WithoutCancel(r.Context())
	async.SafeGo(ctx, time.Minute, "taxonomy change", func(ctx context.Context) error {
		return s.onChange(ctx, nid, version)
	})
}
