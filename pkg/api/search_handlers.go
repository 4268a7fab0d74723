package api

import (
	"net/http"

	"github.com/platinummonkey/catalog/pkg/filter"
	"github.com/platinummonkey/catalog/pkg/httputil"
	"github.com/platinummonkey/catalog/pkg/search"
)

// filters collects filter[<kind>.<key>]=value parameters and the compact
// q= syntax, in that order.
func (s *Server) filters(r *http.Request) ([]filter.Filter, error) {
	filters, err := filter.FromQuery(r.URL.Query())
	if err != nil {
		return nil, err
	}
	if q := httputil.ParseQueryString(r, "q", ""); q != "" {
		parsed, err := s.parser.Parse(q)
		if err != nil {
			return nil, err
		}
		filters = append(filters, parsed...)
	}
	return filters, nil
}

// searchApis handles GET /search
// Query parameters:
//   - filter[metadata.<attr>], filter[classification.<nid>], filter[query.<attr>]
//   - q: compact filter syntax (e.g. "visibility:Public payments")
//   - limit: max results (default: 50, max: 1000)
//   - offset: pagination offset (default: 0)
func (s *Server) searchApis(w http.ResponseWriter, r *http.Request) {
	filters, err := s.filters(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := httputil.ParseQueryIntOrError(w, r, "offset", 0)
	if !ok {
		return
	}

	resp, err := s.search.Search(r.Context(), search.Request{
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}

// browse handles GET /browse, grouping matches by classification.
// subtree may be a taxonomy:// URL or an entry URN.
func (s *Server) browse(w http.ResponseWriter, r *http.Request) {
	filters, err := s.filters(r)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	subtree := httputil.ParseQueryString(r, "subtree", "")

	groups, err := s.search.Browse(r.Context(), filters, subtree)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if groups == nil {
		groups = []*search.Group{}
	}
	httputil.WriteSuccess(w, BrowseResponse{Subtree: subtree, Groups: groups})
}

// listCatalog handles GET /catalog
func (s *Server) listCatalog(w http.ResponseWriter, r *http.Request) {
	limit, ok := httputil.ParseQueryIntOrError(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := httputil.ParseQueryIntOrError(w, r, "offset", 0)
	if !ok {
		return
	}
	resp, err := s.search.ListAll(r.Context(), limit, offset)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, resp)
}
