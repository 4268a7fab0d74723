//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/catalog/pkg/api"
	"github.com/platinummonkey/catalog/pkg/catalog"
	"github.com/platinummonkey/catalog/pkg/importer"
	"github.com/platinummonkey/catalog/pkg/observability"
	"github.com/platinummonkey/catalog/pkg/search"
	"github.com/platinummonkey/catalog/pkg/storage"
	"github.com/platinummonkey/catalog/pkg/storage/blob"
	"github.com/platinummonkey/catalog/pkg/storage/cache"
	"github.com/platinummonkey/catalog/pkg/storage/sqlstore"
	"github.com/platinummonkey/catalog/pkg/taxonomy"
)

const domainsYAML = `nid: domains
version: "2024.1"
title: Business domains
entries:
  - urn: urn:domains:finance
    url: taxonomy://finance
    title: Finance
    type: classification
  - urn: urn:domains:payments
    url: taxonomy://finance/payments
    title: Payments
    type: classification
  - urn: urn:domains:cards
    url: taxonomy://finance/payments/cards
    title: Cards
    type: classification
  - urn: urn:domains:hr
    url: taxonomy://hr
    title: Human resources
    type: classification
`

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("catalog"),
		postgres.WithUsername("catalog"),
		postgres.WithPassword("catalog"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func startGeneric(t *testing.T, ctx context.Context, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err, "failed to start %s", req.Image)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("failed to terminate %s: %v", req.Image, err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, mapped.Port())
}

type stack struct {
	store  *cache.Storage
	server *httptest.Server
	imp    *importer.Importer
}

func newStack(t *testing.T) *stack {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()
	logger := observability.NewLogger(observability.WarnLevel, io.Discard)

	cfg := storage.DefaultConfig()
	cfg.Type = "postgres"
	cfg.PostgresURL = startPostgres(t, ctx)
	cfg.RedisURL = "redis://" + startGeneric(t, ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}, "6379")
	cfg.CacheEnabled = true
	cfg.BlobType = "s3"
	cfg.S3Endpoint = "http://" + startGeneric(t, ctx, testcontainers.ContainerRequest{
		Image:        "minio/minio:latest",
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"MINIO_ROOT_USER":     "minioadmin",
			"MINIO_ROOT_PASSWORD": "minioadmin",
		},
		Cmd:        []string{"server", "/data"},
		WaitingFor: wait.ForHTTP("/minio/health/live").WithPort("9000/tcp"),
	}, "9000")
	cfg.S3AccessKey = "minioadmin"
	cfg.S3SecretKey = "minioadmin"
	cfg.S3Bucket = "specifications"
	cfg.S3Region = "us-east-1"
	cfg.S3ForcePathStyle = true

	sqlStore, err := sqlstore.Open(ctx, cfg, logger)
	require.NoError(t, err)
	rc, err := cache.NewRedisClient(cfg)
	require.NoError(t, err)
	store := cache.New(sqlStore, rc, logger)
	t.Cleanup(func() { store.Close() })

	blobs, err := blob.New(ctx, cfg)
	require.NoError(t, err)

	resolver := taxonomy.NewResolver(store, taxonomy.DefaultResolverConfig())
	server := api.NewServer(api.Options{
		Store:    store,
		Blobs:    blobs,
		Resolver: resolver,
		Search:   search.NewService(store, resolver, logger, search.DefaultConfig()),
		Logger:   logger,
		OnTaxonomyChange: func(ctx context.Context, nid, version string) error {
			_, err := store.Warm(ctx, nid, version)
			return err
		},
	})
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	imp := importer.New(store, logger)
	imp.AfterImport(func(ctx context.Context, nid, version string) error {
		resolver.Invalidate()
		return nil
	})
	return &stack{store: store, server: ts, imp: imp}
}

func (s *stack) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (s *stack) expect(t *testing.T, status int, method, path string, body interface{}) *http.Response {
	t.Helper()
	resp := s.do(t, method, path, body)
	if resp.StatusCode != status {
		data, _ := io.ReadAll(resp.Body)
		t.Fatalf("%s %s: status %d, want %d: %s", method, path, resp.StatusCode, status, data)
	}
	return resp
}

func TestCatalogEndToEnd(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "domains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(domainsYAML), 0644))
	res, err := s.imp.Import(ctx, path)
	require.NoError(t, err)
	require.Equal(t, 4, res.Stored)
	require.Empty(t, res.Rejected)

	for _, a := range []struct{ id, name, visibility, urn string }{
		{"checkout", "Checkout", "Public", "urn:domains:cards"},
		{"ledger", "Ledger", "Private", "urn:domains:finance"},
		{"people", "People", "Public", "urn:domains:hr"},
	} {
		s.expect(t, http.StatusCreated, http.MethodPost, "/apis", map[string]string{"id": a.id, "name": a.name})
		s.expect(t, http.StatusCreated, http.MethodPost, "/apis/"+a.id+"/versions", map[string]string{"version": "v1"})
		s.expect(t, http.StatusOK, http.MethodPut, "/apis/"+a.id+"/versions/v1/metadata", map[string]string{
			"name":       a.name,
			"visibility": a.visibility,
		})
		s.expect(t, http.StatusCreated, http.MethodPost, "/apis/"+a.id+"/versions/v1/classifications", map[string]string{
			"taxonomy_urn":     a.urn,
			"taxonomy_version": "2024.1",
		})
	}

	t.Run("tree", func(t *testing.T) {
		resp := s.expect(t, http.StatusOK, http.MethodGet, "/taxonomies/domains/latest/tree", nil)
		var tree api.TreeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tree))
		assert.Equal(t, "2024.1", tree.Version)
		require.Len(t, tree.Roots, 2)
		assert.Empty(t, tree.Rejected)
	})

	find := func(t *testing.T, params url.Values) search.Response {
		t.Helper()
		resp := s.expect(t, http.StatusOK, http.MethodGet, "/search?"+params.Encode(), nil)
		var out search.Response
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out
	}

	t.Run("classification includes descendants", func(t *testing.T) {
		resp := find(t, url.Values{"filter[classification.domains]": {"urn:domains:finance"}})
		ids := apiIDs(resp)
		assert.ElementsMatch(t, []string{"checkout", "ledger"}, ids)
	})

	t.Run("classification and metadata", func(t *testing.T) {
		resp := find(t, url.Values{
			"filter[classification.domains]": {"urn:domains:finance"},
			"filter[metadata.visibility]":    {"Public"},
		})
		assert.Equal(t, "mixed", resp.Strategy)
		assert.Equal(t, []string{"checkout"}, apiIDs(resp))
	})

	t.Run("specification round trip through s3", func(t *testing.T) {
		spec := []byte(`{"openapi":"3.0.0","info":{"title":"Checkout","version":"1"}}`)
		req, err := http.NewRequest(http.MethodPut, s.server.URL+"/apis/checkout/versions/v1/specification", bytes.NewReader(spec))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		got := s.expect(t, http.StatusOK, http.MethodGet, "/apis/checkout/versions/v1/specification", nil)
		data, err := io.ReadAll(got.Body)
		require.NoError(t, err)
		assert.Equal(t, spec, data)
		assert.NotEmpty(t, got.Header.Get("ETag"))
	})

	t.Run("cache serves warmed entries", func(t *testing.T) {
		n, err := s.store.Warm(ctx, "domains", "")
		require.NoError(t, err)
		assert.Equal(t, 4, n)

		e, err := s.store.GetEntry(ctx, "urn:domains:cards", "2024.1")
		require.NoError(t, err)
		assert.Equal(t, "taxonomy://finance/payments/cards", e.URL)

		_, err = s.store.GetEntry(ctx, "urn:domains:absent", "2024.1")
		assert.ErrorIs(t, err, catalog.ErrNotFound)
	})
}

func apiIDs(resp search.Response) []string {
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.Api.ID)
	}
	return ids
}
