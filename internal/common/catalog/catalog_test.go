package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "qa-autoresponder/internal/common/errors"
	commonhttp "qa-autoresponder/internal/common/http"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/models"
)

// ==========================
// Test helpers
// ==========================

type fakeSource struct {
	name    string
	product *models.RawProduct
	err     error
	calls   int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	f.calls++
	if f.product == nil {
		return nil, f.err
	}
	cp := *f.product
	return &cp, f.err
}

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func setupElasticsearch(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{server.URL}})
	require.NoError(t, err)
	return client
}

// ==========================
// Chain
// ==========================

func TestChain_FirstPresentWins(t *testing.T) {
	curated := &fakeSource{name: models.SourceCuratedSummary}
	raw := &fakeSource{name: models.SourceRaw, product: &models.RawProduct{Title: "Desk lamp"}}
	refresh := &fakeSource{name: models.SourceRefresh, product: &models.RawProduct{Title: "other"}}

	p, err := NewChain(logger.NewTestLogger(t), curated, raw, refresh).Fetch(context.Background(), "MLB1")

	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Desk lamp", p.Title)
	assert.Equal(t, "MLB1", p.ProductRef)
	assert.Equal(t, models.SourceRaw, p.Source)
	assert.Equal(t, 0, refresh.calls)
}

func TestChain_SourceErrorFallsThrough(t *testing.T) {
	curated := &fakeSource{name: models.SourceCuratedSummary, err: errors.New("pg down")}
	raw := &fakeSource{name: models.SourceRaw, product: &models.RawProduct{Title: "Desk lamp"}}

	p, err := NewChain(logger.NewTestLogger(t), curated, raw).Fetch(context.Background(), "MLB1")

	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", p.Title)
}

func TestChain_AbsentEverywhere(t *testing.T) {
	p, err := NewChain(logger.NewTestLogger(t),
		&fakeSource{name: "a"},
		&fakeSource{name: "b", err: errors.New("timeout")},
	).Fetch(context.Background(), "MLB1")

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestChain_AllSourcesFailed(t *testing.T) {
	_, err := NewChain(logger.NewTestLogger(t),
		&fakeSource{name: "a", err: errors.New("x")},
		&fakeSource{name: "b", err: errors.New("y")},
	).Fetch(context.Background(), "MLB1")

	code, ok := apperrors.CodeOf(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeContextStoreFailed, code)
}

func TestChain_EmptyRefIsAbsent(t *testing.T) {
	src := &fakeSource{name: "a", product: &models.RawProduct{Title: "x"}}
	p, err := NewChain(logger.NewTestLogger(t), src).Fetch(context.Background(), "")

	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.Equal(t, 0, src.calls)
}

// ==========================
// Postgres curated summaries
// ==========================

func TestPostgresSource_Fetch(t *testing.T) {
	db, mock := setupMockDB(t)
	src, err := NewPostgresSource(db, "product_summaries")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{"title", "brand", "category", "summary", "attributes", "features"}).
		AddRow("Desk lamp", "Lumen", "lighting", "LED desk lamp", []byte(`{"color":"black","voltage":"bivolt"}`), []byte(`["dimmable","usb port"]`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM product_summaries WHERE product_ref = $1")).
		WithArgs("MLB1").
		WillReturnRows(rows)

	p, err := src.Fetch(context.Background(), "MLB1")

	require.NoError(t, err)
	assert.Equal(t, "Desk lamp", p.Title)
	assert.Equal(t, "black", p.Attributes["color"])
	assert.Equal(t, []string{"dimmable", "usb port"}, p.Features)
	assert.Equal(t, models.SourceCuratedSummary, p.Source)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSource_NoRows(t *testing.T) {
	db, mock := setupMockDB(t)
	src, err := NewPostgresSource(db, "catalog.product_summaries")
	require.NoError(t, err)

	mock.ExpectQuery("FROM catalog.product_summaries").WillReturnError(sql.ErrNoRows)

	p, err := src.Fetch(context.Background(), "MLB2")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPostgresSource_RejectsUnsafeTable(t *testing.T) {
	_, err := NewPostgresSource(nil, "products; DROP TABLE x")
	assert.Error(t, err)
}

// ==========================
// Elasticsearch raw documents
// ==========================

func TestElasticsearchSource_Fetch(t *testing.T) {
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/_doc/MLB1", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"found": true,
			"_source": map[string]interface{}{
				"title":      "Tripod",
				"attributes": map[string]interface{}{"max_load_kg": 5, "material": "aluminium"},
				"features":   []string{"foldable"},
			},
		})
	})

	p, err := NewElasticsearchSource(client, "products").Fetch(context.Background(), "MLB1")

	require.NoError(t, err)
	assert.Equal(t, "Tripod", p.Title)
	assert.Equal(t, "5", p.Attributes["max_load_kg"])
	assert.Equal(t, "aluminium", p.Attributes["material"])
}

func TestElasticsearchSource_NotFound(t *testing.T) {
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"found":false}`))
	})

	p, err := NewElasticsearchSource(client, "products").Fetch(context.Background(), "missing")

	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestElasticsearchSource_ServerError(t *testing.T) {
	client := setupElasticsearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{}`))
	})

	_, err := NewElasticsearchSource(client, "products").Fetch(context.Background(), "MLB1")
	assert.Error(t, err)
}

// ==========================
// Marketplace refresh
// ==========================

func TestRefreshSource_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/items/MLB1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{
			"title": "Camera strap",
			"category_id": "MLB1042",
			"attributes": [
				{"id": "BRAND", "name": "Brand", "value_name": "Peak"},
				{"id": "COLOR", "name": "Color", "value_name": "Black"},
				{"id": "LENGTH", "name": "Length", "value_name": ""}
			]
		}`))
	}))
	defer server.Close()

	src := NewRefreshSource(server.URL, commonhttp.NewClient(time.Second))

	p, err := src.Fetch(context.Background(), "MLB1")
	require.NoError(t, err)
	assert.Equal(t, "Peak", p.Brand)
	assert.Equal(t, "Black", p.Attributes["Color"])
	assert.NotContains(t, p.Attributes, "Length")

	p, err = src.Fetch(context.Background(), "MLB404")
	assert.NoError(t, err)
	assert.Nil(t, p)
}
