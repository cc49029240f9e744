// internal/common/catalog/elasticsearch.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"

	"qa-autoresponder/internal/models"
)

// ElasticsearchSource reads raw listing documents indexed by product reference.
type ElasticsearchSource struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSource(client *elasticsearch.Client, index string) *ElasticsearchSource {
	return &ElasticsearchSource{client: client, index: index}
}

func (s *ElasticsearchSource) Name() string { return models.SourceRaw }

type rawDocument struct {
	Title       string                 `json:"title"`
	Brand       string                 `json:"brand"`
	Category    string                 `json:"category"`
	Description string                 `json:"description"`
	Attributes  map[string]interface{} `json:"attributes"`
	Features    []string               `json:"features"`
}

func (s *ElasticsearchSource) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	res, err := s.client.Get(s.index, productRef, s.client.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get raw document: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get raw document: %s", res.Status())
	}

	var envelope struct {
		Found  bool        `json:"found"`
		Source rawDocument `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode raw document: %w", err)
	}
	if !envelope.Found {
		return nil, nil
	}

	doc := envelope.Source
	p := &models.RawProduct{
		Source:      models.SourceRaw,
		Title:       doc.Title,
		Brand:       doc.Brand,
		Category:    doc.Category,
		Description: doc.Description,
		Features:    doc.Features,
	}
	if len(doc.Attributes) > 0 {
		p.Attributes = make(map[string]string, len(doc.Attributes))
		for k, v := range doc.Attributes {
			if v == nil {
				continue
			}
			p.Attributes[k] = fmt.Sprint(v)
		}
	}
	return p, nil
}
