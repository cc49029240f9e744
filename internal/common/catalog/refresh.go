// internal/common/catalog/refresh.go
package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	commonhttp "qa-autoresponder/internal/common/http"
	"qa-autoresponder/internal/models"
)

// RefreshSource fetches a listing from the marketplace API on demand.
type RefreshSource struct {
	baseURL string
	client  *commonhttp.Client
}

func NewRefreshSource(baseURL string, client *commonhttp.Client) *RefreshSource {
	return &RefreshSource{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *RefreshSource) Name() string { return models.SourceRefresh }

type listing struct {
	Title       string `json:"title"`
	Brand       string `json:"brand"`
	CategoryID  string `json:"category_id"`
	Description string `json:"description"`
	Attributes  []struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		ValueName string `json:"value_name"`
	} `json:"attributes"`
	Features []string `json:"features"`
}

func (s *RefreshSource) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	var item listing
	err := s.client.DoJSON(ctx, http.MethodGet, s.baseURL+"/items/"+url.PathEscape(productRef), nil, &item)
	var statusErr *commonhttp.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p := &models.RawProduct{
		Source:      models.SourceRefresh,
		Title:       item.Title,
		Brand:       item.Brand,
		Category:    item.CategoryID,
		Description: item.Description,
		Features:    item.Features,
	}
	for _, a := range item.Attributes {
		if a.ValueName == "" {
			continue
		}
		key := a.Name
		if key == "" {
			key = a.ID
		}
		if p.Attributes == nil {
			p.Attributes = map[string]string{}
		}
		p.Attributes[key] = a.ValueName
		if strings.EqualFold(a.ID, "BRAND") && p.Brand == "" {
			p.Brand = a.ValueName
		}
	}
	if p.Title == "" && len(p.Attributes) == 0 && p.Description == "" {
		return nil, nil
	}
	return p, nil
}
