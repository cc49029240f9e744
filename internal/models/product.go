// internal/models/product.go
package models

import "strings"

// Raw product sources, in lookup priority order.
const (
	SourceCuratedSummary = "curated_summary"
	SourceRaw            = "raw_source"
	SourceRefresh        = "on_demand_refresh"
)

// RawProduct is what the product-context store returns before extraction.
type RawProduct struct {
	ProductRef  string            `json:"productRef"`
	Source      string            `json:"source"`
	Title       string            `json:"title"`
	Brand       string            `json:"brand,omitempty"`
	Category    string            `json:"category,omitempty"`
	Summary     string            `json:"summary,omitempty"`
	Description string            `json:"description,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Features    []string          `json:"features,omitempty"`
}

type ProductIdentity struct {
	Title        string `json:"title"`
	Brand        string `json:"brand,omitempty"`
	CategoryHint string `json:"categoryHint,omitempty"`
}

// Spec is one ordered key/value pair of a product description.
type Spec struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ProductContext is the bounded description the core reasons over. It is read-only once built.
type ProductContext struct {
	ProductRef   string          `json:"productRef"`
	Identity     ProductIdentity `json:"identity"`
	ProductType  string          `json:"productType,omitempty"`
	Purpose      string          `json:"purpose,omitempty"`
	Specs        []Spec          `json:"specs"`
	Features     []string        `json:"features"`
	Completeness float64         `json:"completeness"`
	Source       string          `json:"source,omitempty"`
	Extracted    bool            `json:"extracted"`
}

// Absent reports whether no product data was found at all.
func (c ProductContext) Absent() bool {
	return c.Completeness == 0 && len(c.Specs) == 0 && len(c.Features) == 0
}

// SpecValue looks up a spec by case-insensitive key.
func (c ProductContext) SpecValue(key string) (string, bool) {
	for _, s := range c.Specs {
		if strings.EqualFold(s.Key, key) {
			return s.Value, true
		}
	}
	return "", false
}
