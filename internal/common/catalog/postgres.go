// internal/common/catalog/postgres.go
package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"qa-autoresponder/internal/models"
)

var identifier = regexp.MustCompile(`^[a-z_][a-z0-9_]*(\.[a-z_][a-z0-9_]*)?$`)

// PostgresSource reads curated product summaries maintained by the catalog team.
type PostgresSource struct {
	db    *sql.DB
	query string
}

func NewPostgresSource(db *sql.DB, table string) (*PostgresSource, error) {
	if !identifier.MatchString(table) {
		return nil, fmt.Errorf("invalid curated table name %q", table)
	}
	return &PostgresSource{
		db: db,
		query: fmt.Sprintf(`SELECT title, brand, category, summary, attributes, features
			FROM %s WHERE product_ref = $1`, table),
	}, nil
}

func (s *PostgresSource) Name() string { return models.SourceCuratedSummary }

func (s *PostgresSource) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	var (
		title, brand, category, summary sql.NullString
		attributes, features            []byte
	)
	err := s.db.QueryRowContext(ctx, s.query, productRef).
		Scan(&title, &brand, &category, &summary, &attributes, &features)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query curated summary: %w", err)
	}

	p := &models.RawProduct{
		Source:   models.SourceCuratedSummary,
		Title:    title.String,
		Brand:    brand.String,
		Category: category.String,
		Summary:  summary.String,
	}
	if len(attributes) > 0 {
		if err := json.Unmarshal(attributes, &p.Attributes); err != nil {
			return nil, fmt.Errorf("decode curated attributes: %w", err)
		}
	}
	if len(features) > 0 {
		if err := json.Unmarshal(features, &p.Features); err != nil {
			return nil, fmt.Errorf("decode curated features: %w", err)
		}
	}
	return p, nil
}
