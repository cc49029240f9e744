// Package catalog loads raw product data from the configured sources in priority order:
// curated summaries, the raw product index, then an on-demand marketplace refresh.
package catalog

import (
	"context"
	"fmt"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/models"
)

// Source fetches raw product data. A nil product with a nil error means the source has no
// data for the reference.
type Source interface {
	Name() string
	Fetch(ctx context.Context, productRef string) (*models.RawProduct, error)
}

// Chain asks each source in order and returns the first present product.
type Chain struct {
	sources []Source
	logger  logger.Logger
}

func NewChain(log logger.Logger, sources ...Source) *Chain {
	return &Chain{
		sources: sources,
		logger:  log.WithFields(map[string]interface{}{"component": "catalog"}),
	}
}

// Fetch returns (nil, nil) when every source reports absence. A source error is logged and
// the next source is tried; an error is returned only if no source could answer at all.
func (c *Chain) Fetch(ctx context.Context, productRef string) (*models.RawProduct, error) {
	if productRef == "" {
		return nil, nil
	}

	var lastErr error
	failed := 0
	for _, src := range c.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p, err := src.Fetch(ctx, productRef)
		if err != nil {
			failed++
			lastErr = err
			c.logger.Warn("product source failed", map[string]interface{}{
				"source":     src.Name(),
				"productRef": productRef,
				"error":      err,
			})
			continue
		}
		if p != nil {
			p.ProductRef = productRef
			if p.Source == "" {
				p.Source = src.Name()
			}
			return p, nil
		}
	}

	if failed > 0 && failed == len(c.sources) {
		return nil, apperrors.NewContextStoreFailedError("all", fmt.Errorf("%d sources failed: %w", failed, lastErr))
	}
	return nil, nil
}
