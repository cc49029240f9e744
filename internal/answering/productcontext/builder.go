// Package productcontext turns raw catalog data into the bounded ProductContext the
// reasoning stages work from.
package productcontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"qa-autoresponder/internal/answering"
	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/oracle"
	"qa-autoresponder/internal/models"
)

// Marker identifies extraction prompts.
const Marker = "TASK: PRODUCT_EXTRACTION"

const (
	tagProductType  = "PRODUCT_TYPE"
	tagPurpose      = "PURPOSE"
	tagFeatures     = "FEATURES"
	tagSpecs        = "SPECS"
	tagCompleteness = "COMPLETENESS"
)

const (
	cachePrefix       = "product:context:"
	fallbackCeiling   = 0.5
	maxDescriptionLen = 2000
)

// Fetcher loads raw product data. (nil, nil) means the product is unknown; an error means
// the product store could not answer.
type Fetcher interface {
	Fetch(ctx context.Context, productRef string) (*models.RawProduct, error)
}

// DefaultBuildTimeout bounds one shared fetch and extraction.
const DefaultBuildTimeout = 60 * time.Second

type Builder struct {
	fetcher      Fetcher
	oracle       oracle.Oracle
	settings     answering.Settings
	cache        redis.Cmdable
	cacheTTL     time.Duration
	buildTimeout time.Duration
	group        singleflight.Group
	logger       logger.Logger
}

func NewBuilder(f Fetcher, o oracle.Oracle, settings answering.Settings, log logger.Logger) *Builder {
	return &Builder{
		fetcher:      f,
		oracle:       o,
		settings:     settings,
		buildTimeout: DefaultBuildTimeout,
		logger:       log.WithFields(map[string]interface{}{"component": "context_builder"}),
	}
}

// WithCache keeps extracted contexts in Redis so a product is built once per TTL.
func (b *Builder) WithCache(client redis.Cmdable, ttl time.Duration) *Builder {
	b.cache = client
	b.cacheTTL = ttl
	return b
}

// WithBuildTimeout replaces DefaultBuildTimeout.
func (b *Builder) WithBuildTimeout(d time.Duration) *Builder {
	if d > 0 {
		b.buildTimeout = d
	}
	return b
}

// Build returns the context of productRef. An unknown product yields an absent context with
// completeness 0. The only errors are CONTEXT_STORE_FAILED, when the product store could not
// answer, and ctx's own error; the question must be retried in both cases.
//
// Concurrent builds of the same product share one fetch and one extraction. The shared work
// is bounded by the build timeout, not by any caller's context.
func (b *Builder) Build(ctx context.Context, productRef string) (models.ProductContext, error) {
	if productRef == "" {
		return absent(productRef), nil
	}
	if pc, ok := b.Peek(ctx, productRef); ok {
		return pc, nil
	}

	ch := b.group.DoChan(productRef, func() (interface{}, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.buildTimeout)
		defer cancel()

		pc, err := b.build(bctx, productRef)
		if err != nil {
			return nil, err
		}
		if pc.Extracted {
			b.store(bctx, pc)
		}
		return pc, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return models.ProductContext{}, res.Err
		}
		return res.Val.(models.ProductContext), nil
	case <-ctx.Done():
		return models.ProductContext{}, ctx.Err()
	}
}

// Peek returns a cached context without fetching.
func (b *Builder) Peek(ctx context.Context, productRef string) (models.ProductContext, bool) {
	if b.cache == nil || productRef == "" {
		return models.ProductContext{}, false
	}
	raw, err := b.cache.Get(ctx, cachePrefix+productRef).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			b.logger.Warn("context cache read failed", map[string]interface{}{
				"productRef": productRef,
				"error":      err.Error(),
			})
		}
		return models.ProductContext{}, false
	}
	var pc models.ProductContext
	if err := json.Unmarshal(raw, &pc); err != nil {
		return models.ProductContext{}, false
	}
	return pc, true
}

func (b *Builder) store(ctx context.Context, pc models.ProductContext) {
	if b.cache == nil {
		return
	}
	payload, err := json.Marshal(pc)
	if err != nil {
		return
	}
	if err := b.cache.Set(ctx, cachePrefix+pc.ProductRef, payload, b.cacheTTL).Err(); err != nil {
		b.logger.Warn("context cache write failed", map[string]interface{}{
			"productRef": pc.ProductRef,
			"error":      err.Error(),
		})
	}
}

func (b *Builder) build(ctx context.Context, productRef string) (models.ProductContext, error) {
	raw, err := b.fetcher.Fetch(ctx, productRef)
	if err != nil {
		b.logger.Warn("product fetch failed", map[string]interface{}{
			"productRef": productRef,
			"error":      err.Error(),
		})
		if _, ok := apperrors.CodeOf(err); ok {
			return models.ProductContext{}, err
		}
		return models.ProductContext{}, apperrors.NewContextStoreFailedError("fetch", err)
	}
	if raw == nil {
		b.logger.WithError(apperrors.NewContextAbsentError(productRef)).Info("no product data", map[string]interface{}{"productRef": productRef})
		return absent(productRef), nil
	}

	text, err := b.oracle.Invoke(oracle.WithStage(ctx, "extract"), b.prompt(raw), b.settings.Extract.Temperature, b.settings.Extract.MaxTokens)
	if err != nil {
		b.logger.Warn("extraction oracle failed, using raw attributes", map[string]interface{}{
			"productRef": productRef,
			"error":      err.Error(),
		})
		return b.fromRaw(productRef, raw), nil
	}

	parsed := parseExtraction(text)
	ext, ok := parsed.Get()
	if !ok {
		malformed := apperrors.NewOracleMalformedOutputError("extract", parsed.Missing())
		b.logger.WithError(malformed).Warn("extraction output malformed, using raw attributes", map[string]interface{}{
			"productRef": productRef,
		})
		return b.fromRaw(productRef, raw), nil
	}
	return b.merge(productRef, raw, ext), nil
}

type extraction struct {
	productType  string
	purpose      string
	features     []string
	specs        []models.Spec
	completeness float64
}

func parseExtraction(text string) oracle.Parsed[extraction] {
	tags := oracle.ParseTags(text, tagProductType, tagPurpose, tagFeatures, tagSpecs, tagCompleteness)
	completeness, ok := tags.Float(tagCompleteness)
	missing := tags.Missing(tagProductType)
	if !ok {
		missing = append(missing, tagCompleteness)
	}
	if len(missing) > 0 {
		return oracle.Malformed[extraction](text, missing)
	}
	if completeness > 1 {
		completeness /= 100
	}

	ext := extraction{
		productType:  tags.String(tagProductType),
		purpose:      tags.String(tagPurpose),
		features:     tags.Lines(tagFeatures),
		completeness: clamp01(completeness),
	}
	for _, line := range tags.Lines(tagSpecs) {
		key, value, found := strings.Cut(line, ":")
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		if !found || key == "" || value == "" {
			continue
		}
		ext.specs = append(ext.specs, models.Spec{Key: key, Value: value})
	}
	return oracle.Ok(ext)
}

func (b *Builder) merge(productRef string, raw *models.RawProduct, ext extraction) models.ProductContext {
	pc := base(productRef, raw)
	pc.ProductType = ext.productType
	pc.Purpose = b.truncate(ext.purpose)
	pc.Completeness = ext.completeness
	pc.Extracted = true

	seen := map[string]bool{}
	for _, s := range ext.specs {
		pc.Specs = b.appendSpec(pc.Specs, seen, s.Key, s.Value)
	}
	for _, key := range sortedKeys(raw.Attributes) {
		pc.Specs = b.appendSpec(pc.Specs, seen, key, raw.Attributes[key])
	}

	features := ext.features
	if len(features) == 0 {
		features = raw.Features
	}
	pc.Features = b.boundFeatures(features)
	return pc
}

// fromRaw is the deterministic fallback when extraction is unavailable.
func (b *Builder) fromRaw(productRef string, raw *models.RawProduct) models.ProductContext {
	pc := base(productRef, raw)
	seen := map[string]bool{}
	for _, key := range sortedKeys(raw.Attributes) {
		pc.Specs = b.appendSpec(pc.Specs, seen, key, raw.Attributes[key])
	}
	pc.Features = b.boundFeatures(raw.Features)

	fields := []bool{
		raw.Title != "",
		raw.Brand != "",
		raw.Category != "",
		raw.Summary != "" || raw.Description != "",
		len(raw.Attributes) > 0,
		len(raw.Features) > 0,
	}
	filled := 0
	for _, f := range fields {
		if f {
			filled++
		}
	}
	pc.Completeness = min(float64(filled)/float64(len(fields)), fallbackCeiling)
	return pc
}

func (b *Builder) appendSpec(specs []models.Spec, seen map[string]bool, key, value string) []models.Spec {
	k := strings.ToLower(key)
	if len(specs) >= b.settings.MaxSpecs || seen[k] || strings.TrimSpace(value) == "" {
		return specs
	}
	seen[k] = true
	return append(specs, models.Spec{Key: key, Value: b.truncate(value)})
}

func (b *Builder) boundFeatures(features []string) []string {
	out := make([]string, 0, min(len(features), b.settings.MaxFeatures))
	for _, f := range features {
		if len(out) == b.settings.MaxFeatures {
			break
		}
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, b.truncate(f))
		}
	}
	return out
}

func (b *Builder) truncate(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= b.settings.MaxValueChars {
		return string(r)
	}
	return strings.TrimSpace(string(r[:b.settings.MaxValueChars]))
}

func (b *Builder) prompt(raw *models.RawProduct) string {
	var parts []string
	parts = append(parts, Marker)
	parts = append(parts, "Extract a compact product description from the catalog data below. Use ONLY the data given.")

	parts = append(parts, fmt.Sprintf("\nTitle: %s", raw.Title))
	if raw.Brand != "" {
		parts = append(parts, fmt.Sprintf("Brand: %s", raw.Brand))
	}
	if raw.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", raw.Category))
	}
	if raw.Summary != "" {
		parts = append(parts, fmt.Sprintf("Summary: %s", raw.Summary))
	}
	if raw.Description != "" {
		desc := []rune(raw.Description)
		if len(desc) > maxDescriptionLen {
			desc = desc[:maxDescriptionLen]
		}
		parts = append(parts, fmt.Sprintf("Description: %s", string(desc)))
	}
	if len(raw.Attributes) > 0 {
		parts = append(parts, "Attributes:")
		for _, k := range sortedKeys(raw.Attributes) {
			parts = append(parts, fmt.Sprintf("- %s: %s", k, raw.Attributes[k]))
		}
	}
	if len(raw.Features) > 0 {
		parts = append(parts, "Features:")
		for _, f := range raw.Features {
			parts = append(parts, "- "+f)
		}
	}

	parts = append(parts, "\nReply exactly in this format:")
	parts = append(parts, "PRODUCT_TYPE: what the product is, in a few words")
	parts = append(parts, "PURPOSE: one line on what it is for")
	parts = append(parts, fmt.Sprintf("FEATURES: up to %d most relevant features, one per line", b.settings.MaxFeatures))
	parts = append(parts, fmt.Sprintf("SPECS: up to %d key specs, one \"key: value\" per line", b.settings.MaxSpecs))
	parts = append(parts, "COMPLETENESS: 0.0-1.0, how well the data describes the product")
	return strings.Join(parts, "\n")
}

// Describe renders a context for prompts.
func Describe(pc models.ProductContext) string {
	if pc.Absent() {
		return "(no product data available)"
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("Title: %s", pc.Identity.Title))
	if pc.Identity.Brand != "" {
		lines = append(lines, fmt.Sprintf("Brand: %s", pc.Identity.Brand))
	}
	if pc.ProductType != "" {
		lines = append(lines, fmt.Sprintf("Type: %s", pc.ProductType))
	}
	if pc.Purpose != "" {
		lines = append(lines, fmt.Sprintf("Purpose: %s", pc.Purpose))
	}
	if len(pc.Specs) > 0 {
		lines = append(lines, "Specs:")
		for _, s := range pc.Specs {
			lines = append(lines, fmt.Sprintf("- %s: %s", s.Key, s.Value))
		}
	}
	if len(pc.Features) > 0 {
		lines = append(lines, "Features:")
		for _, f := range pc.Features {
			lines = append(lines, "- "+f)
		}
	}
	return strings.Join(lines, "\n")
}

func base(productRef string, raw *models.RawProduct) models.ProductContext {
	return models.ProductContext{
		ProductRef: productRef,
		Identity: models.ProductIdentity{
			Title:        raw.Title,
			Brand:        raw.Brand,
			CategoryHint: raw.Category,
		},
		Specs:    []models.Spec{},
		Features: []string{},
		Source:   raw.Source,
	}
}

func absent(productRef string) models.ProductContext {
	return models.ProductContext{
		ProductRef: productRef,
		Specs:      []models.Spec{},
		Features:   []string{},
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
