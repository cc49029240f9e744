package topic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qa-autoresponder/internal/answering"
	"qa-autoresponder/internal/common/logger"
	"qa-autoresponder/internal/common/oracle/oracletest"
	"qa-autoresponder/internal/models"
)

func newDetector(t *testing.T, o *oracletest.Scripted) *Detector {
	return NewDetector(o, answering.DefaultSettings(), logger.NewTestLogger(t))
}

func question(text string) models.Question {
	return models.Question{ID: "q-1", Text: text, ProductRef: "MLB1"}
}

func TestClassify_OracleVerdict(t *testing.T) {
	o := oracletest.New().On(Marker, "PRODUCT_SEARCH: no\nCRITICAL: yes\nCATEGORY: physical_safety\nCONFIDENCE: 88\nREASONING: asks about load capacity")
	d := newDetector(t, o)

	c := d.Classify(context.Background(), question("Will this tripod hold my 10kg camera?"), "Tripod")

	assert.True(t, c.IsCritical)
	assert.Equal(t, models.CategoryPhysical, c.CriticalCategory)
	assert.False(t, c.IsProductSearch)
	assert.InDelta(t, 0.88, c.Confidence, 1e-9)
	assert.False(t, c.UsedFallback)
	assert.Equal(t, "asks about load capacity", c.Rationale)
	assert.Equal(t, 1, o.Calls())
	assert.Contains(t, o.Prompts()[0], "Tripod")
}

func TestClassify_TransformerScenario(t *testing.T) {
	tests := []struct {
		name     string
		oracle   *oracletest.Scripted
		fallback string
	}{
		{
			name:   "oracle agrees",
			oracle: oracletest.New().On(Marker, "PRODUCT_SEARCH: no\nCRITICAL: yes\nCATEGORY: electrical_safety.\nCONFIDENCE: 0.95"),
		},
		{
			name:   "oracle misses it",
			oracle: oracletest.New().On(Marker, "PRODUCT_SEARCH: no\nCRITICAL: no\nCATEGORY: none\nCONFIDENCE: 70"),
		},
		{
			name:     "oracle down",
			oracle:   oracletest.New().OnError(Marker, errors.New("connection refused")),
			fallback: FallbackOracleError,
		},
		{
			name:     "oracle rambles",
			oracle:   oracletest.New().On(Marker, "I think this is probably fine to answer."),
			fallback: FallbackMalformedOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newDetector(t, tt.oracle).Classify(context.Background(), question("Does it need a 220V transformer?"), "")

			assert.True(t, c.IsCritical)
			assert.Equal(t, models.CategoryElectrical, c.CriticalCategory)
			assert.Equal(t, tt.fallback != "", c.UsedFallback)
			assert.Equal(t, tt.fallback, c.FallbackReason)
		})
	}
}

func TestClassify_FallbackProductSearch(t *testing.T) {
	o := oracletest.New().OnError(Marker, errors.New("boom"))
	d := newDetector(t, o)

	c := d.Classify(context.Background(), question("Do you sell phone cases too?"), "")
	assert.True(t, c.IsProductSearch)
	assert.False(t, c.IsCritical)

	c = d.Classify(context.Background(), question("Do you have info on whether it is compatible with the X200?"), "")
	assert.False(t, c.IsProductSearch, "comparison phrasing is about the listed product")
}

func TestClassify_CriticalWithoutCategoryUsesVocabulary(t *testing.T) {
	o := oracletest.New().On(Marker, "PRODUCT_SEARCH: no\nCRITICAL: yes\nCATEGORY: something else")

	c := newDetector(t, o).Classify(context.Background(), question("Is it gluten free?"), "")

	assert.True(t, c.IsCritical)
	assert.Equal(t, models.CategoryHealth, c.CriticalCategory)
}

func TestMatchCritical(t *testing.T) {
	d := newDetector(t, oracletest.New())

	tests := []struct {
		text     string
		category models.CriticalCategory
		hit      bool
	}{
		{"Qual a tensão de entrada?", models.CategoryElectrical, true},
		{"Funciona em 127 V?", models.CategoryElectrical, true},
		{"Does it overheat after an hour?", models.CategoryElectrical, true},
		{"What is the max load?", models.CategoryPhysical, true},
		{"Contém BPA?", models.CategoryHealth, true},
		{"É homologado pela Anatel?", models.CategoryLegal, true},
		{"What color is it?", models.CategoryNone, false},
		{"What color is it and how heavy is it?", models.CategoryNone, false},
		{"Is the picture sharp on a 4K screen?", models.CategoryNone, false},
		{"Does it work with Fire TV?", models.CategoryNone, false},
		{"Does the kit include the nut and bolt?", models.CategoryNone, false},
		{"Does it come with a 10mm socket?", models.CategoryNone, false},
		{"Can it burn Blu-ray discs?", models.CategoryNone, false},
		{"Will you send an invoice?", models.CategoryNone, false},
		{"Does it print on legal size paper?", models.CategoryNone, false},
		{"Can I take a break mid-cycle?", models.CategoryNone, false},
		{"Can the battery catch fire?", models.CategoryPhysical, true},
		{"Is it safe with a tree nut allergy?", models.CategoryHealth, true},
		{"Is it street legal?", models.CategoryLegal, true},
		{"Can I plug it into a wall socket?", models.CategoryElectrical, true},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			cat, hit := d.MatchCritical(tt.text)
			assert.Equal(t, tt.hit, hit)
			assert.Equal(t, tt.category, cat)
		})
	}
}

func TestParse_Malformed(t *testing.T) {
	p := parse("CRITICAL: maybe")

	_, ok := p.Get()
	require.False(t, ok)
	assert.ElementsMatch(t, []string{tagProductSearch, tagCritical}, p.Missing())
}
