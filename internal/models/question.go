// internal/models/question.go
package models

// Question is a buyer question on a listing. ID is the idempotency key.
type Question struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	ProductRef  string `json:"productRef"`
	CustomerRef string `json:"customerRef,omitempty"`
	Locale      string `json:"locale,omitempty"`
}

// CriticalCategory names a safety topic that is never answered automatically.
type CriticalCategory string

const (
	CategoryNone       CriticalCategory = ""
	CategoryElectrical CriticalCategory = "electrical_safety"
	CategoryPhysical   CriticalCategory = "physical_safety"
	CategoryHealth     CriticalCategory = "health_safety"
	CategoryLegal      CriticalCategory = "legal_compliance"
)

// CriticalCategories lists the categories in the order they are checked.
var CriticalCategories = []CriticalCategory{
	CategoryElectrical,
	CategoryPhysical,
	CategoryHealth,
	CategoryLegal,
}

// ParseCriticalCategory maps oracle output to a known category. Unknown values map to CategoryNone.
func ParseCriticalCategory(s string) CriticalCategory {
	switch CriticalCategory(s) {
	case CategoryElectrical, CategoryPhysical, CategoryHealth, CategoryLegal:
		return CriticalCategory(s)
	}
	return CategoryNone
}

// TopicClassification is the Topic Detector output.
type TopicClassification struct {
	IsProductSearch  bool             `json:"isProductSearch"`
	IsCritical       bool             `json:"isCritical"`
	CriticalCategory CriticalCategory `json:"criticalCategory,omitempty"`
	Confidence       float64          `json:"confidence"`
	UsedFallback     bool             `json:"usedFallback"`
	FallbackReason   string           `json:"fallbackReason,omitempty"`
	Rationale        string           `json:"rationale,omitempty"`
}
