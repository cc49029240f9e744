// Package validation checks job variables against the JSON schemas published in the
// activity registry.
package validation

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"qa-autoresponder/pkg/registry"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Validator holds compiled input schemas by task type.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{schemas: map[string]*gojsonschema.Schema{}}
}

// NewRegistryValidator compiles the input schema of every activity in reg.
func NewRegistryValidator(reg *registry.ActivityRegistry) (*Validator, error) {
	v := NewValidator()
	for _, a := range reg.Activities {
		if len(a.InputSchema) == 0 {
			continue
		}
		if err := v.Register(a.TaskType, a.InputSchema); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func (v *Validator) Register(taskType string, schema map[string]interface{}) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", taskType, err)
	}
	v.mu.Lock()
	v.schemas[taskType] = compiled
	v.mu.Unlock()
	return nil
}

// Validate checks input against the schema of taskType. Task types without a schema pass.
func (v *Validator) Validate(taskType string, input interface{}) (*ValidationResult, error) {
	v.mu.RLock()
	schema, ok := v.schemas[taskType]
	v.mu.RUnlock()
	if !ok {
		return &ValidationResult{Valid: true}, nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(input))
	if err != nil {
		return nil, fmt.Errorf("validate %s input: %w", taskType, err)
	}
	return toResult(result), nil
}

// ValidateAgainst validates data against an ad-hoc schema.
func ValidateAgainst(schema map[string]interface{}, data interface{}) (*ValidationResult, error) {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(schema), gojsonschema.NewGoLoader(data))
	if err != nil {
		return nil, err
	}
	return toResult(result), nil
}

func toResult(result *gojsonschema.Result) *ValidationResult {
	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    strings.ToUpper(desc.Type()),
		})
	}
	return out
}

// GetErrorMessages flattens the result into "field: message" strings.
func (r *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		messages = append(messages, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	return messages
}

func (r *ValidationResult) Error() string {
	return strings.Join(r.GetErrorMessages(), "; ")
}

// ValidateEmail reports whether s is a bare address such as reviewer@example.com.
func ValidateEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}
