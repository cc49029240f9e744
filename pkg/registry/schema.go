package registry

// ActivityRegistry lists the job types this module serves, as published to the BPMN modeler.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

// Activity describes one task type: its job variables contract, the BPMN error codes it
// may throw and the timeout/retries the process model should configure.
type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus string                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema,omitempty"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
}

// Implementation statuses.
const (
	StatusPlanned     = "planned"
	StatusInProgress  = "in-progress"
	StatusImplemented = "implemented"
	StatusDeprecated  = "deprecated"
)

// KnownStatus reports whether s is one of the implementation statuses above.
func KnownStatus(s string) bool {
	switch s {
	case StatusPlanned, StatusInProgress, StatusImplemented, StatusDeprecated:
		return true
	}
	return false
}
