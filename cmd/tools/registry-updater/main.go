// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	apperrors "qa-autoresponder/internal/common/errors"
	"qa-autoresponder/internal/common/validation"
	"qa-autoresponder/pkg/registry"
)

const defaultRegistryPath = "pkg/registry/activities.json"

func main() {
	updateCmd := flag.NewFlagSet("update", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	checkCmd := flag.NewFlagSet("check", flag.ExitOnError)

	updatePath := updateCmd.String("path", defaultRegistryPath, "Path to registry file")
	idUpdate := updateCmd.String("id", "", "Activity ID to update")
	field := updateCmd.String("field", "", "Field to update (status, version, etc.)")
	value := updateCmd.String("value", "", "New value for the field")

	validatePath := validateCmd.String("path", defaultRegistryPath, "Path to registry file")

	checkPath := checkCmd.String("path", defaultRegistryPath, "Path to registry file")
	taskType := checkCmd.String("task", "", "Task type whose input schema to check against")
	varsFile := checkCmd.String("vars", "-", "Process variables JSON file, - for stdin")

	if len(os.Args) < 2 {
		help(os.Stdout)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "update":
		updateCmd.Parse(os.Args[2:])
		if *idUpdate == "" || *field == "" || *value == "" {
			fmt.Println("Error: id, field, and value are required for update.")
			updateCmd.Usage()
			os.Exit(1)
		}
		reg, err := registry.LoadRegistry(*updatePath)
		if err == nil {
			err = updateActivity(reg, *idUpdate, *field, *value, time.Now())
		}
		if err == nil {
			err = saveRegistry(reg, *updatePath)
		}
		if err != nil {
			fmt.Printf("Error updating activity: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated activity %s, field %s to %s\n", *idUpdate, *field, *value)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := registry.LoadRegistry(*validatePath)
		if err == nil {
			err = validateRegistry(reg)
		}
		if err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))

	case "check":
		checkCmd.Parse(os.Args[2:])
		if *taskType == "" {
			fmt.Println("Error: task is required for check.")
			checkCmd.Usage()
			os.Exit(1)
		}
		reg, err := registry.LoadRegistry(*checkPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		in := os.Stdin
		if *varsFile != "-" {
			f, err := os.Open(*varsFile)
			if err != nil {
				fmt.Printf("Error opening variables: %v\n", err)
				os.Exit(1)
			}
			defer f.Close()
			in = f
		}
		problems, err := checkVariables(reg, *taskType, in)
		if err != nil {
			fmt.Printf("Error checking variables: %v\n", err)
			os.Exit(1)
		}
		if len(problems) > 0 {
			for _, p := range problems {
				fmt.Println("  " + p)
			}
			os.Exit(1)
		}
		fmt.Printf("Variables are valid input for %s.\n", *taskType)

	case "help":
		fallthrough
	default:
		help(os.Stdout)
	}
}

func updateActivity(reg *registry.ActivityRegistry, id, field, value string, now time.Time) error {
	found := false
	for i := range reg.Activities {
		if reg.Activities[i].ID != id {
			continue
		}
		found = true
		switch field {
		case "status":
			if !registry.KnownStatus(value) {
				return fmt.Errorf("unknown status: %s", value)
			}
			reg.Activities[i].ImplementationStatus = value
		case "version":
			reg.Activities[i].Version = value
		case "displayName":
			reg.Activities[i].DisplayName = value
		case "description":
			reg.Activities[i].Description = value
		case "timeout":
			if _, err := time.ParseDuration(value); err != nil {
				return fmt.Errorf("invalid timeout value: %w", err)
			}
			reg.Activities[i].Timeout = value
		case "retries":
			retries, err := strconv.Atoi(value)
			if err != nil {
				return fmt.Errorf("invalid retries value: %w", err)
			}
			reg.Activities[i].Retries = retries
		default:
			return fmt.Errorf("unknown field: %s", field)
		}
		break
	}

	if !found {
		return fmt.Errorf("activity with ID %s not found", id)
	}

	reg.LastUpdated = now.Format("2006-01-02")
	return nil
}

// validateRegistry checks required fields, uniqueness and statuses, that every schema
// compiles and that every declared error code has a BPMN mapping.
func validateRegistry(reg *registry.ActivityRegistry) error {
	if len(reg.Activities) == 0 {
		return fmt.Errorf("registry contains no activities")
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, activity := range reg.Activities {
		if activity.ID == "" {
			return fmt.Errorf("activity missing required field: ID")
		}
		if ids[activity.ID] {
			return fmt.Errorf("duplicate activity ID: %s", activity.ID)
		}
		ids[activity.ID] = true

		if activity.DisplayName == "" {
			return fmt.Errorf("activity %s missing required field: DisplayName", activity.ID)
		}
		if activity.TaskType == "" {
			return fmt.Errorf("activity %s missing required field: TaskType", activity.ID)
		}
		if taskTypes[activity.TaskType] {
			return fmt.Errorf("duplicate task type: %s", activity.TaskType)
		}
		taskTypes[activity.TaskType] = true

		if activity.Category == "" {
			return fmt.Errorf("activity %s missing required field: Category", activity.ID)
		}
		if !registry.KnownStatus(activity.ImplementationStatus) {
			return fmt.Errorf("activity %s has unknown status %q", activity.ID, activity.ImplementationStatus)
		}
		if activity.Retries < 0 {
			return fmt.Errorf("activity %s has negative retries", activity.ID)
		}
		if len(activity.OutputSchema) > 0 {
			if err := validation.NewValidator().Register(activity.TaskType+" output", activity.OutputSchema); err != nil {
				return err
			}
		}

		if activity.Timeout != "" {
			if _, err := time.ParseDuration(activity.Timeout); err != nil {
				return fmt.Errorf("activity %s has invalid timeout %q", activity.ID, activity.Timeout)
			}
		}
		for _, code := range activity.ErrorCodes {
			if _, ok := apperrors.BPMNErrorMapping[apperrors.ErrorCode(code)]; !ok {
				return fmt.Errorf("activity %s declares unmapped error code %s", activity.ID, code)
			}
		}
	}

	if _, err := validation.NewRegistryValidator(reg); err != nil {
		return err
	}
	return nil
}

// checkVariables validates a process variables document against the input
// schema of taskType and returns the schema violations.
func checkVariables(reg *registry.ActivityRegistry, taskType string, r io.Reader) ([]string, error) {
	if _, ok := reg.Find(taskType); !ok {
		return nil, fmt.Errorf("unknown task type: %s", taskType)
	}
	validator, err := validation.NewRegistryValidator(reg)
	if err != nil {
		return nil, err
	}

	var vars map[string]interface{}
	if err := json.NewDecoder(r).Decode(&vars); err != nil {
		return nil, fmt.Errorf("decode variables: %w", err)
	}

	result, err := validator.Validate(taskType, vars)
	if err != nil {
		return nil, err
	}
	if result.Valid {
		return nil, nil
	}
	return result.GetErrorMessages(), nil
}

func saveRegistry(reg *registry.ActivityRegistry, path string) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

func help(w io.Writer) {
	fmt.Fprint(w, `
Usage: registry-updater <command> [flags]

Commands:
  update    Update an existing activity's field
  validate  Validate the registry file
  check     Validate process variables against a task's input schema
  help      Show this help message

Examples:
  registry-updater update -id answering.question.answer -field timeout -value 120s
  registry-updater validate -path pkg/registry/activities.json
  registry-updater check -task answer-question -vars question.json

Use 'registry-updater <command> -h' for more information about a command.
`)
}
