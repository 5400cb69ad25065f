package pgfixture

import (
	"fmt"
)

type (
	// ConfigurationError is returned when a schema directory is missing, empty
	// or the options contradict each other.
	ConfigurationError struct {
		Path   string
		Reason string
		Err    error
	}

	// ProvisioningError is returned when the server never became ready or a
	// database could not be created or dropped.
	ProvisioningError struct {
		Op       string
		Database string
		Err      error
	}

	// SchemaLoadError reports the sql file that failed to execute.
	SchemaLoadError struct {
		File string
		Err  error
	}
)

func (e *ConfigurationError) Error() string {
	msg := "pgfixture: configuration"
	if e.Path != "" {
		msg += fmt.Sprintf(" (%s)", e.Path)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Error() string {
	if e.Database == "" {
		return fmt.Sprintf("pgfixture: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("pgfixture: %s database %q: %v", e.Op, e.Database, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *SchemaLoadError) Error() string {
	return fmt.Sprintf("pgfixture: load %s: %v", e.File, e.Err)
}

func (e *SchemaLoadError) Unwrap() error { return e.Err }
