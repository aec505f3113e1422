package prompt

import (
	"fmt"
	"strings"
)

// InvalidNameError reports a prompt name that violates the naming rules.
type InvalidNameError struct {
	Name   string
	Reason string
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("prompt: invalid name %q: %s", e.Name, e.Reason)
}

// MissingVariableError reports template variables that were required but
// not provided to Compile.
type MissingVariableError struct {
	Prompt  string
	Missing []string
}

func (e *MissingVariableError) Error() string {
	return fmt.Sprintf("prompt: missing required variables for %q: %s",
		e.Prompt, strings.Join(e.Missing, ", "))
}

// NotFoundError reports a prompt (or a specific version of it) that does
// not exist in the library.
type NotFoundError struct {
	Name    string
	Version int // 0 when the whole prompt is missing
}

func (e *NotFoundError) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("prompt: %q version %d not found", e.Name, e.Version)
	}
	return fmt.Sprintf("prompt: %q not found", e.Name)
}

// ExistsError reports an attempted Create of a prompt that already exists
// without the Force option.
type ExistsError struct {
	Name           string
	CurrentVersion int
}

func (e *ExistsError) Error() string {
	return fmt.Sprintf("prompt: %q already exists at version %d (use Force to create a new version)",
		e.Name, e.CurrentVersion)
}
