package assignment

import (
	"fmt"
	"strings"
)

// DescriptorError ties a failure to the descriptor that caused it.
type DescriptorError struct {
	Source      string
	DisplayName string
	Scope       string
	Definition  string
	Err         error
}

func (e *DescriptorError) Error() string {
	return fmt.Sprintf("descriptor %s (display name %q, scope %q, definition %q): %v",
		e.Source, e.DisplayName, e.Scope, e.Definition, e.Err)
}

func (e *DescriptorError) Unwrap() error {
	return e.Err
}

// BatchError collects the failures of every descriptor in a batch.
type BatchError struct {
	Errors []error
}

func (e *BatchError) Error() string {
	lines := make([]string, 0, len(e.Errors)+1)
	lines = append(lines, fmt.Sprintf("%d invalid policy assignment descriptor(s):", len(e.Errors)))
	for _, err := range e.Errors {
		lines = append(lines, "  "+err.Error())
	}
	return strings.Join(lines, "\n")
}

func (e *BatchError) Unwrap() []error {
	return e.Errors
}
