package config

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound indicates a configuration file was not found
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrInvalidYAML indicates YAML parsing failed
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// ErrUnknownCommand indicates a cmd_id absent from the registry
	ErrUnknownCommand = errors.New("unknown cmd_id")

	// ErrInvalidMeta indicates a registry entry without a cmd template
	ErrInvalidMeta = errors.New("invalid command meta")

	// ErrMissingParameter indicates a template placeholder without a value
	ErrMissingParameter = errors.New("missing required parameter")
)

// LoadError wraps configuration loading errors with file context
type LoadError struct {
	File string
	Err  error
}

// Error returns the formatted error message
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error
func (e *LoadError) Unwrap() error {
	return e.Err
}

// NewLoadError creates a new load error
func NewLoadError(file string, err error) *LoadError {
	return &LoadError{File: file, Err: err}
}
