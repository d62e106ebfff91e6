package services

import "fmt"

// ProcessError reports an external tool that exited non-zero (or could not be
// started). Stderr carries the captured error text, truncated.
type ProcessError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with status %d: %s", e.Name, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with status %d", e.Name, e.ExitCode)
}

// ConfigError reports invalid or missing configuration.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return e.Msg
}

func configErrorf(format string, args ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, args...)}
}

// IntegrityError reports a checksum mismatch found during verification.
type IntegrityError struct {
	Component string
	Want      string
	Got       string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s component: recorded %s, computed %s", e.Component, e.Want, e.Got)
}

// NotFoundError reports an unknown backup id.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("backup %s not found", e.ID)
}
