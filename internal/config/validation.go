// Package config handles configuration loading and validation for circled.
package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
var validFormats = map[string]bool{"text": true, "json": true}
var validOutputs = map[string]bool{"stdout": true, "stderr": true, "file": true, "both": true}
var validThemes = map[string]bool{"system": true, "light": true, "dark": true, "auto": true}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	if c.Storage.Path == "" {
		errs = append(errs, ValidationError{Field: "storage.path", Message: "must not be empty"})
	}

	if !validLevels[c.Logging.Level] {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q", c.Logging.Level),
		})
	}
	if !validFormats[c.Logging.Format] {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q", c.Logging.Format),
		})
	}
	if !validOutputs[c.Logging.Output] {
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid output %q", c.Logging.Output),
		})
	}
	if (c.Logging.Output == "file" || c.Logging.Output == "both") && c.Logging.FilePath == "" {
		errs = append(errs, ValidationError{Field: "logging.file_path", Message: "required for file output"})
	}

	if c.Permissions.PollIntervalSec < 10 {
		errs = append(errs, ValidationError{
			Field:   "permissions.poll_interval_sec",
			Message: "must be at least 10 seconds",
		})
	}
	if c.Permissions.ConsentLoadLimit < 0 {
		errs = append(errs, ValidationError{
			Field:   "permissions.consent_load_limit",
			Message: "must not be negative",
		})
	}

	if c.Proof.CaptureSeconds < 1 {
		errs = append(errs, ValidationError{
			Field:   "proof.capture_seconds",
			Message: "must be at least 1 second",
		})
	}
	if c.Proof.VerifyLatencyMs < 0 {
		errs = append(errs, ValidationError{
			Field:   "proof.verify_latency_ms",
			Message: "must not be negative",
		})
	}
	if c.Proof.RetentionDays < 1 {
		errs = append(errs, ValidationError{
			Field:   "proof.retention_days",
			Message: "must be at least 1 day",
		})
	}

	if !validThemes[c.Theme.Default] {
		errs = append(errs, ValidationError{
			Field:   "theme.default",
			Message: fmt.Sprintf("invalid theme %q", c.Theme.Default),
		})
	}

	if c.Analytics.Enabled && c.Analytics.FilePath == "" {
		errs = append(errs, ValidationError{Field: "analytics.file_path", Message: "required when analytics is enabled"})
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, ValidationError{Field: "metrics.addr", Message: "required when metrics is enabled"})
	}

	if c.IPC.SocketPath == "" {
		errs = append(errs, ValidationError{Field: "ipc.socket_path", Message: "must not be empty"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
