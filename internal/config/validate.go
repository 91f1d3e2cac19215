package config

import (
	"fmt"
	"os"
	"strings"
)

// ValidationError represents a configuration issue.
type ValidationError struct {
	Field   string
	Message string
	Fatal   bool // true = can't proceed, false = will be ignored
}

// ValidateConfig checks that configured local files exist and flags
// settings that are accepted but ignored.
func ValidateConfig(cfg *Config) []ValidationError {
	var errors []ValidationError

	hooks := []struct{ field, path string }{
		{"pre_empty_script", cfg.PreEmptyScript},
		{"post_empty_script", cfg.PostEmptyScript},
		{"post_reboot_script", cfg.PostRebootScript},
	}
	for _, h := range hooks {
		if h.path == "" {
			continue
		}
		if info, err := os.Stat(h.path); err != nil || info.IsDir() {
			errors = append(errors, ValidationError{
				Field:   h.field,
				Message: fmt.Sprintf("hook script %s does not exist", h.path),
				Fatal:   true,
			})
		}
	}

	if cfg.HelperScriptsPath != "" {
		if info, err := os.Stat(cfg.HelperScriptsPath); err != nil || !info.IsDir() {
			errors = append(errors, ValidationError{
				Field:   "helper_scripts_path",
				Message: fmt.Sprintf("%s is not a directory", cfg.HelperScriptsPath),
				Fatal:   true,
			})
		}
	}

	if _, err := os.Stat(cfg.BondCheckScript); err != nil {
		errors = append(errors, ValidationError{
			Field:   "bond_check_script",
			Message: fmt.Sprintf("bond check script %s not found, script upload will fail", cfg.BondCheckScript),
			Fatal:   false,
		})
	}

	if cfg.Threads > 1 {
		errors = append(errors, ValidationError{
			Field:   "threads",
			Message: fmt.Sprintf("%d threads requested, migrations always run serially", cfg.Threads),
			Fatal:   false,
		})
	}

	if cfg.SSHPort <= 0 || cfg.SSHPort > 65535 {
		errors = append(errors, ValidationError{
			Field:   "ssh_port",
			Message: fmt.Sprintf("invalid port %d", cfg.SSHPort),
			Fatal:   true,
		})
	}

	return errors
}

// HasFatal reports whether any of errors prevents running.
func HasFatal(errors []ValidationError) bool {
	for _, e := range errors {
		if e.Fatal {
			return true
		}
	}
	return false
}

// FormatValidationErrors returns human-readable error summary.
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Configuration warnings:\n")
	for _, e := range errors {
		prefix := "Warning"
		if e.Fatal {
			prefix = "Error"
		}
		fmt.Fprintf(&b, "  %s [%s]: %s\n", prefix, e.Field, e.Message)
	}
	return b.String()
}
