package lib

import (
	"errors"
	"fmt"
	"strings"

	"github.com/trobanga/enzflow/internal/models"
)

// EnzflowError represents a user-friendly error with context and guidance
type EnzflowError struct {
	Category    ErrorCategory
	Message     string   // Short description of what went wrong
	Cause       error    // Underlying error
	Guidance    []string // What the operator can do to fix it
	IsRetryable bool     // Can the job succeed if simply run again?
}

// ErrorCategory classifies errors for better UX
type ErrorCategory string

const (
	CategoryFileSystem    ErrorCategory = "filesystem"
	CategoryValidation    ErrorCategory = "validation"
	CategoryTool          ErrorCategory = "tool"
	CategoryDatabase      ErrorCategory = "database"
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryState         ErrorCategory = "state"
	CategoryInternal      ErrorCategory = "internal"
)

// Error implements the error interface
func (e *EnzflowError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("[%s] ", strings.ToUpper(string(e.Category))))
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.Cause))
	}

	return sb.String()
}

// JobMessage returns the text stored in a job's error_message field.
// Validation messages are stored as is; other categories carry their cause
// and guidance so the operator sees the remediation in one place.
func (e *EnzflowError) JobMessage() string {
	if e.Category == CategoryValidation {
		return e.Message
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if len(e.Guidance) > 0 {
		msg += " (" + strings.Join(e.Guidance, "; ") + ")"
	}
	return msg
}

// UserMessage returns a formatted message suitable for displaying on a terminal
func (e *EnzflowError) UserMessage() string {
	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(e.Message)
	sb.WriteString("\n\n")

	if len(e.Guidance) > 0 {
		sb.WriteString("How to fix:\n")
		for i, guide := range e.Guidance {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, guide))
		}
	}

	if e.Cause != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", e.Cause))
	}

	if e.IsRetryable {
		sb.WriteString("\nThis error is transient; resetting the job may succeed.\n")
	}

	return sb.String()
}

// Unwrap returns the underlying cause for errors.Is/As compatibility
func (e *EnzflowError) Unwrap() error {
	return e.Cause
}

// Input Errors

// ErrFileNotFound creates an error for missing files or directories
func ErrFileNotFound(path string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryFileSystem,
		Message:  fmt.Sprintf("File or directory not found: %s", path),
		Guidance: []string{
			"Check that the path is correct",
			"Verify you have permission to access it",
		},
	}
}

// ErrEmptyInput creates an error for a zero-byte upload
func ErrEmptyInput(path string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryValidation,
		Message:  "Input FASTA file is empty or has no sequences",
		Guidance: []string{fmt.Sprintf("Check the uploaded file %s", path)},
	}
}

// ErrNoSequences creates an error for input without any '>' header
func ErrNoSequences(path string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryValidation,
		Message:  "Input file does not contain valid FASTA sequences (no sequence headers found)",
		Guidance: []string{fmt.Sprintf("Check the uploaded file %s", path)},
	}
}

// ErrInvalidAbundanceTable creates an error for a malformed TPM table
func ErrInvalidAbundanceTable(path string, reason string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryValidation,
		Message:  fmt.Sprintf("Abundance table %s is invalid: %s", path, reason),
		Guidance: []string{
			"The table must be a CSV with a protein_id column",
			"It must also contain a TPM or TPM_norm column",
		},
	}
}

// Tool Errors

// ErrToolUnavailable creates an error for a missing external binary
func ErrToolUnavailable(tool string, cause error) *EnzflowError {
	return &EnzflowError{
		Category: CategoryTool,
		Message:  fmt.Sprintf("External tool %s is not available", tool),
		Cause:    cause,
		Guidance: []string{
			fmt.Sprintf("Install %s or set its path under tools in enzflow.yaml", tool),
		},
	}
}

// ErrReferenceCorrupted creates an error for a reference database that could not be repaired
func ErrReferenceCorrupted(path string, manualCommand string, cause error) *EnzflowError {
	return &EnzflowError{
		Category: CategoryDatabase,
		Message:  fmt.Sprintf("Reference database %s is missing or corrupted and automatic repair failed", path),
		Cause:    cause,
		Guidance: []string{
			fmt.Sprintf("Run manually: %s", manualCommand),
		},
		IsRetryable: true,
	}
}

// Configuration Errors

// ErrInvalidConfig creates an error for configuration validation failures
func ErrInvalidConfig(field string, reason string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryConfiguration,
		Message:  fmt.Sprintf("Invalid configuration: %s", reason),
		Guidance: []string{
			fmt.Sprintf("Check the '%s' field in your config file", field),
			"Compare with enzflow.example.yaml for correct format",
		},
	}
}

// State Errors

// ErrJobNotFound creates an error for a missing job record
func ErrJobNotFound(jobID string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Job '%s' not found", jobID),
		Guidance: []string{
			"Check the job ID is correct",
			"Use 'enzflow job list' to see all available jobs",
		},
	}
}

// ErrJobLocked creates an error when a job is held by another process
func ErrJobLocked(jobID string) *EnzflowError {
	return &EnzflowError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Job '%s' is currently being processed by another process", jobID),
		Guidance: []string{
			"Wait for the other process to finish",
			"If it is stuck, run 'enzflow job reset <job-id>'",
		},
		IsRetryable: true,
	}
}

// ErrInvalidTransition creates an error for a forbidden status change
func ErrInvalidTransition(jobID string, from, to models.JobStatus) *EnzflowError {
	return &EnzflowError{
		Category: CategoryState,
		Message:  fmt.Sprintf("Job '%s' cannot move from %s to %s", jobID, from, to),
	}
}

// Helper Functions

// WrapError wraps a standard error with EnzflowError context
func WrapError(category ErrorCategory, message string, cause error, guidance ...string) *EnzflowError {
	return &EnzflowError{
		Category: category,
		Message:  message,
		Cause:    cause,
		Guidance: guidance,
	}
}

// ClassifyError examines an error and returns appropriate user guidance
func ClassifyError(err error) *EnzflowError {
	if err == nil {
		return nil
	}

	var enzErr *EnzflowError
	if errors.As(err, &enzErr) {
		return enzErr
	}

	errMsg := err.Error()

	if containsIgnoreCase(errMsg, "no space left") || containsIgnoreCase(errMsg, "disk full") {
		return &EnzflowError{
			Category: CategoryFileSystem,
			Message:  "Insufficient disk space",
			Cause:    err,
			Guidance: []string{"Free up disk space", "Delete old jobs"},
		}
	}

	if containsIgnoreCase(errMsg, "permission denied") || containsIgnoreCase(errMsg, "access denied") {
		return &EnzflowError{
			Category: CategoryFileSystem,
			Message:  "Permission denied",
			Cause:    err,
			Guidance: []string{"Check file/directory permissions"},
		}
	}

	if containsIgnoreCase(errMsg, "executable file not found") {
		return &EnzflowError{
			Category: CategoryTool,
			Message:  "External tool not found",
			Cause:    err,
			Guidance: []string{"Check the tools section of enzflow.yaml"},
		}
	}

	return &EnzflowError{
		Category: CategoryInternal,
		Message:  "An error occurred",
		Cause:    err,
		Guidance: []string{"See logs for more information"},
	}
}
