// Package errors provides structured error handling for mediadex.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index database, text index)
//   - 3XX: Export errors (static shard output)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
//
// "Not found" is deliberately absent: lookups report a missing entity as a nil
// result, never as an error.
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates failures of the persistent index.
	CategoryStorage Category = "STORAGE"
	// CategoryExport indicates failures writing the static export.
	CategoryExport Category = "EXPORT"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeCatalogInvalid = "ERR_103_CATALOG_INVALID"

	// Storage errors (200-299)
	ErrCodeStorageUnavailable = "ERR_201_STORAGE_UNAVAILABLE"
	ErrCodeStorageFailure     = "ERR_202_STORAGE_FAILURE"
	ErrCodeCorruptIndex       = "ERR_203_CORRUPT_INDEX"
	ErrCodeStoreClosed        = "ERR_204_STORE_CLOSED"

	// Export errors (300-399)
	ErrCodeExportWrite = "ERR_301_EXPORT_WRITE"
	ErrCodeExportRead  = "ERR_302_EXPORT_READ"

	// Validation errors (400-499)
	ErrCodeInvalidInput   = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidLimit   = "ERR_402_INVALID_LIMIT"
	ErrCodeInvalidItem    = "ERR_403_INVALID_ITEM"
	ErrCodeSourceMismatch = "ERR_404_SOURCE_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal = "ERR_501_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryExport
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeStorageUnavailable:
		return SeverityFatal
	case ErrCodeCatalogInvalid:
		return SeverityWarning
	}
	return SeverityError
}
