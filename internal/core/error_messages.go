package core

// error_messages.go defines user-friendly error messages with codes for support reference.
// When users encounter errors, they can quote the error code to support staff
// for faster diagnosis.
//
// # Module Errors (MOD001-MOD099)
//
//	MOD001 - Module not found: No module has this module number
//	         Patterns: "module not found"
//
//	MOD002 - Duplicate module: Module number already exists
//	         Patterns: "module number already exists"
//
// # Validation Errors (VAL001-VAL099)
//
//	VAL001 - Invalid status: Value is not in the allowed list
//	         Patterns: "invalid enum"
//
//	VAL002 - Required field: Required field is empty
//	         Patterns: "required field"
//
//	VAL003 - Invalid request: Request body could not be read
//	         Patterns: "invalid request"
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Line count mismatch: pasted lines do not match stored modules
//	         Patterns: "line count mismatch"
//
//	IMP002 - Key/value mismatch: module number and value lists differ in length
//	         Patterns: "key/value count mismatch"
//
//	IMP003 - Import busy: another import is running
//	         Patterns: "import in progress"
//
//	IMP004 - Import expired: import id not found
//	         Patterns: "import not found"
//
//	IMP005 - Unknown column: column name is not importable
//	         Patterns: "unknown column"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large
//	          Patterns: "file too large"
//
//	FILE002 - Unsupported file type
//	          Patterns: "unsupported file"
//
//	FILE003 - No file selected
//	          Patterns: "no file provided"
//
//	FILE004 - Empty file
//	          Patterns: "empty file"
//
//	FILE005 - Unreadable spreadsheet or PDF
//	          Patterns: "invalid spreadsheet", "invalid pdf"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key         Patterns: "duplicate key", "unique constraint"
//	DB002 - Connection refused    Patterns: "connection refused"
//	DB003 - Connection reset      Patterns: "connection reset"
//	DB004 - Database locked       Patterns: "database is locked"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Request cancelled    Patterns: "context canceled"
//	REQ002 - Request timeout      Patterns: "context deadline exceeded", "timeout"
//
// # Rate Limiting (RATE001-RATE099)
//
//	RATE001 - Rate limited        Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check application logs for the
// original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns are defined
// before general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user
// messages. Order matters: the first match wins.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Module errors
	// =========================================================================
	{
		pattern: "module not found",
		msg: UserMessage{
			Message: "No module has this module number",
			Action:  "Refresh the table and try again",
			Code:    "MOD001",
		},
	},
	{
		pattern: "module number already exists",
		msg: UserMessage{
			Message: "A module with this module number already exists",
			Action:  "Edit the existing module instead of adding a new one",
			Code:    "MOD002",
		},
	},

	// =========================================================================
	// Validation errors
	// =========================================================================
	{
		pattern: "invalid enum",
		msg: UserMessage{
			Message: "RFLO date status is not one of the allowed values",
			Action:  "Use Date Confirmed, 1st Quarter-2026 or Pending",
			Code:    "VAL001",
		},
	},
	{
		pattern: "required field",
		msg: UserMessage{
			Message: "A required field is empty",
			Action:  "Fill in module number, yard and location",
			Code:    "VAL002",
		},
	},
	{
		pattern: "invalid request",
		msg: UserMessage{
			Message: "The request could not be read",
			Action:  "Check the submitted values and try again",
			Code:    "VAL003",
		},
	},

	// =========================================================================
	// Import errors
	// =========================================================================
	{
		pattern: "line count mismatch",
		msg: UserMessage{
			Message: "The number of lines pasted does not match the number of modules",
			Action:  "Paste one line for every module in the table, in table order",
			Code:    "IMP001",
		},
	},
	{
		pattern: "key/value count mismatch",
		msg: UserMessage{
			Message: "The module numbers and values have different line counts",
			Action:  "Paste exactly one value per module number",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import in progress",
		msg: UserMessage{
			Message: "Another import is still running",
			Action:  "Wait for it to finish, then try again",
			Code:    "IMP003",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "Import session not found",
			Action:  "The import may have expired. Start a new import",
			Code:    "IMP004",
		},
	},
	{
		pattern: "unknown column",
		msg: UserMessage{
			Message: "This column cannot be imported",
			Action:  "Choose one of the table columns",
			Code:    "IMP005",
		},
	},

	// =========================================================================
	// File errors
	// =========================================================================
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum size limit",
			Action:  "Split the file into smaller parts",
			Code:    "FILE001",
		},
	},
	{
		pattern: "unsupported file",
		msg: UserMessage{
			Message: "This file type is not supported",
			Action:  "Upload an .xlsx spreadsheet or a PDF",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a file to import",
			Code:    "FILE003",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a file with a header row and data rows",
			Code:    "FILE004",
		},
	},
	{
		pattern: "invalid spreadsheet",
		msg: UserMessage{
			Message: "The spreadsheet could not be read",
			Action:  "Save the workbook as .xlsx and try again",
			Code:    "FILE005",
		},
	},
	{
		pattern: "invalid pdf",
		msg: UserMessage{
			Message: "The PDF could not be read",
			Action:  "Make sure the PDF contains text, not scanned images",
			Code:    "FILE005",
		},
	},

	// =========================================================================
	// Database errors
	// =========================================================================
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Review your data for duplicate module numbers",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Review your data for duplicate module numbers",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "database is locked",
		msg: UserMessage{
			Message: "The database is busy",
			Action:  "Please try again",
			Code:    "DB004",
		},
	},

	// =========================================================================
	// Request errors
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller import or try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller import or try again later",
			Code:    "REQ002",
		},
	},

	// =========================================================================
	// Rate limiting
	// =========================================================================
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// If no pattern matches, the ERR000 fallback is returned.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display:
// "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
