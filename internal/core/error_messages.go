package core

// # Error Codes Reference
//
// This file defines the error taxonomy for the import pipeline. Every error
// that reaches a caller carries a machine-readable code next to the
// human-readable message, so support staff can find the cause quickly.
//
// # Transport and shape errors (FILE, BAT)
//
// The whole submission is rejected and no row-level detail is produced:
//
//	FILE001 - File too large
//	FILE002 - File could not be read (PARSE_ERROR)
//	FILE004 - No file was provided
//	FILE005 - File contains no data rows
//	FILE006 - File type is not supported
//	BAT001  - Too many rows in one submission
//	BAT002  - Request body is malformed
//	BAT003  - Record owner does not exist
//	BAT004  - Record owner is missing
//
// # Validation findings (VAL)
//
// Row-addressable, never block other rows:
//
//	VAL001 - required
//	VAL002 - invalid date
//	VAL003 - invalid number
//	VAL004 - out of range
//	VAL005 - not an allowed value
//	VAL006 - too long
//	VAL007 - invalid boolean
//	VAL008 - not an integer
//
// # Commit findings (DUP, DB)
//
// Row-addressable, discovered while persisting:
//
//	DUP001 - code already registered
//	DB001  - storage rejected the row
//	DB004-DB007 - storage connectivity problems
//	DB008  - rolled back with an atomic batch
//
// # System and throttling errors
//
//	IMP001  - too many imports running
//	RATE001 - too many requests
//	ERR000  - unexpected error; check application logs
//
// # Pattern Matching
//
// MapError first checks the sentinel errors below with errors.Is. Errors that
// come from outside the package (drivers, the network) fall back to a
// case-insensitive substring table where the first match wins.

import (
	"errors"
	"strings"
)

// Sentinel errors for transport and shape problems. Wrap them with %w so
// callers can classify with errors.Is.
var (
	ErrFileTooLarge      = errors.New("file too large")
	ErrParse             = errors.New("file could not be parsed")
	ErrNoFile            = errors.New("no file provided")
	ErrNoRows            = errors.New("no data rows")
	ErrUnsupportedFormat = errors.New("unsupported file type")
	ErrTooManyRows       = errors.New("too many rows")
	ErrInvalidRequest    = errors.New("invalid request body")
	ErrOwnerNotFound     = errors.New("owner not found")
	ErrMissingOwner      = errors.New("owner id is required")
	ErrTooManyImports    = errors.New("too many concurrent imports, please try again later")
)

// Sentinel errors returned by RecordStore implementations.
var (
	// ErrDuplicateKey reports that (owner_id, project_code) already exists.
	ErrDuplicateKey = errors.New("duplicate project code for owner")

	// ErrScopeBroken reports that the shared transaction can no longer be
	// used, so no further rows can be attempted.
	ErrScopeBroken = errors.New("transaction scope unusable")
)

// Finding codes.
const (
	CodeRequired     = "VAL001"
	CodeInvalidDate  = "VAL002"
	CodeInvalidNum   = "VAL003"
	CodeOutOfRange   = "VAL004"
	CodeInvalidEnum  = "VAL005"
	CodeTooLong      = "VAL006"
	CodeInvalidBool  = "VAL007"
	CodeNotInteger   = "VAL008"
	CodeDuplicate    = "DUP001"
	CodeStorage      = "DB001"
	CodeRolledBack   = "DB008"
	CodeInternal     = "ERR000"
	CodeParseError   = "FILE002"
	CodeTooManyRows  = "BAT001"
	CodeBadRequest   = "BAT002"
	CodeTooManyBatch = "IMP001"
)

// MessageDuplicate is the finding message for a key collision.
const MessageDuplicate = "code already registered"

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

// sentinelMessages maps package sentinel errors to user messages.
var sentinelMessages = []sentinelMessage{
	{ErrFileTooLarge, UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{ErrParse, UserMessage{"The file could not be read", "Check that the file is a valid CSV or XLSX document", CodeParseError}},
	{ErrNoFile, UserMessage{"No file was selected", "Please select a file to upload", "FILE004"}},
	{ErrNoRows, UserMessage{"The file contains no data rows", "Add at least one row below the header", "FILE005"}},
	{ErrUnsupportedFormat, UserMessage{"File type is not supported", "Upload a .csv, .tsv or .xlsx file", "FILE006"}},
	{ErrTooManyRows, UserMessage{"Too many rows in one submission", "Split the records into smaller batches", CodeTooManyRows}},
	{ErrInvalidRequest, UserMessage{"The request body is malformed", "Send a JSON object with owner_id and records", CodeBadRequest}},
	{ErrOwnerNotFound, UserMessage{"The record owner does not exist", "Check the owner_id", "BAT003"}},
	{ErrMissingOwner, UserMessage{"The record owner is missing", "Provide an owner_id", "BAT004"}},
	{ErrTooManyImports, UserMessage{"System is busy processing other imports", "Please wait a moment and try again", CodeTooManyBatch}},
	{ErrDuplicateKey, UserMessage{MessageDuplicate, "Use a different project code or remove the duplicate row", CodeDuplicate}},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages
// for errors that do not wrap a package sentinel. The first match wins, so
// specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: MessageDuplicate,
			Action:  "Use a different project code or remove the duplicate row",
			Code:    CodeDuplicate,
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: MessageDuplicate,
			Action:  "Use a different project code or remove the duplicate row",
			Code:    CodeDuplicate,
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Try a smaller batch or try again later",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Please try again",
			Code:    "DB007",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000). Support staff
// should check application logs for the original technical error.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    CodeInternal,
}

// InternalMessage returns the ERR000 message used for system errors.
func InternalMessage() UserMessage {
	return defaultMessage
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	err := fmt.Errorf("read upload: %w", ErrNoRows)
//	msg := MapError(err)
//	// msg.Code == "FILE005"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}
