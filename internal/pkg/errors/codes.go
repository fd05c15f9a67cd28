package errors

import (
	"fmt"
	"net/http"
)

// Code represents an error code with HTTP status and message
type Code struct {
	Code    int    // Business error code
	Status  int    // HTTP status code
	Message string // Error message
}

// Error codes for different modules
const (
	// Success
	Success = 0

	// Common errors (1000-1999)
	ErrInternalServer  = 1000
	ErrInvalidParams   = 1001
	ErrNotFound        = 1002
	ErrConflict        = 1005
	ErrBadRequest      = 1007
	ErrServiceUnavail  = 1008
	ErrTooManyRequests = 1009

	// Catalog record errors (2000-2999)
	ErrRecordNotFound       = 2000
	ErrIdentifierConflict   = 2001
	ErrImmutableVersionEdit = 2002
	ErrInvalidTransition    = 2003
	ErrAmbiguousIdentifier  = 2004
	ErrIdentifierRequired   = 2005
	ErrRecordPersistFailed  = 2006
	ErrAggregateFailed      = 2007
	ErrAlternateSetFailed   = 2008

	// Data catalog errors (3000-3999)
	ErrCatalogNotFound = 3000

	// File registry errors (4000-4999)
	ErrFileNotFound      = 4000
	ErrDirectoryNotFound = 4001
	ErrFileRegistry      = 4002
)

// codeMap maps error codes to their details
var codeMap = map[int]Code{
	Success: {Success, http.StatusOK, "Success"},

	// Common errors
	ErrInternalServer:  {ErrInternalServer, http.StatusInternalServerError, "Internal server error"},
	ErrInvalidParams:   {ErrInvalidParams, http.StatusBadRequest, "Invalid parameters"},
	ErrNotFound:        {ErrNotFound, http.StatusNotFound, "Resource not found"},
	ErrConflict:        {ErrConflict, http.StatusConflict, "Resource conflict"},
	ErrBadRequest:      {ErrBadRequest, http.StatusBadRequest, "Bad request"},
	ErrServiceUnavail:  {ErrServiceUnavail, http.StatusServiceUnavailable, "Service unavailable"},
	ErrTooManyRequests: {ErrTooManyRequests, http.StatusTooManyRequests, "Too many requests"},

	// Catalog record errors
	ErrRecordNotFound:       {ErrRecordNotFound, http.StatusNotFound, "Catalog record not found"},
	ErrIdentifierConflict:   {ErrIdentifierConflict, http.StatusConflict, "Identifier already in use"},
	ErrImmutableVersionEdit: {ErrImmutableVersionEdit, http.StatusConflict, "Changes not permitted, newer version exists"},
	ErrInvalidTransition:    {ErrInvalidTransition, http.StatusConflict, "Operation not permitted in the record's current state"},
	ErrAmbiguousIdentifier:  {ErrAmbiguousIdentifier, http.StatusConflict, "Identifier matches more than one catalog record"},
	ErrIdentifierRequired:   {ErrIdentifierRequired, http.StatusBadRequest, "Identifier is required"},
	ErrRecordPersistFailed:  {ErrRecordPersistFailed, http.StatusInternalServerError, "Failed to persist catalog record"},
	ErrAggregateFailed:      {ErrAggregateFailed, http.StatusInternalServerError, "Failed to compute file aggregates"},
	ErrAlternateSetFailed:   {ErrAlternateSetFailed, http.StatusInternalServerError, "Failed to update alternate record set"},

	// Data catalog errors
	ErrCatalogNotFound: {ErrCatalogNotFound, http.StatusBadRequest, "Data catalog not found"},

	// File registry errors
	ErrFileNotFound:      {ErrFileNotFound, http.StatusBadRequest, "File not found"},
	ErrDirectoryNotFound: {ErrDirectoryNotFound, http.StatusBadRequest, "Directory not found"},
	ErrFileRegistry:      {ErrFileRegistry, http.StatusBadGateway, "File registry unavailable"},
}

// GetCode returns the Code for a given error code
func GetCode(code int) Code {
	if c, ok := codeMap[code]; ok {
		return c
	}
	return codeMap[ErrInternalServer]
}

// GetHTTPStatus returns HTTP status for a given error code
func GetHTTPStatus(code int) int {
	return GetCode(code).Status
}

// GetMessage returns the message for a given error code
func GetMessage(code int) string {
	return GetCode(code).Message
}

// IsClientError checks if the code represents a client error (4xx)
func IsClientError(code int) bool {
	status := GetHTTPStatus(code)
	return status >= 400 && status < 500
}

// IsServerError checks if the code represents a server error (5xx)
func IsServerError(code int) bool {
	return GetHTTPStatus(code) >= 500
}

// FormatError formats an error message with code
func FormatError(code int, details ...string) string {
	msg := GetMessage(code)
	if len(details) > 0 && details[0] != "" {
		return fmt.Sprintf("%s: %s", msg, details[0])
	}
	return msg
}
