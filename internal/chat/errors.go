package chat

import (
	"errors"
	"regexp"
)

// Errors reported by the answer stream. Only ErrConfiguration is returned to
// the caller; the others become error lines on the stream.
var (
	ErrConfiguration = errors.New("either a database handle or a database URL is required")
	ErrLLMInit       = errors.New("failed to initialize LLM")
	ErrSchemaFetch   = errors.New("failed to fetch schema")
	ErrWorkflowInit  = errors.New("workflow not available")
	ErrSerialization = errors.New("event is not JSON serializable")
	ErrPersistence   = errors.New("failed to save message")
)

// Messages written in the "error" field of a stream line.
const (
	msgLLMInit      = "Failed to initialize LLM"
	msgSchemaFetch  = "Failed to fetch schema"
	msgWorkflowInit = "Workflow not available"
	msgPersistence  = "Failed to save message"
)

var urlCredentials = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.-]*://)[^/\s@]+@`)

// SanitizeError returns err's text with URL credentials masked.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return urlCredentials.ReplaceAllString(err.Error(), "${1}***@")
}
