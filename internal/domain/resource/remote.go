package resource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Remote is the remote resource collaborator: the single boundary through
// which the core reaches server state. All payloads are plain JSON; the core
// never interprets resource-specific fields beyond the list envelope.
type Remote interface {
	// FetchList retrieves a filtered collection view.
	FetchList(ctx context.Context, t Type, filters map[string]string) (*List, error)

	// FetchOne retrieves a single resource by ID.
	FetchOne(ctx context.Context, t Type, id string) (json.RawMessage, error)

	// Create stores a new resource and returns the server's representation.
	Create(ctx context.Context, t Type, input any) (json.RawMessage, error)

	// Update patches an existing resource and returns the updated
	// representation.
	Update(ctx context.Context, t Type, id string, patch any) (json.RawMessage, error)

	// Delete removes a resource.
	Delete(ctx context.Context, t Type, id string) error
}

// RemoteError is a failure reported by the remote collaborator. The message
// field carries the server's user-facing explanation.
type RemoteError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message"`
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote: %s (%s)", e.Message, e.Code)
	}
	return fmt.Sprintf("remote: %s", e.Message)
}

// NewRemoteError creates a remote error for the given HTTP status
func NewRemoteError(statusCode int, code, message string) *RemoteError {
	return &RemoteError{StatusCode: statusCode, Code: code, Message: message}
}

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var re *RemoteError
	return errors.As(err, &re) && re.StatusCode == http.StatusNotFound
}
