package publishers

import (
	"context"
	"errors"

	"multi-platform-rpa/internal/model"
)

var (
	ErrUnknownPlatform = errors.New("unknown platform")
	ErrNotImplemented  = errors.New("direct publisher not implemented")
	// ErrMissingCredentials is returned by a publisher that has no usable
	// account credentials.
	ErrMissingCredentials = errors.New("missing credentials")
)

// Request is what a direct publisher posts. Paths are already resolved
// against the storage root.
type Request struct {
	VideoPath     string
	ThumbnailPath string
	Title         string
	Description   string
	Tags          []string
	Privacy       string // public, unlisted, private
}

// Result is a successful post.
type Result struct {
	URL     string
	Details map[string]string
}

// Publisher posts videos through a platform's official API.
type Publisher interface {
	Publish(ctx context.Context, req *Request) (*Result, error)
	Platform() model.Platform
}
