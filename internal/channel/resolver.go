package channel

import (
	"errors"
	"fmt"

	"github.com/llmhub/termmux/internal/database"
)

// ErrConnectionRefused is returned by Open when neither the context key nor
// the backend connection key resolves to a host, or when the transport-level
// dial fails outright.
var ErrConnectionRefused = errors.New("connection refused")

// Endpoint is a dialable backend terminal endpoint.
type Endpoint struct {
	URL         string
	ServerKey   string
	ServerName  string
	Host        string
	ProjectSlug string
}

// Resolver maps a (contextKey, backendConnectionKey) pair to an endpoint.
// The backend key wins when both are present; a context key alone resolves
// through its project's server binding.
type Resolver interface {
	Resolve(contextKey, backendKey string) (*Endpoint, error)
}

// DBResolver resolves keys against the Server and Project tables.
type DBResolver struct{}

func (DBResolver) Resolve(contextKey, backendKey string) (*Endpoint, error) {
	var slug string

	if backendKey == "" {
		if contextKey == "" {
			return nil, fmt.Errorf("%w: no context or backend key", ErrConnectionRefused)
		}
		proj, err := database.GetProjectByKey(contextKey)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				return nil, fmt.Errorf("%w: project %q not found", ErrConnectionRefused, contextKey)
			}
			return nil, err
		}
		if proj.ServerKey == "" {
			return nil, fmt.Errorf("%w: project %q has no server configured", ErrConnectionRefused, contextKey)
		}
		backendKey = proj.ServerKey
		slug = proj.Slug
	} else if contextKey != "" {
		// Slug is a best-effort enrichment; the session still opens when the
		// project row is missing.
		if proj, err := database.GetProjectByKey(contextKey); err == nil {
			slug = proj.Slug
		}
	}

	srv, err := database.GetServerByKey(backendKey)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, fmt.Errorf("%w: server %q not found", ErrConnectionRefused, backendKey)
		}
		return nil, err
	}

	return &Endpoint{
		URL:         fmt.Sprintf("ws://%s:%d/terminal", srv.Host, srv.TerminalPort),
		ServerKey:   srv.Key,
		ServerName:  srv.Name,
		Host:        srv.Host,
		ProjectSlug: slug,
	}, nil
}
