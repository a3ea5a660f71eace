package httpmcp

import "net/http"

// Location names where the Mcp-Session-Id travels on the wire: a header
// (the default) or a query parameter, adapted from the teacher's
// transport/server/http/session.Location for this package's own Locate
// method instead of a shared package.
type Location struct {
	Name string
	Kind string
}

// NewHeaderLocation builds a header-based Location.
func NewHeaderLocation(name string) *Location {
	return &Location{Name: name, Kind: "header"}
}

// NewQueryLocation builds a query-parameter-based Location.
func NewQueryLocation(name string) *Location {
	return &Location{Name: name, Kind: "query"}
}

// Locate extracts the session id from r according to the Location's Kind.
func (l *Location) Locate(r *http.Request) string {
	if l == nil {
		return ""
	}
	switch l.Kind {
	case "query":
		return r.URL.Query().Get(l.Name)
	default:
		return r.Header.Get(l.Name)
	}
}
