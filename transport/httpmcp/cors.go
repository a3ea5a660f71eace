package httpmcp

import (
	"net"
	"net/http"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// clientHost returns the browser-visible host for r, honoring reverse-proxy
// headers, adapted from the teacher's transport/server/http/common.ClientHost.
func clientHost(r *http.Request) string {
	if r == nil {
		return ""
	}
	if fwd := r.Header.Get("Forwarded"); fwd != "" {
		for _, p := range strings.Split(fwd, ";") {
			p = strings.TrimSpace(p)
			if strings.HasPrefix(strings.ToLower(p), "host=") {
				if v := strings.Trim(strings.TrimPrefix(p, "host="), "\""); v != "" {
					return stripPort(v)
				}
			}
		}
	}
	if xfh := r.Header.Get("X-Forwarded-Host"); xfh != "" {
		if v := strings.TrimSpace(strings.Split(xfh, ",")[0]); v != "" {
			return stripPort(v)
		}
	}
	return stripPort(r.Host)
}

// topDomain returns eTLD+1 for host, or "" for IPs/localhost/unresolvable
// suffixes, adapted from the teacher's common.TopDomain.
func topDomain(host string) (string, error) {
	if host == "" || isIP(host) || isLocalhost(host) {
		return "", nil
	}
	host = stripPort(host)
	e, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return "", err
	}
	if e == host || e == "" {
		return "", nil
	}
	return e, nil
}

func isIP(h string) bool { return net.ParseIP(stripPort(h)) != nil }

func isLocalhost(h string) bool {
	h = strings.ToLower(stripPort(h))
	return h == "localhost" || strings.HasSuffix(h, ".localhost")
}

func stripPort(h string) string {
	if i := strings.IndexByte(h, ':'); i > -1 {
		return h[:i]
	}
	return h
}

// CORSOptions configures which browser origins may call the MCP endpoint.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowCredentials bool
	UseTopDomain     bool
}

func (c CORSOptions) allows(origin string) bool {
	if origin == "" {
		return false
	}
	for _, o := range c.AllowedOrigins {
		if o == "*" {
			return true
		}
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// applyCORS writes Access-Control-* headers for a simple or preflight
// request when origin is allowed. It returns false when the origin is not
// permitted and the caller should refuse the request.
func applyCORS(w http.ResponseWriter, r *http.Request, opts CORSOptions) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(opts.AllowedOrigins) == 0 {
		return true
	}
	if !opts.allows(origin) {
		return false
	}
	w.Header().Set("Access-Control-Allow-Origin", origin)
	w.Header().Set("Vary", "Origin")
	if opts.AllowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Mcp-Session-Id, Last-Event-ID, Authorization")
	w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
	return true
}
