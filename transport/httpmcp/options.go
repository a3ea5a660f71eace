package httpmcp

import (
	"net/http"
	"time"

	"github.com/mutablelogic/mcp-streamhttp/session"
	"github.com/mutablelogic/mcp-streamhttp/stream"
	"github.com/mutablelogic/mcp-streamhttp/transport/server/auth"
)

const (
	defaultURI       = "/mcp"
	defaultSessionHeader = "Mcp-Session-Id"
	defaultKeepalive = 15 * time.Second
)

// BFFCookie names the cookie attributes used to carry an opaque id,
// adapted from the teacher's streamable.BFFCookie/BFFAuthCookie (merged into
// one shape since both only ever differed by name/purpose).
type BFFCookie struct {
	Name     string
	Path     string
	Domain   string
	Secure   bool
	HTTPOnly bool
	SameSite http.SameSite
	MaxAge   int
}

// Options configures a Handler.
type Options struct {
	URI             string
	SessionLocation *Location

	SessionTTL       time.Duration
	KeepaliveInterval time.Duration
	EventBufferSize  int

	// StrictLifecycle rejects any non-initialize method before the client has
	// sent notifications/initialized, per spec.md §3's strict-mode invariant.
	StrictLifecycle bool

	// ResourcesSubscribe advertises the resources.subscribe capability in the
	// initialize snapshot (capabilities.Compute reports it only when
	// resources/list is registered). It adds no resources/subscribe handler;
	// that method is served only if one is registered on the dispatcher.
	ResourcesSubscribe bool
	Logging            bool

	CORS CORSOptions

	CookieSession      *BFFCookie
	CookieUseTopDomain bool

	AuthStore            auth.Store
	AuthCookie           *BFFCookie
	RehydrateOnHandshake bool
	LogoutAllPath        string

	SessionStore session.Store
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		URI:              defaultURI,
		SessionLocation:  NewHeaderLocation(defaultSessionHeader),
		SessionTTL:       session.DefaultTTL,
		KeepaliveInterval: defaultKeepalive,
		EventBufferSize:  stream.DefaultBufferSize,
	}
}

func WithURI(uri string) Option { return func(o *Options) { o.URI = uri } }

func WithSessionLocation(loc *Location) Option {
	return func(o *Options) { o.SessionLocation = loc }
}

func WithSessionTTL(d time.Duration) Option { return func(o *Options) { o.SessionTTL = d } }

func WithKeepaliveInterval(d time.Duration) Option {
	return func(o *Options) { o.KeepaliveInterval = d }
}

func WithEventBufferSize(n int) Option { return func(o *Options) { o.EventBufferSize = n } }

func WithStrictLifecycle(v bool) Option { return func(o *Options) { o.StrictLifecycle = v } }

func WithResourcesSubscribe(v bool) Option {
	return func(o *Options) { o.ResourcesSubscribe = v }
}

func WithLogging(v bool) Option { return func(o *Options) { o.Logging = v } }

func WithCORS(c CORSOptions) Option { return func(o *Options) { o.CORS = c } }

func WithCookieSession(c *BFFCookie) Option { return func(o *Options) { o.CookieSession = c } }

func WithCookieUseTopDomain(v bool) Option {
	return func(o *Options) { o.CookieUseTopDomain = v }
}

func WithAuthStore(store auth.Store) Option { return func(o *Options) { o.AuthStore = store } }

func WithAuthCookie(c *BFFCookie) Option { return func(o *Options) { o.AuthCookie = c } }

func WithRehydrateOnHandshake(v bool) Option {
	return func(o *Options) { o.RehydrateOnHandshake = v }
}

func WithLogoutAllPath(path string) Option { return func(o *Options) { o.LogoutAllPath = path } }

func WithSessionStore(store session.Store) Option {
	return func(o *Options) { o.SessionStore = store }
}
