package shopsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/atelier/pkg/slogx"
)

const (
	// DefaultBaseURL is used when no backend URL is configured.
	DefaultBaseURL = "http://localhost:5000"

	// DefaultTimeout bounds every attempt of every request.
	DefaultTimeout = 10 * time.Second

	// LoginRoute is handed to session-expired handlers as the place to
	// send the user next.
	LoginRoute = "/admin/login"
)

// Client talks to the storefront REST backend. Every call, public or
// authenticated, JSON or file download, goes through the same request
// pipeline with bearer injection, a per-attempt timeout and a single
// refresh-and-retry on 401.
//
// A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	storage    TokenStorage
	logger     *slog.Logger
	limiter    *rate.Limiter

	refreshGroup singleflight.Group
	expireMu     sync.Mutex

	// failedToken is the last token whose refresh was rejected.
	failedMu    sync.Mutex
	failedToken string

	handlersMu      sync.RWMutex
	expiredHandlers []func(route string)

	Auth         *AuthService
	Categories   *CategoryService
	Products     *ProductService
	Partners     *PartnerService
	Testimonials *TestimonialService
	Messages     *MessageService
	Users        *UserService
	Permissions  *PermissionService
	Dashboard    *DashboardService
	Security     *SecurityService
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is
// wrapped with request logging.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithStorage sets where credentials are read from and persisted to.
func WithStorage(s TokenStorage) Option {
	return func(c *Client) {
		if s != nil {
			c.storage = s
		}
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithSessionExpiredHandler registers fn to be called when a session could
// not be recovered.
func WithSessionExpiredHandler(fn func(route string)) Option {
	return func(c *Client) {
		if fn != nil {
			c.expiredHandlers = append(c.expiredHandlers, fn)
		}
	}
}

// NewClient creates a Client for the backend at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    NormalizeBaseURL(baseURL),
		httpClient: &http.Client{},
		timeout:    DefaultTimeout,
		storage:    NewMemoryStorage(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if _, ok := c.httpClient.Transport.(*slogx.Transport); !ok {
		hc := *c.httpClient
		hc.Transport = slogx.NewTransport(hc.Transport, c.logger)
		c.httpClient = &hc
	}

	c.Auth = &AuthService{c: c}
	c.Categories = &CategoryService{c: c}
	c.Products = &ProductService{c: c}
	c.Partners = &PartnerService{c: c}
	c.Testimonials = &TestimonialService{c: c}
	c.Messages = &MessageService{c: c}
	c.Users = &UserService{c: c}
	c.Permissions = &PermissionService{c: c}
	c.Dashboard = &DashboardService{c: c}
	c.Security = &SecurityService{c: c}
	return c
}

// NormalizeBaseURL trims whitespace and trailing slashes, falls back to
// DefaultBaseURL when empty and adds http:// when no scheme is given.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	u = strings.TrimRight(u, "/")
	if u == "" {
		return DefaultBaseURL
	}
	if !strings.Contains(u, "://") {
		u = "http://" + u
	}
	return u
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Storage returns the credential storage the client reads tokens from.
func (c *Client) Storage() TokenStorage { return c.storage }

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger { return c.logger }

// OnSessionExpired registers fn to be called with LoginRoute whenever a 401
// could not be recovered by a refresh.
func (c *Client) OnSessionExpired(fn func(route string)) {
	if fn == nil {
		return
	}
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.expiredHandlers = append(c.expiredHandlers, fn)
}

func (c *Client) notifyExpired() {
	c.handlersMu.RLock()
	handlers := append([]func(string){}, c.expiredHandlers...)
	c.handlersMu.RUnlock()

	for _, fn := range handlers {
		fn(LoginRoute)
	}
}

func (c *Client) url(path string) string {
	return c.baseURL + "/api" + path
}
