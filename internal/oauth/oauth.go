// Package oauth provides cached OAuth2 token sources for provider clients.
//
// Client-credentials tokens are fetched with a bounded retry loop and reused
// until they are within a configurable margin of expiry. The token step is
// the only place in the service that retries.
package oauth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/google"

	"github.com/rkm/fieldsat/internal/models"
)

// Default token settings.
const (
	DefaultExpiryMargin = 60 * time.Second
	DefaultMaxAttempts  = 3
	DefaultRetryDelay   = 500 * time.Millisecond
)

// Credentials identifies an OAuth2 client at a token endpoint.
type Credentials struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	Scopes       []string
}

// Options tune caching and retries. Zero values select the defaults.
type Options struct {
	ExpiryMargin time.Duration
	MaxAttempts  int
	RetryDelay   time.Duration
	// HTTPClient is used for token requests. Nil means http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ExpiryMargin <= 0 {
		o.ExpiryMargin = DefaultExpiryMargin
	}
	if o.MaxAttempts < 1 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.RetryDelay < 0 {
		o.RetryDelay = 0
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// ContextSource is a token source whose fetches end when ctx is done.
type ContextSource interface {
	oauth2.TokenSource
	TokenContext(ctx context.Context) (*oauth2.Token, error)
}

// ClientCredentials returns a token source for the client-credentials grant.
// Tokens are cached and treated as expired ExpiryMargin before their real
// expiry. It fails with models.ErrConfigurationMissing when the client id,
// secret or token URL is empty.
//
// All attempts of one fetch, including the delays between them, share the
// caller's context.
func ClientCredentials(creds Credentials, opts Options) (ContextSource, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, fmt.Errorf("%w: client id and secret are required", models.ErrConfigurationMissing)
	}
	if creds.TokenURL == "" {
		return nil, fmt.Errorf("%w: token URL is required", models.ErrConfigurationMissing)
	}

	opts = opts.withDefaults()

	r := &retrier{
		cfg: &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     creds.TokenURL,
			Scopes:       creds.Scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient:  opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		delay:       opts.RetryDelay,
		logger:      opts.Logger.With(slog.String("token_url", creds.TokenURL)),
	}

	return newCachedSource(r.fetch, opts.ExpiryMargin), nil
}

// ServiceAccount returns a token source for a Google service account key.
// The returned source caches tokens and refreshes them shortly before expiry.
func ServiceAccount(credentialsJSON []byte, httpClient *http.Client, scopes ...string) (ContextSource, error) {
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("%w: service account credentials are required", models.ErrConfigurationMissing)
	}

	cfg, err := google.JWTConfigFromJSON(credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse service account credentials: %w", err)
	}

	fetch := func(ctx context.Context) (*oauth2.Token, error) {
		// The JWT exchange does not observe cancellation, only the client timeout.
		return await(ctx, cfg.TokenSource(withHTTPClient(context.Background(), httpClient)))
	}
	return newCachedSource(fetch, DefaultExpiryMargin), nil
}

// TokenContext returns a token from src, giving up when ctx is done.
func TokenContext(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	if cs, ok := src.(ContextSource); ok {
		return cs.TokenContext(ctx)
	}
	return await(ctx, src)
}

// Client returns an HTTP client that authorizes every request with a token
// from src. Timeout and transport are taken from base. The token is fetched
// under the request's context.
func Client(base *http.Client, src oauth2.TokenSource) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	return &http.Client{
		Timeout: base.Timeout,
		Transport: &transport{
			source: src,
			base:   base.Transport,
		},
	}
}

type transport struct {
	source oauth2.TokenSource
	base   http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := TokenContext(req.Context(), t.source)
	if err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	authorized := req.Clone(req.Context())
	tok.SetAuthHeader(authorized)

	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(authorized)
}

// cachedSource reuses a token until it is within margin of expiry. Callers
// queue for the refresh and leave the queue when their context ends.
type cachedSource struct {
	fetch  func(ctx context.Context) (*oauth2.Token, error)
	margin time.Duration
	now    func() time.Time
	sem    chan struct{}
	tok    *oauth2.Token
}

func newCachedSource(fetch func(ctx context.Context) (*oauth2.Token, error), margin time.Duration) *cachedSource {
	return &cachedSource{
		fetch:  fetch,
		margin: margin,
		now:    time.Now,
		sem:    make(chan struct{}, 1),
	}
}

// Token implements oauth2.TokenSource without a deadline.
func (s *cachedSource) Token() (*oauth2.Token, error) {
	return s.TokenContext(context.Background())
}

// TokenContext implements ContextSource.
func (s *cachedSource) TokenContext(ctx context.Context) (*oauth2.Token, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("token request interrupted: %w", ctx.Err())
	}
	defer func() { <-s.sem }()

	if s.fresh() {
		return s.tok, nil
	}

	tok, err := s.fetch(ctx)
	if err != nil {
		return nil, err
	}
	s.tok = tok
	return tok, nil
}

func (s *cachedSource) fresh() bool {
	if s.tok == nil || s.tok.AccessToken == "" {
		return false
	}
	if s.tok.Expiry.IsZero() {
		return true
	}
	return s.now().Add(s.margin).Before(s.tok.Expiry)
}

// retrier fetches a fresh client-credentials token, retrying failed
// requests with a fixed delay.
type retrier struct {
	cfg         *clientcredentials.Config
	httpClient  *http.Client
	maxAttempts int
	delay       time.Duration
	logger      *slog.Logger
}

func (r *retrier) fetch(ctx context.Context) (*oauth2.Token, error) {
	ctx = withHTTPClient(ctx, r.httpClient)
	var lastErr error

	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		tok, err := r.cfg.Token(ctx)
		if err == nil && tok.AccessToken != "" {
			r.logger.DebugContext(ctx, "obtained access token",
				slog.Int("attempt", attempt),
				slog.Time("expiry", tok.Expiry),
			)
			return tok, nil
		}
		if err == nil {
			err = fmt.Errorf("%w: empty access token", models.ErrMalformedResponse)
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, fmt.Errorf("token request interrupted after %d attempts: %w", attempt, ctx.Err())
		}

		r.logger.WarnContext(ctx, "token request failed",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", r.maxAttempts),
			slog.String("error", err.Error()),
		)

		if attempt < r.maxAttempts && r.delay > 0 {
			timer := time.NewTimer(r.delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("token request interrupted after %d attempts: %w", attempt, ctx.Err())
			case <-timer.C:
			}
		}
	}

	return nil, fmt.Errorf("token request failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// await runs src.Token in the background and returns early when ctx ends.
func await(ctx context.Context, src oauth2.TokenSource) (*oauth2.Token, error) {
	type reply struct {
		tok *oauth2.Token
		err error
	}
	done := make(chan reply, 1)
	go func() {
		tok, err := src.Token()
		done <- reply{tok, err}
	}()

	select {
	case r := <-done:
		return r.tok, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("token request interrupted: %w", ctx.Err())
	}
}

func withHTTPClient(ctx context.Context, client *http.Client) context.Context {
	if client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, client)
}
