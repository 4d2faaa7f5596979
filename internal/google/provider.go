package google

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/teemow/followmail/internal/instrumentation"
)

// Config holds the OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Scopes defaults to DefaultOAuthScopes.
	Scopes []string

	// Endpoint defaults to Google's OAuth2 endpoint.
	Endpoint oauth2.Endpoint
}

// Validate checks that the client registration is complete.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("google client ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("google client secret is required")
	}
	if c.RedirectURL == "" {
		return fmt.Errorf("redirect URL is required")
	}
	return nil
}

// Provider performs the OAuth2 authorization code flow against Google.
type Provider struct {
	conf    *oauth2.Config
	metrics *instrumentation.Metrics
	apiOpts []option.ClientOption
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// WithMetrics records auth and token refresh outcomes.
func WithMetrics(m *instrumentation.Metrics) ProviderOption {
	return func(p *Provider) {
		p.metrics = m
	}
}

// WithAPIOptions adds client options to the userinfo API client.
func WithAPIOptions(opts ...option.ClientOption) ProviderOption {
	return func(p *Provider) {
		p.apiOpts = append(p.apiOpts, opts...)
	}
}

// NewProvider creates a provider for cfg.
func NewProvider(cfg Config, opts ...ProviderOption) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultOAuthScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}

	p := &Provider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// AuthURL returns the consent page URL. It requests offline access and forces
// the consent prompt so Google issues a refresh token on every login.
func (p *Provider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens.
func (p *Provider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("authorization code is required")
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth2, instrumentation.OperationExchange)
	defer span.End()

	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		p.metrics.RecordOAuthAuth(ctx, instrumentation.StatusError)
		return nil, fmt.Errorf("failed to exchange auth code: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	p.metrics.RecordOAuthAuth(ctx, instrumentation.StatusSuccess)
	return tok, nil
}

// UserInfo returns the identity behind tok.
func (p *Provider) UserInfo(ctx context.Context, tok *oauth2.Token) (*oauth2v2.Userinfo, error) {
	return p.userInfo(ctx, oauth2.StaticTokenSource(tok))
}

// UserInfoFromSource returns the identity behind a token source, refreshing
// the access token as needed.
func (p *Provider) UserInfoFromSource(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error) {
	return p.userInfo(ctx, ts)
}

func (p *Provider) userInfo(ctx context.Context, ts oauth2.TokenSource) (*oauth2v2.Userinfo, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth2, instrumentation.OperationUserInfo)
	defer span.End()

	start := time.Now()
	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, p.apiOpts...)
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		instrumentation.SetSpanError(span, err)
		p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth2, instrumentation.OperationUserInfo, instrumentation.StatusError, time.Since(start))
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}

	instrumentation.SetSpanSuccess(span)
	p.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth2, instrumentation.OperationUserInfo, instrumentation.StatusSuccess, time.Since(start))
	return info, nil
}

// TokenSource rebuilds a token source from a stored refresh token. The first
// Token call refreshes; the access token is then reused until it expires.
func (p *Provider) TokenSource(ctx context.Context, refreshToken string) oauth2.TokenSource {
	base := p.conf.TokenSource(ctx, &oauth2.Token{
		TokenType:    "Bearer",
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	return oauth2.ReuseTokenSource(nil, &refreshRecorder{ctx: ctx, src: base, metrics: p.metrics})
}

// refreshRecorder counts refreshes. It sits below a ReuseTokenSource, so it is
// only called when a new access token is needed.
type refreshRecorder struct {
	ctx     context.Context
	src     oauth2.TokenSource
	metrics *instrumentation.Metrics
}

func (r *refreshRecorder) Token() (*oauth2.Token, error) {
	tok, err := r.src.Token()
	if err != nil {
		r.metrics.RecordOAuthTokenRefresh(r.ctx, instrumentation.StatusError)
		return nil, err
	}
	r.metrics.RecordOAuthTokenRefresh(r.ctx, instrumentation.StatusSuccess)
	return tok, nil
}
