// Package calendar creates Google Calendar events on behalf of users whose OAuth
// tokens are stored in the persistence layer.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"aura/pkg/config"
	"aura/pkg/logx"
	"aura/pkg/persistence"
	"aura/pkg/tools"
)

// PrimaryCalendarID is the calendar every event is written to.
const PrimaryCalendarID = "primary"

// Scopes are the OAuth scopes the calendar adapter needs.
var Scopes = []string{gcal.CalendarEventsScope, gcal.CalendarReadonlyScope}

var (
	// ErrNotConnected is returned when the user has no stored Google access token.
	ErrNotConnected = errors.New("user not authenticated with Google")
	// ErrRefreshFailed is returned when an expired token cannot be refreshed.
	ErrRefreshFailed = errors.New("token expired and refresh failed")
)

// TokenStore loads and saves a user's Google tokens.
type TokenStore interface {
	GetUserByEmail(ctx context.Context, email string) (*persistence.User, error)
	UpdateGoogleToken(ctx context.Context, email, accessToken, refreshToken string, expiry time.Time) error
}

// Service implements tools.EventCreator over the Google Calendar API.
type Service struct {
	store    TokenStore
	oauth    *oauth2.Config
	logger   *logx.Logger
	endpoint string
}

var _ tools.EventCreator = (*Service)(nil)

// Option customizes a Service.
type Option func(*Service)

// WithEndpoint points the calendar client at a different API base URL.
func WithEndpoint(url string) Option {
	return func(s *Service) { s.endpoint = url }
}

// WithTokenURL points token refreshes at a different OAuth token endpoint.
func WithTokenURL(url string) Option {
	return func(s *Service) { s.oauth.Endpoint.TokenURL = url }
}

// New creates a calendar service using the OAuth client settings in cfg.
func New(cfg config.GoogleConfig, store TokenStore, opts ...Option) *Service {
	s := &Service{
		store: store,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
			Scopes:       Scopes,
		},
		logger: logx.NewLogger("calendar"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEvent inserts ev into the user's primary calendar with UTC times.
func (s *Service) CreateEvent(ctx context.Context, userEmail string, ev tools.Event) (tools.CreatedEvent, error) {
	svc, err := s.client(ctx, userEmail)
	if err != nil {
		return tools.CreatedEvent{}, err
	}

	body := &gcal.Event{
		Summary:     ev.Summary,
		Description: ev.Description,
		Start:       &gcal.EventDateTime{DateTime: ev.Start.UTC().Format(time.RFC3339), TimeZone: "UTC"},
		End:         &gcal.EventDateTime{DateTime: ev.End.UTC().Format(time.RFC3339), TimeZone: "UTC"},
	}
	created, err := svc.Events.Insert(PrimaryCalendarID, body).Context(ctx).Do()
	if err != nil {
		return tools.CreatedEvent{}, fmt.Errorf("insert event: %w", err)
	}
	s.logger.Info("Created event %s for %s", created.Id, userEmail)
	return tools.CreatedEvent{ID: created.Id, HTMLLink: created.HtmlLink}, nil
}

// client builds a calendar client for one user. Refreshed tokens are written back
// to the store.
func (s *Service) client(ctx context.Context, userEmail string) (*gcal.Service, error) {
	user, err := s.store.GetUserByEmail(ctx, userEmail)
	if errors.Is(err, persistence.ErrUserNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.GoogleAccessToken == "" {
		return nil, ErrNotConnected
	}

	tok := &oauth2.Token{
		AccessToken:  user.GoogleAccessToken,
		RefreshToken: user.GoogleRefreshToken,
		TokenType:    "Bearer",
	}
	if user.GoogleTokenExpiry != nil {
		tok.Expiry = *user.GoogleTokenExpiry
	}

	src := &savingTokenSource{
		ctx:    context.WithoutCancel(ctx),
		base:   s.oauth.TokenSource(ctx, tok),
		store:  s.store,
		logger: s.logger,
		email:  userEmail,
		last:   tok.AccessToken,
	}

	opts := []option.ClientOption{option.WithTokenSource(oauth2.ReuseTokenSource(tok, src))}
	if s.endpoint != "" {
		opts = append(opts, option.WithEndpoint(s.endpoint))
	}
	svc, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar client: %w", err)
	}
	return svc, nil
}

// savingTokenSource persists every token that differs from the last one it saw.
type savingTokenSource struct {
	ctx    context.Context //nolint:containedctx // write-back after refresh
	base   oauth2.TokenSource
	store  TokenStore
	logger *logx.Logger
	email  string
	last   string
	mu     sync.Mutex
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRefreshFailed, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if tok.AccessToken == s.last {
		return tok, nil
	}
	s.last = tok.AccessToken
	if err := s.store.UpdateGoogleToken(s.ctx, s.email, tok.AccessToken, tok.RefreshToken, tok.Expiry); err != nil {
		// The refreshed token is still valid for this request.
		s.logger.Warn("Failed to save refreshed token for %s: %v", s.email, err)
	}
	return tok, nil
}
