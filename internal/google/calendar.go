package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/Foundryproject/Donna/internal/model"
)

const (
	// maxEventsPerDay bounds a single calendar query. No pagination
	// beyond the first page.
	maxEventsPerDay = 50

	noTitlePlaceholder = "(no title)"
)

// Client talks to Google OAuth and the Calendar API on behalf of users.
// Long-lived refresh tokens live in the credential store; this client
// exchanges them for short-lived access tokens per request.
type Client struct {
	conf       oauth2.Config
	httpClient *http.Client
	logger     *zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient constructs a calendar client. baseURL is the public base of
// the OAuth callback server, e.g. https://donna.example.com.
func NewClient(clientID, clientSecret, baseURL string, logger *zerolog.Logger) *Client {
	return &Client{
		conf: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  baseURL + "/auth/callback",
			Scopes:       []string{calendar.CalendarReadonlyScope},
			Endpoint:     googleoauth.Endpoint,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// UseRedisCache configures optional caching of short-lived access
// tokens, keyed per user identity.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

// AuthURL builds the Google consent URL for the given state.
// access_type=offline and prompt=consent force a refresh token grant.
func (c *Client) AuthURL(state string) string {
	return c.conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange trades an authorization code for a long-lived refresh token.
// Returns an empty string if Google did not include one; the caller has
// to prompt the user to relink with consent.
func (c *Client) Exchange(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return "", mapOAuthErr(err)
	}
	return token.RefreshToken, nil
}

// RefreshAccessToken exchanges the stored refresh token for a
// short-lived access token. A rejected credential maps to
// model.ErrAuthExpired and is never retried here; the user has to
// relink.
func (c *Client) RefreshAccessToken(ctx context.Context, identity, refreshToken string) (string, error) {
	cacheKey := "gcal_access_token:" + identity
	if c.redis != nil && c.cacheTTL > 0 {
		if cached, err := c.redis.Get(ctx, cacheKey).Result(); err == nil && cached != "" {
			return cached, nil
		}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return "", mapOAuthErr(err)
	}

	if c.redis != nil && c.cacheTTL > 0 {
		ttl := c.cacheTTL
		if remaining := time.Until(token.Expiry) - time.Minute; remaining > 0 && remaining < ttl {
			ttl = remaining
		}
		if err := c.redis.Set(ctx, cacheKey, token.AccessToken, ttl).Err(); err != nil {
			c.logger.Debug().Err(err).Msg("access token cache write failed")
		}
	}
	return token.AccessToken, nil
}

// ListEvents queries the primary calendar for events overlapping the
// [start, end] window, recurring events expanded, ordered by start time.
func (c *Client) ListEvents(ctx context.Context, accessToken string, start, end time.Time, tzid string) ([]model.Event, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	service, err := calendar.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}

	events, err := service.Events.List("primary").
		ShowDeleted(false).
		SingleEvents(true).
		OrderBy("startTime").
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(maxEventsPerDay).
		TimeZone(tzid).
		Context(ctx).
		Do()
	if err != nil {
		return nil, mapAPIErr(err)
	}

	return c.normalizeEvents(events.Items), nil
}

// normalizeEvents converts Google Calendar events to the internal
// model. Date-only starts become all-day events; a missing summary gets
// a placeholder.
func (c *Client) normalizeEvents(items []*calendar.Event) []model.Event {
	var events []model.Event
	for _, item := range items {
		if item.Start == nil {
			continue
		}

		summary := item.Summary
		if summary == "" {
			summary = noTitlePlaceholder
		}

		if item.Start.DateTime == "" {
			events = append(events, model.Event{
				ID:      item.Id,
				Summary: summary,
				AllDay:  true,
			})
			continue
		}

		startTime, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			c.logger.Warn().Err(err).
				Str("event_id", item.Id).
				Str("start", item.Start.DateTime).
				Msg("dropping event with unparseable start time")
			continue
		}
		events = append(events, model.Event{
			ID:      item.Id,
			Summary: summary,
			Start:   startTime.UTC(),
		})
	}
	return events
}

// mapOAuthErr translates token endpoint failures into the error
// taxonomy. 4xx means the grant itself was rejected.
func mapOAuthErr(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		code := retrieveErr.Response.StatusCode
		if code >= 400 && code < 500 {
			return fmt.Errorf("%w: %s", model.ErrAuthExpired, retrieveErr.ErrorCode)
		}
	}
	return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
}

// mapAPIErr translates Calendar API failures. 401/403 means the access
// token no longer grants calendar access.
func mapAPIErr(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden {
			return fmt.Errorf("%w: http %d", model.ErrAuthExpired, apiErr.Code)
		}
	}
	return fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, err)
}
