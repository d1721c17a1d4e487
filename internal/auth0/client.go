package auth0

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	defaultMaxRetries    = 3
	defaultBackoffFactor = 2
	searchEngineVersion  = "v3"
)

var (
	errMissingDomain       = errors.New("domain is required")
	errMissingClientID     = errors.New("client id is required")
	errMissingClientSecret = errors.New("client secret is required")
	errMissingConnection   = errors.New("connection is required")
	ErrInvalidClientConfig = errors.New("auth0: invalid client config")
)

// User is one identity in the tenant's user pool. The ID is the opaque
// provider-assigned user_id.
type User struct {
	ID    string `json:"user_id"`
	Email string `json:"email"`
}

// Role is one entry of the tenant's role catalog.
type Role struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ClientConfig bundles everything required to talk to one tenant's
// Management API.
type ClientConfig struct {
	Domain        string
	ClientID      string
	ClientSecret  string
	Connection    string
	MaxRetries    int
	BackoffFactor int
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// Client issues Management API v2 calls against a single tenant. Every
// call runs under the same bounded retry envelope; the bearer token is
// obtained once at construction and reused for the whole run.
type Client struct {
	rest          *resty.Client
	connection    string
	attempts      uint
	backoffFactor int
	logger        *zap.Logger
}

// NewClient validates the configuration and performs the
// client-credentials exchange. A failed exchange, after retries, is
// returned to the caller; nothing in this package recovers from it.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	domain := strings.TrimRight(strings.TrimSpace(cfg.Domain), "/")
	if domain == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingDomain)
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingClientID)
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingClientSecret)
	}
	if strings.TrimSpace(cfg.Connection) == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingConnection)
	}

	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = defaultMaxRetries
	}
	backoffFactor := cfg.BackoffFactor
	if backoffFactor <= 0 {
		backoffFactor = defaultBackoffFactor
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	client := &Client{
		rest:          resty.NewWithClient(httpClient).SetBaseURL(domain),
		connection:    cfg.Connection,
		attempts:      uint(attempts),
		backoffFactor: backoffFactor,
		logger:        logger,
	}

	token, err := client.exchangeCredentials(ctx, domain, cfg.ClientID, cfg.ClientSecret, httpClient)
	if err != nil {
		return nil, fmt.Errorf("auth0: token exchange failed: %w", err)
	}
	client.rest.SetAuthToken(token)
	logger.Info("authenticated against auth0 tenant", zap.String("domain", domain))

	return client, nil
}

func (c *Client) exchangeCredentials(ctx context.Context, domain, clientID, clientSecret string, httpClient *http.Client) (string, error) {
	exchange := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     domain + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"audience": []string{domain + "/api/v2/"},
		},
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, httpClient)

	var token *oauth2.Token
	err := c.do(ctx, func() error {
		var exchangeErr error
		token, exchangeErr = exchange.Token(tokenCtx)
		return exchangeErr
	})
	if err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// Roles lists the tenant's role catalog.
func (c *Client) Roles(ctx context.Context) ([]Role, error) {
	var roles []Role
	err := c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetResult(&roles).
			Get("/api/v2/roles")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("auth0: list roles returned status %d: %s", resp.StatusCode(), resp.Body())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// ConnectionUsers lists every user of the configured connection.
// Whatever the API returns in a single call is the working set; no
// paging is attempted.
func (c *Client) ConnectionUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"connection":    c.connection,
				"search_engine": searchEngineVersion,
			}).
			SetResult(&users).
			Get("/api/v2/users")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("auth0: list users returned status %d: %s", resp.StatusCode(), resp.Body())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// UserRoles lists the roles currently assigned to one user.
func (c *Client) UserRoles(ctx context.Context, userID string) ([]Role, error) {
	var roles []Role
	err := c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetResult(&roles).
			Get("/api/v2/users/" + url.PathEscape(userID) + "/roles")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("auth0: list user roles returned status %d: %s", resp.StatusCode(), resp.Body())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// CreateUser creates an account on the configured connection and
// returns the assigned user id. Any status other than 201 is a
// StatusError and is never retried.
func (c *Client) CreateUser(ctx context.Context, email, password string) (string, error) {
	payload := map[string]any{
		"connection":   c.connection,
		"email":        email,
		"password":     password,
		"verify_email": false,
	}
	var created struct {
		UserID string `json:"user_id"`
	}
	err := c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(payload).
			SetResult(&created).
			Post("/api/v2/users")
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusCreated {
			return &StatusError{Operation: "create user", Code: resp.StatusCode(), Body: string(resp.Body())}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return created.UserID, nil
}

// DeleteUser removes an account. Any status other than 204 is a
// StatusError and is never retried.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			Delete("/api/v2/users/" + url.PathEscape(userID))
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusNoContent {
			return &StatusError{Operation: "delete user", Code: resp.StatusCode(), Body: string(resp.Body())}
		}
		return nil
	})
}

// AssignRole grants one role to a user.
func (c *Client) AssignRole(ctx context.Context, userID, roleID string) error {
	return c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(rolesPayload(roleID)).
			Post("/api/v2/users/" + url.PathEscape(userID) + "/roles")
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusNoContent {
			return &StatusError{Operation: "assign role", Code: resp.StatusCode(), Body: string(resp.Body())}
		}
		return nil
	})
}

// UnassignRole revokes one role from a user.
func (c *Client) UnassignRole(ctx context.Context, userID, roleID string) error {
	return c.do(ctx, func() error {
		resp, err := c.rest.R().
			SetContext(ctx).
			SetBody(rolesPayload(roleID)).
			Delete("/api/v2/users/" + url.PathEscape(userID) + "/roles")
		if err != nil {
			return err
		}
		if resp.StatusCode() != http.StatusNoContent {
			return &StatusError{Operation: "unassign role", Code: resp.StatusCode(), Body: string(resp.Body())}
		}
		return nil
	})
}

func rolesPayload(roleID string) map[string]any {
	return map[string]any{"roles": []string{roleID}}
}

// do runs one remote call under the retry envelope. Transport-level
// failures and unexpected statuses on reads are retried with
// exponential backoff; a StatusError from a mutating call stops the
// envelope at once.
func (c *Client) do(ctx context.Context, call func() error) error {
	return retry.Do(
		call,
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.DelayType(c.backoffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			c.logger.Warn("auth0 request failed, retrying",
				zap.Uint("attempt", attempt+1),
				zap.Error(err))
		}),
	)
}

// backoffDelay yields factor^attempt seconds; with the defaults the
// waits are 2s, 4s, 8s.
func (c *Client) backoffDelay(attempt uint, _ error, _ *retry.Config) time.Duration {
	seconds := math.Pow(float64(c.backoffFactor), float64(attempt+1))
	return time.Duration(seconds * float64(time.Second))
}

func isTransient(err error) bool {
	var statusErr *StatusError
	return !errors.As(err, &statusErr)
}
