package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// DefaultScope is the OAuth2 scope for the AI projects data plane.
const DefaultScope = "https://ai.azure.com/.default"

// TokenSource supplies bearer tokens for the agents service.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a fixed pre-issued token (dev setups, injected workload
// tokens).
type StaticToken string

func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("empty access token")
	}
	return string(s), nil
}

// ClientCredential exchanges client credentials for bearer tokens and caches
// them until shortly before expiry.
type ClientCredential struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string // overrides the login endpoint, used in tests

	httpc *http.Client

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewClientCredential builds a client-credentials token source with the
// default scope.
func NewClientCredential(tenantID, clientID, clientSecret string) *ClientCredential {
	return &ClientCredential{
		TenantID:     tenantID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scope:        DefaultScope,
		httpc:        &http.Client{Timeout: 15 * time.Second},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (c *ClientCredential) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && time.Now().Before(c.expiry) {
		return c.token, nil
	}

	endpoint := c.TokenURL
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.TenantID)
	}
	scope := c.Scope
	if scope == "" {
		scope = DefaultScope
	}
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"scope":         {scope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	if c.httpc == nil {
		c.httpc = &http.Client{Timeout: 15 * time.Second}
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("token endpoint returned %s: %s", resp.Status, string(b))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token endpoint returned no access_token")
	}

	c.token = tr.AccessToken
	// refresh two minutes before the service-reported expiry
	c.expiry = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - 2*time.Minute)
	return c.token, nil
}

// ResolveTokenSource picks a token source from configured auth material:
// explicit client credentials win, otherwise a static token.
func ResolveTokenSource(accessToken, tenantID, clientID, clientSecret string) (TokenSource, error) {
	if strings.TrimSpace(clientSecret) != "" {
		return NewClientCredential(tenantID, clientID, clientSecret), nil
	}
	if strings.TrimSpace(accessToken) != "" {
		return StaticToken(accessToken), nil
	}
	return nil, fmt.Errorf("no auth material: need a client secret or an access token")
}
