package aps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/forgepulse/forgepulse/errors"
)

const (
	tokenURL   = "https://developer.api.autodesk.com/authentication/v2/token"
	tokenScope = "data:read data:write"

	// Refresh a cached token this long before its actual expiry so a token
	// handed to the gateway stays valid for the whole publish pass.
	tokenExpirySlack = 2 * time.Minute
)

// ClientCredentialsProvider implements TokenProvider using the APS
// two-legged OAuth flow. Tokens are cached until shortly before expiry.
//
// Two-legged tokens are app-scoped, so the userID argument is ignored.
type ClientCredentialsProvider struct {
	clientID     string
	clientSecret string
	http         *http.Client
	tokenURL     string

	mu      sync.Mutex
	token   string
	expires time.Time
}

// NewClientCredentialsProvider creates a provider. httpClient may be nil,
// in which case http.DefaultClient is used.
func NewClientCredentialsProvider(clientID, clientSecret string, httpClient *http.Client) *ClientCredentialsProvider {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &ClientCredentialsProvider{
		clientID:     clientID,
		clientSecret: clientSecret,
		http:         httpClient,
		tokenURL:     tokenURL,
	}
}

// EnsureValidToken returns the cached token if it has comfortable life
// left, otherwise fetches a fresh one.
func (p *ClientCredentialsProvider) EnsureValidToken(ctx context.Context, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && time.Now().Before(p.expires.Add(-tokenExpirySlack)) {
		return p.token, nil
	}

	token, expiresIn, err := p.exchange(ctx)
	if err != nil {
		return "", errors.Wrap(errors.ErrNoToken, err.Error())
	}

	p.token = token
	p.expires = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return p.token, nil
}

// exchange performs the client_credentials grant.
func (p *ClientCredentialsProvider) exchange(ctx context.Context) (string, int, error) {
	if p.clientID == "" || p.clientSecret == "" {
		return "", 0, errors.New("APS client credentials not configured")
	}

	data := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {tokenScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to create token request")
	}
	req.SetBasicAuth(p.clientID, p.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", 0, errors.Wrap(err, "token request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to read token response")
	}

	if resp.StatusCode != http.StatusOK {
		return "", 0, errors.Newf("APS token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", 0, errors.Wrap(err, "failed to parse token response")
	}
	if tokenResp.AccessToken == "" {
		return "", 0, errors.New("no access token in response")
	}

	return tokenResp.AccessToken, tokenResp.ExpiresIn, nil
}

// StaticTokenProvider returns a fixed token. Useful for dry-run mode and
// for callers that manage tokens externally.
type StaticTokenProvider string

func (s StaticTokenProvider) EnsureValidToken(context.Context, string) (string, error) {
	if s == "" {
		return "", errors.Wrap(errors.ErrNoToken, "no static token configured")
	}
	return string(s), nil
}
