// Package aps is the gateway to the Autodesk Platform Services Data
// Management API. It translates model identifiers into publish command
// acceptance, hiding the multi-region topology: region discovery by probing,
// 404-driven region fallback, and bounded retry with exponential backoff.
package aps

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/forgepulse/forgepulse/errors"
	"github.com/forgepulse/forgepulse/internal/httpclient"
)

// Command selects which publish command variant is sent.
type Command string

const (
	// CommandPublish publishes the model including linked models.
	CommandPublish Command = "publish"
	// CommandPublishWithoutLinks publishes the model without linked models.
	CommandPublishWithoutLinks Command = "publish_without_links"
)

// extensionType maps a command variant to its Data Management extension type.
func (c Command) extensionType() string {
	if c == CommandPublishWithoutLinks {
		return "commands:autodesk.bim360:C4RModelPublishWithoutLinks"
	}
	return "commands:autodesk.bim360:C4RModelPublish"
}

// Client issues Data Management API calls against the regional deployments.
type Client struct {
	http           *httpclient.SaferClient
	baseURLs       map[Region]string
	limiter        *rate.Limiter
	maxRetries     int
	retryBaseDelay time.Duration
	command        Command
	log            *zap.SugaredLogger

	// sleep is injectable so retry/backoff tests don't wait wall-clock time
	sleep func(ctx context.Context, d time.Duration) error
}

// Options configures a Client.
type Options struct {
	BaseURLUS   string
	BaseURLEMEA string

	// Timeout applies per HTTP call. Ignored when HTTPClient is set.
	Timeout time.Duration

	// MaxRetries bounds retry attempts per region for transient failures.
	// A value of n means at most n+1 requests per region.
	MaxRetries int

	// RetryBaseDelay is the initial backoff delay, doubled per attempt.
	RetryBaseDelay time.Duration

	// MaxRequestsPerMinute rate-limits publish command dispatch.
	// 0 disables rate limiting.
	MaxRequestsPerMinute int

	Command Command

	// HTTPClient overrides the default SSRF-guarded client (tests).
	HTTPClient *httpclient.SaferClient

	Logger *zap.SugaredLogger
}

// NewClient creates a Data Management API gateway client.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = httpclient.NewSaferClient(timeout)
	}

	var limiter *rate.Limiter
	if opts.MaxRequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(opts.MaxRequestsPerMinute)/60.0), 1)
	}

	retryBaseDelay := opts.RetryBaseDelay
	if retryBaseDelay <= 0 {
		retryBaseDelay = time.Second
	}

	maxRetries := opts.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}

	command := opts.Command
	if command == "" {
		command = CommandPublish
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	return &Client{
		http: httpClient,
		baseURLs: map[Region]string{
			RegionUS:   opts.BaseURLUS,
			RegionEMEA: opts.BaseURLEMEA,
		},
		limiter:        limiter,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
		command:        command,
		log:            log,
		sleep:          sleepContext,
	}
}

// sleepContext sleeps for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// do executes one authenticated request against a region and returns the
// status code and response body. A non-nil error means the request never
// produced a response (network failure, cancelled context).
func (c *Client) do(ctx context.Context, token, method string, region Region, path string, body []byte) (int, []byte, error) {
	base, ok := c.baseURLs[region]
	if !ok || base == "" {
		return 0, nil, errors.Newf("no base URL configured for region %s", region)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, base+path, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/vnd.api+json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s %s failed", method, path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return resp.StatusCode, nil, errors.Wrap(err, "failed to read response body")
	}

	return resp.StatusCode, respBody, nil
}

// getWithIDFallback performs a GET built from projectID; on a 404 with a
// strippable project-id prefix, the call is retried once with the prefix
// removed. This papers over an upstream inconsistency where the same id is
// expected with the prefix on some endpoints and without it on others.
func (c *Client) getWithIDFallback(ctx context.Context, token string, region Region, projectID string, pathFor func(projectID string) string) (int, []byte, error) {
	status, body, err := c.do(ctx, token, http.MethodGet, region, pathFor(projectID), nil)
	if err != nil {
		return status, body, err
	}
	if status == http.StatusNotFound && HasStrippablePrefix(projectID) {
		stripped := StripProjectPrefix(projectID)
		c.log.Debugw("Retrying with stripped project id prefix",
			"project_id", projectID,
			"stripped", stripped,
			"region", region)
		return c.do(ctx, token, http.MethodGet, region, pathFor(stripped), nil)
	}
	return status, body, nil
}

// DetectRegion probes each supported region with a lightweight project
// existence check and returns the first region reporting success. The result
// is a hint to reduce probing elsewhere, never a hard requirement; ok is
// false when no region reports the project.
func (c *Client) DetectRegion(ctx context.Context, token, projectID string) (Region, bool) {
	for _, region := range Regions {
		status, _, err := c.getWithIDFallback(ctx, token, region, projectID, func(pid string) string {
			return fmt.Sprintf("/data/v1/projects/%s", pid)
		})
		if err != nil {
			c.log.Debugw("Region probe failed", "region", region, "project_id", projectID, "error", err)
			continue
		}
		if status >= 200 && status < 300 {
			return region, true
		}
	}
	return "", false
}
