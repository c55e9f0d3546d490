package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/forgepulse/forgepulse/errors"
)

// Outcome is the result of a publish command dispatch.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeFailed   Outcome = "failed"
)

// PublishOutcome reports how a publish command fared: whether any region
// accepted it, the last HTTP status observed, and the region that produced
// that status.
type PublishOutcome struct {
	Outcome    Outcome
	HTTPStatus int
	Region     Region
}

// commandPayload builds the Data Management commands request for publishing
// a specific file version.
func (c *Client) commandPayload(versionURN string) ([]byte, error) {
	payload := map[string]interface{}{
		"jsonapi": map[string]string{"version": "1.0"},
		"data": map[string]interface{}{
			"type": "commands",
			"attributes": map[string]interface{}{
				"extension": map[string]interface{}{
					"type":    c.command.extensionType(),
					"version": "1.0.0",
				},
			},
			"relationships": map[string]interface{}{
				"resources": map[string]interface{}{
					"data": []map[string]string{
						{"type": "versions", "id": versionURN},
					},
				},
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal command payload")
	}
	return body, nil
}

// Publish issues the configured publish command for a version URN against
// the region try-order [hint, others...].
//
// Per region the request is retried only on 5xx, 429, or network error, up
// to MaxRetries extra attempts with exponential backoff. A 2xx response
// short-circuits as accepted. A non-retryable 4xx other than 404
// short-circuits as failed and stops trying other regions. A 404 means "not
// in this region" and the next region in the try-order is attempted. If
// every region is exhausted without acceptance the outcome is failed with
// the last region tried.
//
// A non-nil error is returned only when the context is cancelled or the
// gateway is misconfigured; definitive rejections are outcomes, not errors.
func (c *Client) Publish(ctx context.Context, token, projectID, versionURN string, hint Region) (PublishOutcome, error) {
	body, err := c.commandPayload(versionURN)
	if err != nil {
		return PublishOutcome{}, err
	}

	var lastStatus int
	var lastRegion Region

	for _, region := range tryOrder(hint) {
		status, err := c.publishInRegion(ctx, token, region, projectID, body)
		if err != nil {
			if ctx.Err() != nil {
				return PublishOutcome{}, errors.Wrap(err, "publish cancelled")
			}
			// Network-level exhaustion in this region; the version may still
			// be publishable from another one.
			c.log.Warnw("Publish attempts exhausted in region",
				"region", region,
				"project_id", projectID,
				"error", err)
			lastRegion = region
			continue
		}

		lastStatus = status
		lastRegion = region

		switch {
		case status >= 200 && status < 300:
			c.log.Infow("Publish command accepted",
				"version", versionURN,
				"region", region,
				"http", status)
			return PublishOutcome{Outcome: OutcomeAccepted, HTTPStatus: status, Region: region}, nil

		case status == http.StatusNotFound:
			// Not in this region; fall through to the next one.
			c.log.Debugw("Version not found in region, trying next",
				"version", versionURN,
				"region", region)
			continue

		case status >= 400 && status < 500:
			// Definitive client-side rejection. Trying other regions cannot
			// change the answer.
			c.log.Warnw("Publish command rejected",
				"version", versionURN,
				"region", region,
				"http", status)
			return PublishOutcome{Outcome: OutcomeFailed, HTTPStatus: status, Region: region}, nil

		default:
			// Retries already exhausted on 5xx; move on to the next region.
			continue
		}
	}

	return PublishOutcome{Outcome: OutcomeFailed, HTTPStatus: lastStatus, Region: lastRegion}, nil
}

// publishInRegion POSTs the command to one region with bounded retry.
// Retryable: 5xx, 429, network error. Attempts are capped at MaxRetries+1
// with the backoff delay doubling per attempt. The returned status is the
// first non-retryable one, or the last retryable status once attempts are
// exhausted. A non-nil error means no response was ever obtained.
func (c *Client) publishInRegion(ctx context.Context, token string, region Region, projectID string, body []byte) (int, error) {
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: base delay doubling per attempt
			delay := c.retryBaseDelay << (attempt - 1)
			if err := c.sleep(ctx, delay); err != nil {
				return lastStatus, err
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return lastStatus, errors.Wrap(err, "rate limiter wait cancelled")
			}
		}

		status, _, err := c.postCommandWithIDFallback(ctx, token, region, projectID, body)
		if err != nil {
			lastErr = err
			c.log.Debugw("Publish request failed, will retry",
				"region", region,
				"attempt", attempt+1,
				"error", err)
			continue
		}

		if status >= 500 || status == http.StatusTooManyRequests {
			lastStatus = status
			lastErr = nil
			c.log.Debugw("Publish returned transient status, will retry",
				"region", region,
				"attempt", attempt+1,
				"http", status)
			continue
		}

		return status, nil
	}

	if lastErr != nil {
		return 0, lastErr
	}
	return lastStatus, nil
}

// postCommandWithIDFallback posts to the commands endpoint, retrying once
// with the stripped project-id prefix on a 404 (same upstream inconsistency
// handled by getWithIDFallback).
func (c *Client) postCommandWithIDFallback(ctx context.Context, token string, region Region, projectID string, body []byte) (int, []byte, error) {
	path := fmt.Sprintf("/data/v1/projects/%s/commands", projectID)
	status, respBody, err := c.do(ctx, token, http.MethodPost, region, path, body)
	if err != nil {
		return status, respBody, err
	}
	if status == http.StatusNotFound && HasStrippablePrefix(projectID) {
		stripped := StripProjectPrefix(projectID)
		c.log.Debugw("Retrying command with stripped project id prefix",
			"project_id", projectID,
			"stripped", stripped,
			"region", region)
		path = fmt.Sprintf("/data/v1/projects/%s/commands", stripped)
		return c.do(ctx, token, http.MethodPost, region, path, body)
	}
	return status, respBody, nil
}
