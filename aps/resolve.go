package aps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/forgepulse/forgepulse/errors"
)

// Resolution is the outcome of mapping an item identifier to a concrete
// file version.
type Resolution struct {
	VersionURN string
	Region     Region
	// Resolved is false when the input already was a version URN and passed
	// through untouched; the region is then just the caller's hint.
	Resolved bool
}

// itemDetailResponse carries the subset of the item detail payload we need:
// the tip relationship pointing at the latest version.
type itemDetailResponse struct {
	Data struct {
		Relationships struct {
			Tip struct {
				Data struct {
					ID string `json:"id"`
				} `json:"data"`
			} `json:"tip"`
		} `json:"relationships"`
	} `json:"data"`
}

// versionListResponse carries the versions list, ordered most-recent-first
// by the upstream API.
type versionListResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// ResolveToVersion maps an item identifier to a concrete version URN.
//
// Version URNs return unchanged with the hint as region. Lineage URNs are
// located by probing the hint region first, then the remaining supported
// regions in fixed order. Within the item's home region the tip relationship
// on the item detail is preferred; the first entry of the versions list is
// the fallback. Failure in both strategies, or an item that exists in no
// region, yields an error wrapping errors.ErrResolution.
func (c *Client) ResolveToVersion(ctx context.Context, token, projectID, item string, hint Region) (Resolution, error) {
	if IsVersionURN(item) {
		return Resolution{VersionURN: item, Region: hint, Resolved: false}, nil
	}

	var lastErr error
	for _, region := range tryOrder(hint) {
		status, body, err := c.getWithIDFallback(ctx, token, region, projectID, func(pid string) string {
			return fmt.Sprintf("/data/v1/projects/%s/items/%s", pid, url.PathEscape(item))
		})
		if err != nil {
			// Network failure against this region; the item may still exist
			// in another one.
			lastErr = err
			continue
		}
		if status == 404 {
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = errors.Newf("item detail returned HTTP %d in region %s", status, region)
			continue
		}

		// The item lives here. Resolve its tip version within this region.
		versionURN, err := c.resolveTip(ctx, token, region, projectID, item, body)
		if err != nil {
			return Resolution{}, errors.Wrapf(errors.ErrResolution,
				"item %s found in region %s but tip resolution failed: %v", item, region, err)
		}

		c.log.Debugw("Resolved item to version",
			"item", item,
			"version", versionURN,
			"region", region)

		return Resolution{VersionURN: versionURN, Region: region, Resolved: true}, nil
	}

	if lastErr != nil {
		return Resolution{}, errors.Wrapf(errors.ErrResolution,
			"item %s not found in any supported region (last error: %v)", item, lastErr)
	}
	return Resolution{}, errors.Wrapf(errors.ErrResolution,
		"item %s not found in any supported region", item)
}

// resolveTip extracts the latest version for an item whose home region is
// known: first from the tip relationship on the item detail, then from the
// first (most recent) entry of the versions list.
func (c *Client) resolveTip(ctx context.Context, token string, region Region, projectID, item string, detailBody []byte) (string, error) {
	var detail itemDetailResponse
	if err := json.Unmarshal(detailBody, &detail); err == nil {
		if tip := detail.Data.Relationships.Tip.Data.ID; tip != "" {
			return tip, nil
		}
	}

	status, body, err := c.getWithIDFallback(ctx, token, region, projectID, func(pid string) string {
		return fmt.Sprintf("/data/v1/projects/%s/items/%s/versions", pid, url.PathEscape(item))
	})
	if err != nil {
		return "", errors.Wrap(err, "versions list request failed")
	}
	if status < 200 || status >= 300 {
		return "", errors.Newf("versions list returned HTTP %d", status)
	}

	var versions versionListResponse
	if err := json.Unmarshal(body, &versions); err != nil {
		return "", errors.Wrap(err, "failed to decode versions list")
	}
	if len(versions.Data) == 0 || versions.Data[0].ID == "" {
		return "", errors.New("versions list is empty")
	}

	return versions.Data[0].ID, nil
}
