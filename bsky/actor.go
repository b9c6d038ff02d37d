package bsky

import (
	"context"
	"fmt"
	"net/url"

	"github.com/skywatch-go/skywatch/xrpc"
)

// maxGetProfilesActors is the batch cap of app.bsky.actor.getProfiles.
const maxGetProfilesActors = 25

// GetProfile fetches the full profile view of an account. actor is a handle
// or DID. The endpoint is public, so sess may be nil.
func GetProfile(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, actor string) (*ProfileViewDetailed, error) {
	if actor == "" {
		return nil, fmt.Errorf("bsky: actor is required")
	}
	params := url.Values{}
	params.Set("actor", actor)
	var out ProfileViewDetailed
	if err := c.Query(ctx, sess, "app.bsky.actor.getProfile", params, &out); err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &out, nil
}

// Profiles is the result of a getProfiles batch.
type Profiles struct {
	Profiles []ProfileViewDetailed `json:"profiles"`
}

// GetProfiles fetches up to 25 profiles in one call.
func GetProfiles(ctx context.Context, c *xrpc.Client, sess *xrpc.Session, actors []string) (*Profiles, error) {
	if len(actors) == 0 {
		return nil, fmt.Errorf("bsky: at least one actor is required")
	}
	if len(actors) > maxGetProfilesActors {
		return nil, fmt.Errorf("bsky: at most %d actors per getProfiles call", maxGetProfilesActors)
	}
	params := url.Values{}
	for _, actor := range actors {
		params.Add("actors", actor)
	}
	var out Profiles
	if err := c.Query(ctx, sess, "app.bsky.actor.getProfiles", params, &out); err != nil {
		return nil, fmt.Errorf("get profiles: %w", err)
	}
	return &out, nil
}
