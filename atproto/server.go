// Package atproto provides typed wrappers for the com.atproto lexicons:
// session management, identity resolution, and repository record operations.
//
// Every call takes the xrpc.Client to route through and, where the endpoint
// needs auth, the xrpc.Session to authenticate as.
package atproto

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/skywatch-go/skywatch/xrpc"
)

type createSessionInput struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// sessionResponse covers the createSession and refreshSession bodies.
type sessionResponse struct {
	DID        string       `json:"did"`
	Handle     string       `json:"handle"`
	AccessJwt  string       `json:"accessJwt"`
	RefreshJwt string       `json:"refreshJwt"`
	DIDDoc     *DIDDocument `json:"didDoc,omitempty"`
}

// CreateSession authenticates against the PDS and returns a session for the
// account. identifier is a handle or DID; password should be an app
// password. When the response carries a DID document, the session's service
// endpoint is resolved from it so later calls reach the account's own PDS.
func CreateSession(ctx context.Context, c *xrpc.Client, identifier, password string) (*xrpc.Session, error) {
	if identifier == "" || password == "" {
		return nil, fmt.Errorf("atproto: identifier and password are required")
	}
	var resp sessionResponse
	err := c.Procedure(ctx, nil, "com.atproto.server.createSession", createSessionInput{
		Identifier: identifier,
		Password:   password,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	sess := &xrpc.Session{
		DID:        resp.DID,
		Handle:     resp.Handle,
		AccessJwt:  resp.AccessJwt,
		RefreshJwt: resp.RefreshJwt,
	}
	if resp.DIDDoc != nil {
		sess.ServiceEndpoint = resp.DIDDoc.PDSEndpoint()
	}
	return sess, nil
}

// RefreshSession exchanges the refresh token for a fresh token pair. The
// returned session keeps the previous service endpoint unless the response
// resolves a new one. The old session is not modified.
func RefreshSession(ctx context.Context, c *xrpc.Client, sess *xrpc.Session) (*xrpc.Session, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	// This endpoint authenticates with the refresh token, not the access
	// token.
	var resp sessionResponse
	if err := c.Procedure(ctx, refreshAuth(sess), "com.atproto.server.refreshSession", nil, &resp); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	next := &xrpc.Session{
		DID:             resp.DID,
		Handle:          resp.Handle,
		AccessJwt:       resp.AccessJwt,
		RefreshJwt:      resp.RefreshJwt,
		ServiceEndpoint: sess.ServiceEndpoint,
	}
	if resp.DIDDoc != nil {
		if endpoint := resp.DIDDoc.PDSEndpoint(); endpoint != "" {
			next.ServiceEndpoint = endpoint
		}
	}
	return next, nil
}

// DeleteSession invalidates the session's refresh token on the server.
func DeleteSession(ctx context.Context, c *xrpc.Client, sess *xrpc.Session) error {
	if sess == nil {
		return xrpc.ErrNoSession
	}
	if err := c.Procedure(ctx, refreshAuth(sess), "com.atproto.server.deleteSession", nil, nil); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func refreshAuth(sess *xrpc.Session) *xrpc.Session {
	return &xrpc.Session{
		AccessJwt:       sess.RefreshJwt,
		ServiceEndpoint: sess.ServiceEndpoint,
	}
}

// SessionInfo is the server's view of a session, from getSession.
type SessionInfo struct {
	DID    string `json:"did"`
	Handle string `json:"handle"`
	Email  string `json:"email,omitempty"`
	Active *bool  `json:"active,omitempty"`
}

// GetSession fetches the server's view of the current session.
func GetSession(ctx context.Context, c *xrpc.Client, sess *xrpc.Session) (*SessionInfo, error) {
	if sess == nil {
		return nil, xrpc.ErrNoSession
	}
	var info SessionInfo
	if err := c.Query(ctx, sess, "com.atproto.server.getSession", nil, &info); err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &info, nil
}

// SessionExpiry returns the expiry of the session's access token, read from
// the JWT exp claim. The token signature is not verified; the server stays
// the authority and will reject a forged token anyway.
func SessionExpiry(sess *xrpc.Session) (time.Time, error) {
	if sess == nil || sess.AccessJwt == "" {
		return time.Time{}, xrpc.ErrNoSession
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(sess.AccessJwt, &claims); err != nil {
		return time.Time{}, fmt.Errorf("parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// NeedsRefresh reports whether the session's access token expires within
// leeway. An unreadable token counts as expiring.
func NeedsRefresh(sess *xrpc.Session, leeway time.Duration) bool {
	expiry, err := SessionExpiry(sess)
	if err != nil {
		return true
	}
	return time.Until(expiry) < leeway
}
