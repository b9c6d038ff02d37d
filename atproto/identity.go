package atproto

import (
	"context"
	"fmt"
	"net/url"

	"github.com/skywatch-go/skywatch/xrpc"
)

// DIDDocument is the subset of a DID document the client needs for service
// routing.
type DIDDocument struct {
	Context     []string     `json:"@context,omitempty"`
	ID          string       `json:"id"`
	AlsoKnownAs []string     `json:"alsoKnownAs,omitempty"`
	Service     []DIDService `json:"service,omitempty"`
}

// DIDService is one service declaration inside a DID document.
type DIDService struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// PDSEndpoint returns the personal data server base URL declared by the
// document, or "" when it declares none.
func (d *DIDDocument) PDSEndpoint() string {
	for _, svc := range d.Service {
		if svc.ID == "#atproto_pds" || svc.Type == "AtprotoPersonalDataServer" {
			return svc.ServiceEndpoint
		}
	}
	return ""
}

// ResolveHandle resolves a handle to its DID. The endpoint is public, so no
// session is needed.
func ResolveHandle(ctx context.Context, c *xrpc.Client, handle string) (string, error) {
	if handle == "" {
		return "", fmt.Errorf("atproto: handle is required")
	}
	params := url.Values{}
	params.Set("handle", handle)
	var resp struct {
		DID string `json:"did"`
	}
	if err := c.Query(ctx, nil, "com.atproto.identity.resolveHandle", params, &resp); err != nil {
		return "", fmt.Errorf("resolve handle %q: %w", handle, err)
	}
	return resp.DID, nil
}
