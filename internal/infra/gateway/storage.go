package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/trovehq/trove/internal/usecase"
)

const resolveTimeout = 3 * time.Second

// StorageGateway turns opaque image references into viewable URLs. The
// storage collaborator may expose a signer endpoint; when it does not, refs
// resolve against the public base URL. Signed URLs are cached until close
// to their expiry.
type StorageGateway struct {
	baseURL string
	client  *http.Client
	cache   *cache.Cache
}

var _ usecase.StorageResolver = (*StorageGateway)(nil)

func NewStorageGateway(baseURL string) *StorageGateway {
	return &StorageGateway{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: resolveTimeout},
		cache:   cache.New(10*time.Minute, 15*time.Minute),
	}
}

// ResolveURL maps an image ref to a URL. The core never validates image
// content; an empty ref resolves to an empty URL.
func (g *StorageGateway) ResolveURL(ctx context.Context, ref string) (string, error) {
	if ref == "" {
		return "", nil
	}

	if cached, found := g.cache.Get(ref); found {
		return cached.(string), nil
	}

	resolved, err := g.resolveSigned(ctx, ref)
	if err != nil {
		// Public-bucket fallback keeps payload decoration working when the
		// signer is unreachable.
		resolved = g.baseURL + "/" + url.PathEscape(ref)
	}

	g.cache.Set(ref, resolved, cache.DefaultExpiration)
	return resolved, nil
}

func (g *StorageGateway) resolveSigned(ctx context.Context, ref string) (string, error) {
	endpoint := g.baseURL + "/sign?ref=" + url.QueryEscape(ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to perform request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var payload struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode response: %v", err)
	}
	if payload.URL == "" {
		return "", fmt.Errorf("signer returned empty url")
	}
	return payload.URL, nil
}
