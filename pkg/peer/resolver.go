package peer

import (
	"context"
	"fmt"
	"net"
	"net/url"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Resolver pre-resolves preferred peer URLs to their IP form so per-request
// DNS lookups can be bypassed.
// Grounded on the pack's forwarding-resolver example: a small bounded cache
// in front of the standard resolver. A host is looked up on its first cache
// miss and kept until the LRU evicts it; cached entries are never refreshed.
type Resolver struct {
	lookup func(ctx context.Context, host string) ([]string, error)
	cache  *lru.Cache[string, string]
}

// NewResolver builds a Resolver backed by net.DefaultResolver and an LRU
// cache of the given size.
func NewResolver(cacheSize int) (*Resolver, error) {
	if cacheSize <= 0 {
		cacheSize = 256
	}
	cache, err := lru.New[string, string](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("peer: create resolver cache: %w", err)
	}
	return &Resolver{
		lookup: net.DefaultResolver.LookupHost,
		cache:  cache,
	}, nil
}

// ResolveURL rewrites rawURL's host to its first resolved IP address,
// caching the result. Non-host-based or already-IP URLs are returned
// unchanged.
func (r *Resolver) ResolveURL(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL, fmt.Errorf("peer: parse preferred URL %q: %w", rawURL, err)
	}

	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return rawURL, nil // already an IP literal
	}

	if ip, ok := r.cache.Get(host); ok {
		return rewriteHost(u, ip), nil
	}

	addrs, err := r.lookup(ctx, host)
	if err != nil || len(addrs) == 0 {
		return rawURL, fmt.Errorf("peer: resolve %q: %w", host, err)
	}

	r.cache.Add(host, addrs[0])
	return rewriteHost(u, addrs[0]), nil
}

// PreResolveAll resolves every URL, returning a map from original URL to
// resolved form. URLs that fail to resolve are omitted; callers should
// fall back to the original URL for those.
func (r *Resolver) PreResolveAll(ctx context.Context, urls []string) map[string]string {
	out := make(map[string]string, len(urls))
	for _, u := range urls {
		resolved, err := r.ResolveURL(ctx, u)
		if err == nil {
			out[u] = resolved
		}
	}
	return out
}

func rewriteHost(u *url.URL, ip string) string {
	cp := *u
	if port := cp.Port(); port != "" {
		cp.Host = net.JoinHostPort(ip, port)
	} else {
		cp.Host = ip
	}
	return cp.String()
}
