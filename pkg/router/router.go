// Package router resolves an inbound Host header to an upstream key
// using the ordered policy the proxy config describes.
package router

import "strings"

// Upstream is the subset of upstream configuration the router needs.
type Upstream struct {
	Key string
	SNI string // also accepts a bare "name" field upstream, both map here
}

// Router holds the configured upstream list in source order.
type Router struct {
	upstreams []Upstream
}

// New builds a Router over upstreams in configuration order; order
// matters for the final "first configured" fallback step.
func New(upstreams []Upstream) *Router {
	return &Router{upstreams: upstreams}
}

// Route resolves host to an upstream key using, in order:
//  1. exact case-insensitive match against an upstream's sni/name;
//  2. wildcard match for an sni starting with "*.";
//  3. suffix match (host equals sni or ends with "."+sni);
//  4. the upstream whose sni/name is literally "default";
//  5. the first configured upstream.
//
// Returns ("", false) only when no upstreams are configured at all.
func (r *Router) Route(host string) (string, bool) {
	if len(r.upstreams) == 0 {
		return "", false
	}
	host = strings.ToLower(strings.TrimSpace(host))

	for _, u := range r.upstreams {
		if strings.ToLower(u.SNI) == host {
			return u.Key, true
		}
	}

	for _, u := range r.upstreams {
		sni := strings.ToLower(u.SNI)
		if suffix, ok := strings.CutPrefix(sni, "*."); ok {
			if host == suffix || strings.HasSuffix(host, "."+suffix) {
				return u.Key, true
			}
		}
	}

	for _, u := range r.upstreams {
		sni := strings.ToLower(u.SNI)
		if host == sni || strings.HasSuffix(host, "."+sni) {
			return u.Key, true
		}
	}

	for _, u := range r.upstreams {
		if strings.ToLower(u.SNI) == "default" {
			return u.Key, true
		}
	}

	return r.upstreams[0].Key, true
}
