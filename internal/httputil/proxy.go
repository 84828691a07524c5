package httputil

import (
	"net/url"
	"strings"
)

// Proxy is one CORS-proxy prefix. Some proxies expect the target URL as an
// escaped query parameter, some as a bare concatenation.
type Proxy struct {
	Prefix      string
	QueryEscape bool
}

// Rewrite returns the target URL routed through the proxy.
func (p Proxy) Rewrite(target string) string {
	if p.QueryEscape {
		return p.Prefix + url.QueryEscape(target)
	}
	return p.Prefix + target
}

// ProxyList is an ordered sequence of proxies, tried front to back.
type ProxyList []Proxy

// ParseProxyList parses a comma-separated list of proxy prefixes. Prefixes
// ending in "?url=" or "=" are treated as query-escaping proxies.
func ParseProxyList(s string) ProxyList {
	var out ProxyList
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, Proxy{
			Prefix:      p,
			QueryEscape: strings.HasSuffix(p, "="),
		})
	}
	return out
}

// DefaultProxies is the fallthrough order used when no list is configured:
// any local proxies first, then the public relays.
func DefaultProxies() ProxyList {
	return ProxyList{
		{Prefix: "http://localhost:8080/proxy?url=", QueryEscape: true},
		{Prefix: "https://proxy.researchverse.org/fetch?url=", QueryEscape: true},
		{Prefix: "https://corsproxy.io/?", QueryEscape: false},
	}
}
