package secheaders

import (
	"net"
	"net/http"
	"strings"
)

// forwardingHeaders carry client addresses added by proxies in front of the server.
var forwardingHeaders = []string{"X-Forwarded-For", "X-Real-IP", "Client-IP"}

// IsLocal reports whether the configured environment is a local one, or the request comes from a loopback address.
// A request only counts as local when the remote address and every address in its forwarding headers are loopback,
// so traffic relayed by a local reverse proxy is not mistaken for local development.
// The request may be nil.
func (c Config) IsLocal(r *http.Request) bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	if len(env) > 0 {
		for _, local := range c.localEnvironments() {
			if env == strings.ToLower(local) {
				return true
			}
		}
	}
	if r == nil {
		return false
	}
	if !isLoopback(r.RemoteAddr) {
		return false
	}
	for _, name := range forwardingHeaders {
		for _, val := range r.Header.Values(name) {
			for _, hop := range strings.Split(val, ",") {
				hop = strings.TrimSpace(hop)
				if len(hop) == 0 {
					continue
				}
				if !isLoopback(hop) {
					return false
				}
			}
		}
	}
	return true
}

// isLoopback accepts a host, with or without a port.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// IsPanel reports whether the request targets one of the configured panel or API paths.
// The request may be nil.
func (c Config) IsPanel(r *http.Request) bool {
	if r == nil || r.URL == nil {
		return false
	}
	path := r.URL.Path
	for _, panel := range c.panelPaths() {
		panel = strings.TrimRight(panel, "/")
		if len(panel) == 0 {
			continue
		}
		if path == panel || strings.HasPrefix(path, panel+"/") {
			return true
		}
	}
	return false
}

// ResolveEnabled decides whether headers should be sent for the request, according to [Config.Enabled].
func (c Config) ResolveEnabled(r *http.Request) bool {
	switch c.Enabled {
	case EnabledOff:
		return false
	case EnabledForce:
		return true
	case EnabledOn:
		return !c.IsPanel(r)
	default:
		return !c.IsPanel(r) && !c.IsLocal(r)
	}
}
