package sandbox

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/moduleforge/builder/internal/policy"
)

// AllowlistedDestination reports whether host is permitted to be reached
// under profile's network mode. NetworkNone permits nothing; NetworkAllowlist
// permits exact matches or subdomains of an entry in profile.Allowlist.
//
// This is the host-side half of the dual-layer enforcement from spec §4.5:
// the container itself runs with no network when NetworkNone, or with an
// egress proxy consulting this same function when NetworkAllowlist. Traffic
// that bypasses the proxy is not checked by this function (see EgressProxy).
func AllowlistedDestination(rawURL string, profile policy.Profile) bool {
	if profile.Network == policy.NetworkNone {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}
	for _, allowed := range profile.Allowlist {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// EgressProxy is the container-side half of NetworkAllowlist enforcement:
// DockerRunner points HTTP_PROXY/HTTPS_PROXY at it and it refuses to
// CONNECT or forward to anything AllowlistedDestination doesn't clear. It
// only sees traffic from HTTP(S) clients that honor the proxy environment
// variables — a generated adapter opening a raw socket bypasses it
// entirely, a limitation recorded in DESIGN.md rather than silently
// assumed away.
type EgressProxy struct {
	profile policy.Profile
	ln      net.Listener
	srv     *http.Server
}

// StartEgressProxy binds an ephemeral listener on all interfaces so a
// sandbox container on the default bridge network can reach it via
// host.docker.internal.
func StartEgressProxy(profile policy.Profile) (*EgressProxy, error) {
	ln, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		return nil, fmt.Errorf("listen egress proxy: %w", err)
	}
	p := &EgressProxy{profile: profile, ln: ln}
	p.srv = &http.Server{Handler: http.HandlerFunc(p.handle)}
	go func() { _ = p.srv.Serve(ln) }()
	return p, nil
}

// Port returns the listener's TCP port for building the container's
// HTTP_PROXY/HTTPS_PROXY values.
func (p *EgressProxy) Port() string {
	_, port, _ := net.SplitHostPort(p.ln.Addr().String())
	return port
}

// Stop shuts the proxy down; safe to call via defer even if Serve never
// accepted a connection.
func (p *EgressProxy) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.srv.Shutdown(ctx)
}

func (p *EgressProxy) handle(w http.ResponseWriter, r *http.Request) {
	target := r.Host
	if r.Method == http.MethodConnect {
		target = r.URL.Host
	}
	if !AllowlistedDestination("https://"+target, p.profile) {
		http.Error(w, fmt.Sprintf("destination %q not allowlisted", target), http.StatusForbidden)
		return
	}
	if r.Method == http.MethodConnect {
		p.tunnel(w, target)
		return
	}
	p.forward(w, r)
}

func (p *EgressProxy) tunnel(w http.ResponseWriter, target string) {
	dest, err := net.DialTimeout("tcp", target, 5*time.Second)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer dest.Close()
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "hijack unsupported", http.StatusInternalServerError)
		return
	}
	client, _, err := hj.Hijack()
	if err != nil {
		return
	}
	defer client.Close()
	_, _ = client.Write([]byte("HTTP/1.1 200 Connection Established\r\n\r\n"))
	go io.Copy(dest, client) //nolint:errcheck
	_, _ = io.Copy(client, dest)
}

func (p *EgressProxy) forward(w http.ResponseWriter, r *http.Request) {
	outReq := r.Clone(r.Context())
	outReq.RequestURI = ""
	resp, err := http.DefaultTransport.RoundTrip(outReq)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}
