// Package ngrok exposes the local status server through an ngrok tunnel so a
// machine behind NAT can still be checked on remotely.
package ngrok

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	ngrok "golang.ngrok.com/ngrok"
	ngrokcfg "golang.ngrok.com/ngrok/config"
)

const closeTimeout = 5 * time.Second

// Options mirrors the ngrok block of wowsup.yaml. An empty Authtoken falls
// back to the NGROK_AUTHTOKEN environment variable; Domain and the basic-auth
// pair are optional.
type Options struct {
	LocalAddr     string
	Authtoken     string
	Domain        string
	BasicAuthUser string
	BasicAuthPass string
}

// Tunnel is one established forward from a public ngrok endpoint to the local
// status server. It lives until Close or the parent context ends.
type Tunnel struct {
	logger    *slog.Logger
	forwarder ngrok.Forwarder
}

// Start dials the ngrok edge and begins forwarding to opts.LocalAddr. The
// returned tunnel's URL is stable for its lifetime; the ngrok session itself
// reconnects on transient network drops.
func Start(ctx context.Context, logger *slog.Logger, opts Options) (*Tunnel, error) {
	if opts.LocalAddr == "" {
		return nil, errors.New("ngrok tunnel needs a local address to forward to")
	}
	backend, err := url.Parse(opts.LocalAddr)
	if err != nil {
		return nil, fmt.Errorf("parsing ngrok local address: %w", err)
	}

	var endpointOpts []ngrokcfg.HTTPEndpointOption
	if opts.Domain != "" {
		endpointOpts = append(endpointOpts, ngrokcfg.WithDomain(opts.Domain))
	}
	if opts.BasicAuthUser != "" && opts.BasicAuthPass != "" {
		// The status page has no auth of its own; never publish it bare
		// when credentials are configured.
		endpointOpts = append(endpointOpts, ngrokcfg.WithBasicAuth(opts.BasicAuthUser, opts.BasicAuthPass))
	}

	var connectOpts []ngrok.ConnectOption
	switch {
	case opts.Authtoken != "":
		connectOpts = append(connectOpts, ngrok.WithAuthtoken(opts.Authtoken))
	case os.Getenv("NGROK_AUTHTOKEN") != "":
		connectOpts = append(connectOpts, ngrok.WithAuthtokenFromEnv())
	}

	fwd, err := ngrok.ListenAndForward(ctx, backend, ngrokcfg.HTTPEndpoint(endpointOpts...), connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("establishing ngrok tunnel: %w", err)
	}

	logger.Info("ngrok tunnel forwarding",
		slog.String("url", fwd.URL()),
		slog.String("backend", opts.LocalAddr),
	)
	return &Tunnel{logger: logger, forwarder: fwd}, nil
}

// URL returns the public endpoint address. Safe on a nil tunnel so callers
// can log it unconditionally.
func (t *Tunnel) URL() string {
	if t == nil || t.forwarder == nil {
		return ""
	}
	return t.forwarder.URL()
}

// Close tears the forward down, waiting a bounded time for the ngrok session
// to acknowledge. Idempotent and nil-safe like URL.
func (t *Tunnel) Close() error {
	if t == nil || t.forwarder == nil {
		return nil
	}
	t.logger.Info("closing ngrok tunnel", slog.String("url", t.forwarder.URL()))

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := t.forwarder.CloseWithContext(ctx); err != nil {
		return fmt.Errorf("closing ngrok tunnel: %w", err)
	}
	return nil
}
