package relay

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/proxy"
)

// dialerFor builds a websocket.Dialer from opts, routing the TCP dial
// through a SOCKS5 proxy when opts.Proxy is set.
func dialerFor(opts *Options) (*websocket.Dialer, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	if opts == nil || opts.Proxy == nil {
		return dialer, nil
	}

	socksDialer, err := proxy.FromURL(opts.Proxy, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build proxy dialer: %w", err)
	}
	contextDialer, ok := socksDialer.(proxy.ContextDialer)
	if !ok {
		// proxy.Direct and the SOCKS5 dialer both implement
		// ContextDialer; this only trips for a custom proxy.Dialer.
		dialer.NetDial = socksDialer.Dial
		return dialer, nil
	}
	dialer.NetDialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return contextDialer.DialContext(ctx, network, addr)
	}
	return dialer, nil
}

// dial opens a websocket connection to relayURL, honoring opts.Proxy
// and the supplied per-dial timeout via ctx.
func dial(ctx context.Context, relayURL string, opts *Options) (*websocket.Conn, error) {
	if _, err := url.Parse(relayURL); err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", relayURL, err)
	}
	dialer, err := dialerFor(opts)
	if err != nil {
		return nil, err
	}
	conn, _, err := dialer.DialContext(ctx, relayURL, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
