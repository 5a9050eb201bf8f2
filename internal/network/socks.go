// Package network provides SOCKS5 proxy dial helpers shared by the
// outbound connections (artifact download, SMTP submission).
package network

import (
	"context"
	"fmt"
	"net"

	"golang.org/x/net/proxy"
)

// NewSOCKS5Dialer creates a SOCKS5 proxy dialer.
func NewSOCKS5Dialer(host string, port int) (proxy.Dialer, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer, err := proxy.SOCKS5("tcp", addr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", addr, err)
	}
	return dialer, nil
}

// DialContextFunc returns a context-aware dial function routed through the
// SOCKS5 proxy, or nil when no proxy is configured.
func DialContextFunc(host string, port int) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if host == "" || port <= 0 {
		return nil
	}
	return func(ctx context.Context, netw, addr string) (net.Conn, error) {
		dialer, err := NewSOCKS5Dialer(host, port)
		if err != nil {
			return nil, err
		}
		if cd, ok := dialer.(proxy.ContextDialer); ok {
			return cd.DialContext(ctx, netw, addr)
		}
		return dialer.Dial(netw, addr)
	}
}
