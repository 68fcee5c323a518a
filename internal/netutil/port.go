package netutil

import (
	"fmt"
	"log/slog"
	"net"
	"strconv"
)

// Listen binds preferred, or with autoFallback the next free port among the
// following `spare` ports on the same host. The listener is returned open so
// the caller learns the final address before anything else can take it.
func Listen(preferred string, spare int, autoFallback bool) (net.Listener, error) {
	ln, err := net.Listen("tcp", preferred)
	if err == nil {
		return ln, nil
	}
	if !autoFallback {
		return nil, fmt.Errorf("bind %s: %w", preferred, err)
	}
	slog.Warn("Preferred bind address unavailable", "addr", preferred, "error", err)

	for _, addr := range Candidates(preferred, spare) {
		ln, err := net.Listen("tcp", addr)
		if err == nil {
			return ln, nil
		}
	}
	return nil, fmt.Errorf("no available bind address near %s", preferred)
}

// Candidates lists the n addresses after addr on the same host.
func Candidates(addr string, n int) []string {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 1; i <= n && port+i <= 65535; i++ {
		out = append(out, net.JoinHostPort(host, strconv.Itoa(port+i)))
	}
	return out
}
