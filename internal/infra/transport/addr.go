package transport

import (
	"fmt"
	"strings"
)

// HostPort renders host:port, bracketing the host when it is a numeric
// IPv6 literal (contains a colon).
func HostPort(host string, port int) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return fmt.Sprintf("[%s]:%d", host, port)
	}
	return fmt.Sprintf("%s:%d", host, port)
}

// URL renders the websocket endpoint for a server.
func URL(host string, port int) string {
	return "ws://" + HostPort(host, port)
}
