package site

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
)

const bindHost = "127.0.0.1"

// ListenLocal binds the studio to the loopback interface only. Port 0
// picks a random free port.
func ListenLocal(port int) (net.Listener, string, error) {
	if port < 0 || port > 65535 {
		return nil, "", fmt.Errorf("invalid --port %d (must be 0..65535)", port)
	}

	addr := net.JoinHostPort(bindHost, strconv.Itoa(port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			return nil, "", fmt.Errorf("port %d is already in use", port)
		}
		return nil, "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	actualPort := listener.Addr().(*net.TCPAddr).Port
	baseURL := fmt.Sprintf("http://%s:%d", bindHost, actualPort)
	return listener, baseURL, nil
}

// RedirectToCanonicalHost sends UI GET/HEAD requests arriving via
// http://localhost:<port> to http://127.0.0.1:<port> so the page, its
// media URLs, and the Origin checks all agree on one host.
//
// canonicalHostPort must be in the form "127.0.0.1:<port>".
func RedirectToCanonicalHost(canonicalHostPort string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			if hostWithoutPort(r.Host) == "localhost" {
				target := "http://" + canonicalHostPort + r.URL.RequestURI()
				http.Redirect(w, r, target, http.StatusFound)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func hostWithoutPort(hostport string) string {
	if hostport == "" {
		return ""
	}
	if strings.Contains(hostport, ":") {
		host, _, err := net.SplitHostPort(hostport)
		if err == nil {
			return host
		}
	}
	return hostport
}
