package http

import (
	"crypto/tls"
	nethttp "net/http"
	"os"

	"golang.org/x/net/http2"

	"github.com/gridconnect/gridconnect/internal/config"
	"github.com/gridconnect/gridconnect/internal/logging"
)

// CreateTransferClient creates an HTTP client tuned for chunk uploads and downloads.
//
// It starts from ConfigureHTTPClient so chunk traffic follows the same proxy rules
// as every other API call, then:
//   - enables HTTP/2 unless DISABLE_HTTP2=true or a proxy is active
//   - disables transparent compression (chunk bodies are opaque bytes)
//   - removes the overall client timeout; callers bound each request with a context
func CreateTransferClient(cfg *config.Config, logger *logging.Logger) (*nethttp.Client, error) {
	client, err := ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	tr, ok := client.Transport.(*nethttp.Transport)
	if !ok {
		// NTLM wraps the transport in a negotiator; nothing more to tune.
		client.Timeout = 0
		return client, nil
	}

	tr.DisableCompression = true
	tr.ForceAttemptHTTP2 = true
	_ = http2.ConfigureTransport(tr)

	if os.Getenv("DISABLE_HTTP2") == "true" || (proxyActive(cfg) && os.Getenv("FORCE_HTTP2") != "true") {
		tr.ForceAttemptHTTP2 = false
		tr.TLSNextProto = make(map[string]func(string, *tls.Conn) nethttp.RoundTripper)
	}

	client.Transport = tr
	client.Timeout = 0
	return client, nil
}

// proxyActive reports whether requests will be sent through a proxy.
// Proxies often mishandle HTTP/2 multiplexing, so it is turned off for them.
func proxyActive(cfg *config.Config) bool {
	switch cfg.ProxyMode {
	case "no-proxy", "":
		return false
	case "system":
		return os.Getenv("HTTP_PROXY") != "" || os.Getenv("HTTPS_PROXY") != "" ||
			os.Getenv("http_proxy") != "" || os.Getenv("https_proxy") != ""
	default:
		return cfg.ProxyHost != ""
	}
}
