package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"os"
)

// TLSConfig configures the transport's TLS behavior for self-hosted or
// internally-CA'd OpenAI-compatible endpoints.
type TLSConfig struct {
	InsecureSkipVerify bool
	CACertificate      string // PEM file path
}

// ConfigureTLS builds an *http.Transport from a TLSConfig.
func ConfigureTLS(config *TLSConfig) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if config == nil {
		return transport, nil
	}

	tlsConfig := &tls.Config{InsecureSkipVerify: config.InsecureSkipVerify}

	if config.CACertificate != "" {
		pem, err := os.ReadFile(config.CACertificate)
		if err != nil {
			return nil, fmt.Errorf("read CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no valid certificates found in %s", config.CACertificate)
		}
		tlsConfig.RootCAs = pool
	}

	transport.TLSClientConfig = tlsConfig
	return transport, nil
}

// WithTLSConfig installs a transport built from ConfigureTLS.
func WithTLSConfig(config *TLSConfig) Option {
	return func(c *Client) {
		transport, err := ConfigureTLS(config)
		if err != nil {
			return
		}
		c.client.Transport = transport
	}
}
