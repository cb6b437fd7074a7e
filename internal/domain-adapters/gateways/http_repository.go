package gateways

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/ochairo/instrumentation-verifier/internal/domain/entities"
)

// maxArtifactSize bounds a single download
const maxArtifactSize = 512 * 1024 * 1024

// HTTPRepositoryConfig configures a remote Maven repository
type HTTPRepositoryConfig struct {
	Name      string
	URL       string
	Username  string
	Password  string
	UserAgent string
	Timeout   time.Duration
	// Transport overrides the default HTTP/2-enabled transport
	Transport http.RoundTripper
}

// HTTPRepository reads a Maven repository over HTTP(S)
type HTTPRepository struct {
	name      string
	baseURL   string
	username  string
	password  string
	userAgent string
	client    *http.Client
}

// NewHTTPTransport returns a pooled transport negotiating HTTP/2 over TLS
func NewHTTPTransport() (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 16
	transport.ResponseHeaderTimeout = 30 * time.Second
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("failed to configure HTTP/2 transport: %w", err)
	}
	return transport, nil
}

// NewHTTPRepository creates a repository rooted at cfg.URL
func NewHTTPRepository(cfg HTTPRepositoryConfig) (*HTTPRepository, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("repository %q has no url", cfg.Name)
	}
	transport := cfg.Transport
	if transport == nil {
		t, err := NewHTTPTransport()
		if err != nil {
			return nil, err
		}
		transport = t
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "instrumentation-verifier/1.0"
	}
	name := cfg.Name
	if name == "" {
		name = cfg.URL
	}

	return &HTTPRepository{
		name:      name,
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: userAgent,
		client:    &http.Client{Transport: transport, Timeout: timeout},
	}, nil
}

// Name returns the configured repository name
func (r *HTTPRepository) Name() string { return r.name }

// Remote is always true for HTTP repositories
func (r *HTTPRepository) Remote() bool { return true }

// Get downloads baseURL/relPath
func (r *HTTPRepository) Get(ctx context.Context, relPath string) ([]byte, error) {
	p, err := cleanRelPath(relPath)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+p, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", r.userAgent)
	if r.username != "" {
		req.SetBasicAuth(r.username, r.password)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Repository: r.name, Err: err}
	}
	//nolint:errcheck // Defer close
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, notFound(r.name, p)
	case isRetryableStatus(resp.StatusCode):
		return nil, &TransientError{Repository: r.name, Err: fmt.Errorf("GET %s returned status %d", p, resp.StatusCode)}
	default:
		return nil, fmt.Errorf("%w: %s: GET %s returned status %d", entities.ErrRepositoryUnavailable, r.name, p, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactSize+1))
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, &TransientError{Repository: r.name, Err: fmt.Errorf("failed to read %s: %w", p, err)}
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	if len(data) > maxArtifactSize {
		return nil, fmt.Errorf("%s: %s exceeds %d bytes", r.name, p, maxArtifactSize)
	}
	return data, nil
}
