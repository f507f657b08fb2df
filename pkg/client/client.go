// Package client is a thin typed HTTP client for internal/httpapi's
// read-only diagnostics surface: the GET endpoints it exposes, a
// Config{BaseURL, Timeout, Logger, TLS} shape, and TLS transport setup.
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Client talks to a running runtime's diagnostics HTTP surface.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// TLSClientConfig holds TLS configuration for the client.
type TLSClientConfig struct {
	Enabled    bool
	CACert     string
	ClientCert string
	ClientKey  string
	ServerName string
	SkipVerify bool
}

// Config holds client configuration.
type Config struct {
	BaseURL  string
	Timeout  time.Duration
	Logger   *slog.Logger
	TLS      *TLSClientConfig
	Insecure bool
}

// DefaultConfig returns default client configuration.
func DefaultConfig() Config {
	return Config{BaseURL: "http://localhost:8080/api", Timeout: 10 * time.Second}
}

// New creates a diagnostics client.
func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	transport := &http.Transport{}
	if (config.TLS != nil && config.TLS.Enabled) || config.Insecure {
		tlsConfig, err := setupClientTLS(config)
		if err != nil {
			config.Logger.Error("TLS setup failed", "error", err)
		} else {
			transport.TLSClientConfig = tlsConfig
		}
	}

	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout, Transport: transport},
	}
}

// IsReachable reports whether the diagnostics endpoint answers GET /processes
// with any status other than 404 Not Found.
func (c *Client) IsReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/processes", nil)
	if err != nil {
		c.logger.Debug("failed to build reachability request", "error", err)
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Debug("diagnostics endpoint unreachable", "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

// Processes lists every currently-registered process snapshot.
func (c *Client) Processes(ctx context.Context) ([]ProcessSnapshot, error) {
	var out []ProcessSnapshot
	if err := c.getJSON(ctx, c.baseURL+"/processes", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Process fetches a single process's snapshot by id.
func (c *Client) Process(ctx context.Context, id string) (ProcessSnapshot, error) {
	var out ProcessSnapshot
	if err := c.getJSON(ctx, c.baseURL+"/processes/"+id, &out); err != nil {
		return ProcessSnapshot{}, err
	}
	return out, nil
}

// SupervisorChildren fetches the child records for a named supervisor.
func (c *Client) SupervisorChildren(ctx context.Context, supervisorID string) ([]ChildRecord, error) {
	var out []ChildRecord
	if err := c.getJSON(ctx, c.baseURL+"/supervisors/"+supervisorID+"/children", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// RegistryEntries fetches entries from a named registry matching pattern
// (default "*").
func (c *Client) RegistryEntries(ctx context.Context, registryName, pattern string) ([]RegistryMatch, error) {
	url := c.baseURL + "/registries/" + registryName
	if pattern != "" {
		url += "?pattern=" + pattern
	}
	var out []RegistryMatch
	if err := c.getJSON(ctx, url, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func setupClientTLS(config Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{}
	if config.Insecure {
		tlsConfig.InsecureSkipVerify = true
		return tlsConfig, nil
	}
	if config.TLS != nil {
		if config.TLS.SkipVerify {
			tlsConfig.InsecureSkipVerify = true
		}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		if config.TLS.CACert != "" {
			if err := loadCACert(tlsConfig, config.TLS.CACert); err != nil {
				return nil, fmt.Errorf("load CA certificate: %w", err)
			}
		}
		if config.TLS.ClientCert != "" && config.TLS.ClientKey != "" {
			cert, err := tls.LoadX509KeyPair(config.TLS.ClientCert, config.TLS.ClientKey)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
	}
	return tlsConfig, nil
}

func loadCACert(tlsConfig *tls.Config, caCertPath string) error {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return fmt.Errorf("read CA certificate file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return fmt.Errorf("parse CA certificate")
	}
	tlsConfig.RootCAs = pool
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("diagnostics request failed", "error", err, "url", url)
		return fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.handleErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) handleErrorResponse(resp *http.Response) error {
	var errResp ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		c.logger.Error("failed to decode error response", "status", resp.StatusCode)
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	c.logger.Error("diagnostics request failed", "error", errResp.Error, "status", resp.StatusCode)
	return fmt.Errorf("api error: %s", errResp.Error)
}
