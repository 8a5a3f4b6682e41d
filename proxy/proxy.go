// Package proxy is the client for the external proxy provisioning API.
// Leases are an opaque contract: acquire one egress, use it, release it.
// A lease that is never released keeps billing, so the session layer
// treats release-before-reacquire as an invariant.
package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/use-agent/dorkhound/config"
)

// Lease is one allocated egress IP/credential pair.
type Lease struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

// Addr returns the host:port form used for the browser --proxy-server flag.
func (l *Lease) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// Provisioner is the leasing contract the session controller depends on.
type Provisioner interface {
	// Acquire requests a fresh lease. A nil lease with nil error means
	// provisioning is disabled for the run.
	Acquire(ctx context.Context) (*Lease, error)

	// Release returns a lease to the pool.
	Release(ctx context.Context, id string) error

	// Disabled reports whether rotation has been switched off after a
	// provisioning failure.
	Disabled() bool
}

// Client talks JSON to the provisioning API. Safe for concurrent use.
type Client struct {
	base      string
	apiKey    string
	leaseType string
	http      *http.Client
	disabled  atomic.Bool
}

// NewClient builds a provisioning client from config. Returns nil when
// provisioning is not configured; callers treat a nil Provisioner as
// "no rotation available".
func NewClient(cfg config.ProxyConfig) *Client {
	if !cfg.Enabled || cfg.APIBase == "" {
		return nil
	}
	return &Client{
		base:      cfg.APIBase,
		apiKey:    cfg.APIKey,
		leaseType: cfg.LeaseType,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
}

// Validate checks the API is reachable. Failure disables rotation for the
// run rather than aborting startup.
func (c *Client) Validate(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/leases", nil)
	if err != nil {
		return err
	}
	c.auth(req)
	resp, err := c.http.Do(req)
	if err != nil {
		c.disable("provisioning API unreachable", err)
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		err := fmt.Errorf("provisioning API returned HTTP %d", resp.StatusCode)
		c.disable("provisioning API unhealthy", err)
		return err
	}
	return nil
}

// Acquire requests a new lease of the configured type.
func (c *Client) Acquire(ctx context.Context) (*Lease, error) {
	if c.disabled.Load() {
		return nil, nil
	}

	body, _ := json.Marshal(map[string]string{"type": c.leaseType})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/leases", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		c.disable("lease acquisition failed", err)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		err := fmt.Errorf("lease acquisition returned HTTP %d", resp.StatusCode)
		c.disable("lease acquisition rejected", err)
		return nil, err
	}

	var lease Lease
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&lease); err != nil {
		return nil, fmt.Errorf("decode lease: %w", err)
	}
	if lease.ID == "" || lease.Host == "" {
		return nil, fmt.Errorf("provisioning API returned incomplete lease")
	}

	slog.Info("proxy lease acquired", "lease", lease.ID, "type", lease.Type, "addr", lease.Addr())
	return &lease, nil
}

// Release returns the lease. Best effort: a failed release is logged, not
// retried, because the API garbage-collects expired leases server-side.
func (c *Client) Release(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/leases/"+id, nil)
	if err != nil {
		return err
	}
	c.auth(req)

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Warn("proxy lease release failed", "lease", id, "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode != http.StatusNotFound {
		err := fmt.Errorf("lease release returned HTTP %d", resp.StatusCode)
		slog.Warn("proxy lease release rejected", "lease", id, "error", err)
		return err
	}
	slog.Info("proxy lease released", "lease", id)
	return nil
}

// Disabled reports whether rotation was turned off after a failure.
func (c *Client) Disabled() bool {
	return c.disabled.Load()
}

func (c *Client) auth(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

func (c *Client) disable(msg string, err error) {
	if c.disabled.CompareAndSwap(false, true) {
		slog.Warn("proxy rotation disabled for the remainder of the run",
			"reason", msg, "error", err)
	}
}
