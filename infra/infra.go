// Package infra drives the provisioning and traffic-routing control plane
// over HTTP. Both APIs are opaque to the warming subsystem: success or
// failure is all that matters here.
package infra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/unkn0wn-root/warmcache"
)

type Client struct {
	base  string
	token string
	http  *http.Client
}

var (
	_ warmcache.Provisioner = (*Client)(nil)
	_ warmcache.Router      = (*Client)(nil)
)

type Config struct {
	BaseURL string
	Token   string        // bearer token; optional
	Timeout time.Duration // 0 => 30s
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("infra: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) DeployEnvironment(ctx context.Context) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/environments", nil, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", errors.New("infra: deploy returned no environment id")
	}
	return out.ID, nil
}

func (c *Client) TeardownEnvironment(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("infra: environment id is required")
	}
	return c.do(ctx, http.MethodDelete, "/environments/"+id, nil, nil)
}

func (c *Client) SwitchTraffic(ctx context.Context, fromID, toID string) error {
	if toID == "" {
		return errors.New("infra: target environment id is required")
	}
	body := map[string]string{"from": fromID, "to": toID}
	return c.do(ctx, http.MethodPost, "/routes/switch", body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("infra: %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
