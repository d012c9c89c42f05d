// Package profile fetches best-effort display metadata for a user id from
// the Roblox users API. Every failure degrades to the Unknown profile; a
// lookup can never block or fail a ban.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/bloxmod/modbridge/internal/metrics"
	"github.com/bloxmod/modbridge/internal/storage"
	"github.com/rs/zerolog"
)

// rateGateEndpoint keys the sliding-window budget for outbound lookups.
const rateGateEndpoint = "profile-users"

// Profile is display metadata for a user id.
type Profile struct {
	Username    string
	DisplayName string
}

// Unknown is the fallback profile used when a lookup fails.
var Unknown = Profile{Username: "Unknown", DisplayName: "Unknown"}

// Client resolves a user id to display metadata.
type Client interface {
	Fetch(ctx context.Context, userID string) (Profile, error)
}

// ClientConfig holds parameters for constructing an HTTP profile client.
type ClientConfig struct {
	BaseURL      string
	Timeout      time.Duration
	Debug        bool
	RateWindow   time.Duration
	RateMaxCalls int
}

type httpClient struct {
	cfg  ClientConfig
	http *http.Client
	gate storage.Store
	log  zerolog.Logger
}

// NewClient constructs a profile Client talking to the users API.
// gate provides the outbound rate budget; pass the shared store.
func NewClient(cfg ClientConfig, gate storage.Store, log zerolog.Logger) Client {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &httpClient{
		cfg: cfg,
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		gate: gate,
		log:  log,
	}
}

// userResponse is the wire shape of GET /v1/users/{id}.
type userResponse struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
}

func (c *httpClient) Fetch(ctx context.Context, userID string) (Profile, error) {
	if c.cfg.RateMaxCalls > 0 {
		allowed, err := c.gate.APIRateGate(rateGateEndpoint, c.cfg.RateWindow, c.cfg.RateMaxCalls)
		if err != nil {
			metrics.ProfileLookups.WithLabelValues("error").Inc()
			return Unknown, fmt.Errorf("rate gate: %w", err)
		}
		if !allowed {
			metrics.ProfileLookups.WithLabelValues("rate_limited").Inc()
			c.log.Debug().Str("user_id", userID).Msg("profile lookup rate limited")
			return Unknown, fmt.Errorf("profile lookup rate limited")
		}
	}

	reqURL := fmt.Sprintf("%s/v1/users/%s", c.cfg.BaseURL, url.PathEscape(userID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return Unknown, err
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start)
	metrics.ProfileLookupDuration.Observe(elapsed.Seconds())

	if c.cfg.Debug {
		c.log.Debug().Str("url", reqURL).Dur("elapsed", elapsed).Err(err).Msg("profile api request")
	}
	if err != nil {
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return Unknown, fmt.Errorf("profile lookup for %s: %w", userID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return Unknown, fmt.Errorf("profile lookup for %s: status %d", userID, resp.StatusCode)
	}

	var body userResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return Unknown, fmt.Errorf("decode profile for %s: %w", userID, err)
	}
	if body.Name == "" {
		metrics.ProfileLookups.WithLabelValues("error").Inc()
		return Unknown, fmt.Errorf("profile lookup for %s: empty name", userID)
	}

	display := body.DisplayName
	if display == "" {
		display = body.Name
	}
	metrics.ProfileLookups.WithLabelValues("ok").Inc()
	return Profile{Username: body.Name, DisplayName: display}, nil
}
