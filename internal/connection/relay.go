package connection

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/oszuidwest/zwfm-voice/internal/util"
)

// DefaultRelayTimeout bounds a relay request when no timeout is configured.
const DefaultRelayTimeout = 10 * time.Second

// RelayResponse is the body returned by a token relay.
type RelayResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// RelayClient fetches connection details from a token relay for the env mode.
type RelayClient struct {
	http *resty.Client
}

// NewRelayClient creates a relay client. A non-empty apiKey is sent as X-API-Key.
func NewRelayClient(timeout time.Duration, apiKey string) *RelayClient {
	if timeout <= 0 {
		timeout = DefaultRelayTimeout
	}
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetHeader("X-API-Key", apiKey)
	}
	return &RelayClient{http: client}
}

// RelayURL appends the correlation id and optional language to base, in that
// order, after any query the base already carries.
func RelayURL(base, correlationID, language string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("relay url %q must be absolute http(s)", base)
	}

	query := "uuid=" + url.QueryEscape(correlationID)
	if language != "" {
		query += "&language=" + url.QueryEscape(language)
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + query
	} else {
		u.RawQuery = query
	}
	return u.String(), nil
}

// Fetch issues exactly one GET to the relay and returns the parsed response.
func (c *RelayClient) Fetch(ctx context.Context, base, correlationID, language string) (RelayResponse, error) {
	target, err := RelayURL(base, correlationID, language)
	if err != nil {
		return RelayResponse{}, &ConfigurationError{Mode: ModeEnv, Field: "relay base_url"}
	}

	resp, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		op := "reach relay"
		if util.IsTimeout(err) {
			op = "reach relay before timeout"
		}
		return RelayResponse{}, &ProvisioningError{Mode: ModeEnv, Op: op, Err: err}
	}
	if !resp.IsSuccess() {
		return RelayResponse{}, &ProvisioningError{
			Mode: ModeEnv,
			Op:   "fetch relay credentials",
			Err:  fmt.Errorf("relay returned %s", resp.Status()),
		}
	}

	var body RelayResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return RelayResponse{}, &ProvisioningError{Mode: ModeEnv, Op: "parse relay response", Err: err}
	}
	if body.Token == "" || body.URL == "" {
		return RelayResponse{}, &ProvisioningError{
			Mode: ModeEnv,
			Op:   "parse relay response",
			Err:  fmt.Errorf("response is missing token or url"),
		}
	}
	return body, nil
}
