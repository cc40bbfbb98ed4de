package connection

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// cloudHTTPTimeout bounds both the OAuth2 exchange and the token request.
const cloudHTTPTimeout = 15 * time.Second

// CloudCredentials configure the hosted token service.
type CloudCredentials struct {
	TokenURL     string // Endpoint that issues LiveKit participant tokens
	AuthURL      string // OAuth2 token endpoint
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// validate checks that required credential fields are present.
func (c *CloudCredentials) validate() error {
	switch {
	case c.TokenURL == "":
		return fmt.Errorf("token URL is required")
	case c.AuthURL == "":
		return fmt.Errorf("auth URL is required")
	case c.ClientID == "":
		return fmt.Errorf("client ID is required")
	case c.ClientSecret == "":
		return fmt.Errorf("client secret is required")
	}
	return nil
}

// CloudTokenClient issues cloud-mode tokens from a hosted token service,
// authenticating with the OAuth2 client credentials grant.
type CloudTokenClient struct {
	tokenURL string
	http     *resty.Client
}

// NewCloudTokenClient creates a token client for the hosted token service.
func NewCloudTokenClient(creds CloudCredentials) (*CloudTokenClient, error) {
	if err := creds.validate(); err != nil {
		return nil, err
	}

	conf := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.AuthURL,
		Scopes:       creds.Scopes,
	}

	// The oauth2 transport refreshes the access token; the base client bounds each exchange.
	baseClient := &http.Client{Timeout: cmp.Or(creds.Timeout, cloudHTTPTimeout)}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, baseClient)

	client := resty.NewWithClient(conf.Client(ctx)).
		SetTimeout(cmp.Or(creds.Timeout, cloudHTTPTimeout)).
		SetHeader("Accept", "application/json")

	return &CloudTokenClient{tokenURL: creds.TokenURL, http: client}, nil
}

// cloudTokenResponse accepts both token field spellings used by token services.
type cloudTokenResponse struct {
	Token            string `json:"token"`
	ParticipantToken string `json:"participant_token"`
}

// IssueToken requests a new participant token.
func (c *CloudTokenClient) IssueToken(ctx context.Context) (string, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{}).
		Post(c.tokenURL)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("token service returned %s", resp.Status())
	}

	var body cloudTokenResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("invalid token response: %w", err)
	}
	token := cmp.Or(body.Token, body.ParticipantToken)
	if token == "" {
		return "", fmt.Errorf("token response has no token")
	}
	return token, nil
}
