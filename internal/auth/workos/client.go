// Package workos implements auth.Provider against WorkOS User Management.
package workos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aragroup/ara-platform/internal/auth"
)

// Client talks to the WorkOS User Management API.
type Client struct {
	apiKey      string
	clientID    string
	redirectURI string
	opts        *options
	httpClient  *http.Client
}

var _ auth.Provider = (*Client)(nil)

// New creates a Client. apiKey doubles as the client secret for code exchange.
func New(apiKey, clientID, redirectURI string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		return nil, &ValidationError{Field: "apiKey", Message: "required"}
	}
	if clientID == "" {
		return nil, &ValidationError{Field: "clientID", Message: "required"}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	hc := o.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: o.timeout}
	}
	return &Client{
		apiKey:      apiKey,
		clientID:    clientID,
		redirectURI: redirectURI,
		opts:        o,
		httpClient:  hc,
	}, nil
}

// Name implements auth.Provider.
func (c *Client) Name() string { return "workos" }

// AuthorizationURL implements auth.Provider using the hosted AuthKit flow.
func (c *Client) AuthorizationURL(state string) string {
	q := url.Values{}
	q.Set("client_id", c.clientID)
	q.Set("redirect_uri", c.redirectURI)
	q.Set("response_type", "code")
	q.Set("provider", "authkit")
	if state != "" {
		q.Set("state", state)
	}
	return strings.TrimRight(c.opts.baseURL, "/") + "/user_management/authorize?" + q.Encode()
}

type authenticateRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Code         string `json:"code"`
}

type userResponse struct {
	ID                string `json:"id"`
	Email             string `json:"email"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	EmailVerified     bool   `json:"email_verified"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

type authenticateResponse struct {
	User           userResponse `json:"user"`
	OrganizationID string       `json:"organization_id"`
	AccessToken    string       `json:"access_token"`
	RefreshToken   string       `json:"refresh_token"`
}

// AuthenticateWithCode implements auth.Provider.
func (c *Client) AuthenticateWithCode(ctx context.Context, code string) (*auth.Identity, error) {
	if code == "" {
		return nil, &ValidationError{Field: "code", Message: "required"}
	}

	var resp authenticateResponse
	err := c.doRequest(ctx, http.MethodPost, "/user_management/authenticate", authenticateRequest{
		ClientID:     c.clientID,
		ClientSecret: c.apiKey,
		GrantType:    "authorization_code",
		Code:         code,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrAuthenticationFailed, err)
	}
	if resp.User.ID == "" || resp.User.Email == "" {
		return nil, fmt.Errorf("%w: response missing user", auth.ErrAuthenticationFailed)
	}

	return &auth.Identity{
		ExternalID:      resp.User.ID,
		Email:           resp.User.Email,
		FirstName:       resp.User.FirstName,
		LastName:        resp.User.LastName,
		ProfileImageURL: resp.User.ProfilePictureURL,
		EmailVerified:   resp.User.EmailVerified,
		OrganizationID:  resp.OrganizationID,
		AccessToken:     resp.AccessToken,
		RefreshToken:    resp.RefreshToken,
	}, nil
}

// doRequest sends a JSON request and decodes a 2xx JSON response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.opts.baseURL, "/")+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIErrorFromResponse(resp.StatusCode, data, resp.Header.Get("X-Request-ID"))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
