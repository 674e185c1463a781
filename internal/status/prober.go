package status

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidegate/tidegate/internal/domain"

	"github.com/google/go-github/v57/github"
	"github.com/slack-go/slack"
	"golang.org/x/oauth2"
)

// Prober performs a live connectivity check against one source type. A nil
// error means connected; any error is surfaced as the disconnect reason.
type Prober interface {
	SourceType() string
	Probe(ctx context.Context, tenantID string) error
}

// SlackProber verifies the stored bot token with auth.test.
type SlackProber struct {
	tokens domain.TokenSource
}

func NewSlackProber(tokens domain.TokenSource) *SlackProber {
	return &SlackProber{tokens: tokens}
}

func (p *SlackProber) SourceType() string {
	return "slack-mcp"
}

func (p *SlackProber) Probe(ctx context.Context, tenantID string) error {
	token, err := p.tokens.AccessToken(ctx, tenantID, "slack")
	if err != nil {
		return fmt.Errorf("failed to load slack token: %w", err)
	}

	client := slack.New(token)

	if _, err := client.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}

	return nil
}

// GitHubProber verifies the stored token by fetching the authenticated user.
type GitHubProber struct {
	tokens domain.TokenSource
}

func NewGitHubProber(tokens domain.TokenSource) *GitHubProber {
	return &GitHubProber{tokens: tokens}
}

func (p *GitHubProber) SourceType() string {
	return "github"
}

func (p *GitHubProber) Probe(ctx context.Context, tenantID string) error {
	token, err := p.tokens.AccessToken(ctx, tenantID, "github")
	if err != nil {
		return fmt.Errorf("failed to load github token: %w", err)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	client := github.NewClient(httpClient)

	if _, _, err := client.Users.Get(ctx, ""); err != nil {
		return fmt.Errorf("github user lookup failed: %w", err)
	}

	return nil
}

// GoogleProber verifies the stored token against the tokeninfo endpoint.
type GoogleProber struct {
	tokens       domain.TokenSource
	httpClient   *http.Client
	tokenInfoURL string
}

func NewGoogleProber(tokens domain.TokenSource) *GoogleProber {
	return &GoogleProber{
		tokens:       tokens,
		httpClient:   http.DefaultClient,
		tokenInfoURL: "https://oauth2.googleapis.com/tokeninfo",
	}
}

func (p *GoogleProber) SourceType() string {
	return "google"
}

func (p *GoogleProber) Probe(ctx context.Context, tenantID string) error {
	token, err := p.tokens.AccessToken(ctx, tenantID, "google")
	if err != nil {
		return fmt.Errorf("failed to load google token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.tokenInfoURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build tokeninfo request: %w", err)
	}

	query := req.URL.Query()
	query.Set("access_token", token)
	req.URL.RawQuery = query.Encode()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tokeninfo request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tokeninfo rejected the token with status %d", resp.StatusCode)
	}

	return nil
}
