package github

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/imroc/req/v3"
	"github.com/turnip-sync/turnip/internal/config"
	"github.com/turnip-sync/turnip/internal/version"
)

const (
	headerAccept     = "Accept"
	headerAPIVersion = "X-GitHub-Api-Version"
	mediaTypeJSON    = "application/vnd.github+json"
	apiVersion       = "2022-11-28"
)

// Client talks to one repository. Every call is a single request; nothing is retried.
type Client struct {
	client     *req.Client
	archiveURL string
	owner      string
	repo       string
	branch     string
}

func New(cfg *config.Config, owner, repo string) *Client {
	client := req.C().
		SetBaseURL(cfg.APIURL).
		SetUserAgent(version.UserAgent()).
		SetCommonBearerAuthToken(cfg.Token).
		SetCommonHeader(headerAccept, mediaTypeJSON).
		SetCommonHeader(headerAPIVersion, apiVersion).
		SetJsonMarshal(jsonMarshal).
		SetJsonUnmarshal(jsonUnmarshal)

	return &Client{
		client:     client,
		archiveURL: cfg.ArchiveURL,
		owner:      owner,
		repo:       repo,
		branch:     cfg.Branch,
	}
}

// FullName returns `owner/repo`
func (c *Client) FullName() string {
	return c.owner + "/" + c.repo
}

func (c *Client) Branch() string {
	return c.branch
}

// UseBranch sets the branch that reads and writes target
func (c *Client) UseBranch(branch string) {
	c.branch = branch
}

func (c *Client) repoPath() string {
	return fmt.Sprintf("/repos/%s/%s", url.PathEscape(c.owner), url.PathEscape(c.repo))
}

func (c *Client) contentsPath(path string) string {
	p := c.repoPath() + "/contents"
	if path = strings.Trim(path, "/"); path != "" {
		p += "/" + escapeSegments(path)
	}
	return p
}

// escapeSegments escapes each element of a slash separated path on its own
func escapeSegments(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
