package github

import (
	"context"
	"net/http"
)

var repoStatusErrors = statusErrors{
	http.StatusUnauthorized: ErrRepoAccessDenied,
	http.StatusForbidden:    ErrRepoAccessDenied,
	http.StatusNotFound:     ErrRepoAccessDenied,
}

// Repo fetches the repository resource. It fails with ErrRepoAccessDenied when
// the token cannot see the repository.
func (c *Client) Repo(ctx context.Context) (repo *Repository, err error) {
	resp, err := c.client.R().
		SetContext(ctx).
		SetSuccessResult(&repo).
		Get(c.repoPath())

	if err := handleAPIError(resp, err, "get repository "+c.FullName(), repoStatusErrors); err != nil {
		return nil, err
	}

	return repo, nil
}
