package github

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// ArchiveURL returns `{archive}/{owner}/{repo}/archive/refs/heads/{branch}.zip`
func (c *Client) ArchiveURL(branch string) string {
	return fmt.Sprintf("%s/%s/%s/archive/refs/heads/%s.zip",
		c.archiveURL, url.PathEscape(c.owner), url.PathEscape(c.repo), escapeSegments(branch))
}

// FetchArchive streams the zip snapshot of branch into dst and returns the number of bytes written.
// A 404 is reported as ErrNotFound, every other non-200 status as ErrDownloadFailed.
// dst is never closed.
func (c *Client) FetchArchive(ctx context.Context, branch string, dst io.Writer) (int64, error) {
	archiveURL := c.ArchiveURL(branch)

	out := &countingWriter{w: dst}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader(headerAccept, "application/zip").
		SetOutput(out).
		Get(archiveURL)
	if err != nil {
		return out.n, fmt.Errorf("http request error: download %s: %w", archiveURL, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return 0, fmt.Errorf("download %s: %w", archiveURL, ErrNotFound)
	default:
		return 0, fmt.Errorf("%w (status: %d)", ErrDownloadFailed, resp.StatusCode)
	}

	return out.n, nil
}

// countingWriter hides any Close method of w, req closes outputs it is handed
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
