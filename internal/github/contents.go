package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"
)

var (
	createStatusErrors = statusErrors{
		// the api answers 422 "sha wasn't supplied" when the path already holds a file
		http.StatusUnprocessableEntity: ErrAlreadyExists,
	}
	// the same table guards deletes, which also carry the expected sha
	updateStatusErrors = statusErrors{
		http.StatusConflict: ErrStaleHash,
	}
)

// ListEntries lists the immediate children of a directory. Listing a file returns just that file.
// The root of an empty repository lists as empty.
func (c *Client) ListEntries(ctx context.Context, dirPath string) ([]RemoteEntry, error) {
	items, err := c.contents(ctx, dirPath)
	if err != nil {
		if errors.Is(err, ErrNotFound) && strings.Trim(dirPath, "/") == "" {
			return nil, nil
		}
		return nil, err
	}

	entries := make([]RemoteEntry, 0, len(items))
	for i := range items {
		entries = append(entries, items[i].entry())
	}
	return entries, nil
}

// contents calls GET /contents/{path}. The api answers with an array for a
// directory and with a single object for anything else.
func (c *Client) contents(ctx context.Context, filePath string) ([]contentItem, error) {
	r := c.client.R().SetContext(ctx)
	if c.branch != "" {
		r.SetQueryParam("ref", c.branch)
	}

	resp, err := r.Get(c.contentsPath(filePath))
	if err := handleAPIError(resp, err, "get contents "+displayPath(filePath), nil); err != nil {
		return nil, err
	}

	body := bytes.TrimSpace(resp.Bytes())
	if len(body) > 0 && body[0] == '[' {
		var items []contentItem
		if err := jsonUnmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode contents %s: %w", displayPath(filePath), err)
		}
		return items, nil
	}

	var item contentItem
	if err := jsonUnmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("decode contents %s: %w", displayPath(filePath), err)
	}
	if item.Path == "" {
		item.Path = strings.Trim(filePath, "/")
	}
	return []contentItem{item}, nil
}

// CreateFile commits a new file and returns its blob sha. ErrAlreadyExists
// means something else created the path first.
func (c *Client) CreateFile(ctx context.Context, filePath string, content []byte) (string, error) {
	return c.putFile(ctx, "create file "+filePath, filePath, &writeFileRequest{
		Message: "Create " + filePath,
		Content: base64.StdEncoding.EncodeToString(content),
		Branch:  c.branch,
	}, createStatusErrors)
}

// UpdateFile overwrites an existing file whose current blob sha is expectedSHA.
// It fails with ErrStaleHash when the file moved on, and ErrNotFound when it vanished.
func (c *Client) UpdateFile(ctx context.Context, filePath string, content []byte, expectedSHA string) (string, error) {
	return c.putFile(ctx, "update file "+filePath, filePath, &writeFileRequest{
		Message: "Update " + filePath,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     expectedSHA,
		Branch:  c.branch,
	}, updateStatusErrors)
}

func (c *Client) putFile(ctx context.Context, op, filePath string, body *writeFileRequest, codes statusErrors) (string, error) {
	var result writeFileResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetSuccessResult(&result).
		Put(c.contentsPath(filePath))

	if err := handleAPIError(resp, err, op, codes); err != nil {
		return "", err
	}

	return result.Content.SHA, nil
}

// DeleteFile removes a file whose current blob sha is expectedSHA. ErrNotFound means it is already gone.
func (c *Client) DeleteFile(ctx context.Context, filePath string, expectedSHA string) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(&deleteFileRequest{
			Message: "Delete " + filePath,
			SHA:     expectedSHA,
			Branch:  c.branch,
		}).
		Delete(c.contentsPath(filePath))

	return handleAPIError(resp, err, "delete file "+filePath, updateStatusErrors)
}

func displayPath(p string) string {
	if p = strings.Trim(p, "/"); p == "" {
		return "/"
	}
	return path.Clean(p)
}
