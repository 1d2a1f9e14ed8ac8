package github

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

type EntryKind uint8

const (
	KindFile EntryKind = iota
	KindDir
	// KindSymlink and KindSubmodule have no content turnip can read or write
	KindSymlink
	KindSubmodule
)

func (k EntryKind) String() string {
	switch k {
	case KindDir:
		return "dir"
	case KindSymlink:
		return "symlink"
	case KindSubmodule:
		return "submodule"
	default:
		return "file"
	}
}

// RemoteEntry is a node of the remote tree
type RemoteEntry struct {
	Path string    // slash separated, relative to the repository root
	Kind EntryKind
	SHA  string    // blob sha, required to update or delete a file
	Size int64
}

func (e RemoteEntry) IsDir() bool { return e.Kind == KindDir }

func (e RemoteEntry) IsFile() bool { return e.Kind == KindFile }

// Repository is the subset of the repository resource turnip uses
type Repository struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
	Permissions   struct {
		Push bool `json:"push"`
	} `json:"permissions"`
}

// contentItem is one element of a contents API response
type contentItem struct {
	Type string `json:"type"`
	Path string `json:"path"`
	SHA  string `json:"sha"`
	Size int64  `json:"size"`

	SubmoduleGitURL string `json:"submodule_git_url"`
}

func (c *contentItem) entry() RemoteEntry {
	var kind EntryKind
	switch {
	case c.Type == "dir":
		kind = KindDir
	case c.Type == "symlink":
		kind = KindSymlink
	case c.Type == "submodule" || c.SubmoduleGitURL != "":
		kind = KindSubmodule
	default:
		kind = KindFile
	}
	return RemoteEntry{Path: c.Path, Kind: kind, SHA: c.SHA, Size: c.Size}
}

type writeFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

type deleteFileRequest struct {
	Message string `json:"message"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch,omitempty"`
}

type writeFileResponse struct {
	Content contentItem `json:"content"`
}

// BlobSHA returns the git blob hash of content, the same value the API reports as an entry's sha.
func BlobSHA(content []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(content)) + "\x00"))
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}
