// Package githubtest runs an in-process stand-in for the parts of the GitHub
// REST api and archive host that turnip talks to.
package githubtest

import (
	"archive/zip"
	"bytes"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	slogGin "github.com/samber/slog-gin"
	"github.com/turnip-sync/turnip/internal/config"
	"github.com/turnip-sync/turnip/internal/github"
)

const Token = "test-token"

// Server holds one repository with a single branch
type Server struct {
	*httptest.Server

	Owner         string
	Repo          string
	DefaultBranch string

	mu       sync.Mutex
	files    map[string][]byte
	links    map[string]bool
	writes   []string
	failures map[string]int
}

// New starts a server seeded with files and stops it when the test ends
func New(t testing.TB, owner, repo string, files map[string]string) *Server {
	t.Helper()

	s := &Server{
		Owner:         owner,
		Repo:          repo,
		DefaultBranch: "main",
		files:         make(map[string][]byte, len(files)),
		links:         map[string]bool{},
		failures:      map[string]int{},
	}
	for p, c := range files {
		s.files[p] = []byte(c)
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

// Config returns a configuration pointing both base urls at the server
func (s *Server) Config() *config.Config {
	return &config.Config{
		Token:      Token,
		Username:   s.Owner,
		APIURL:     s.URL,
		ArchiveURL: s.URL,
	}
}

// Files returns a copy of the current branch contents
func (s *Server) Files() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.files))
	for p, c := range s.files {
		out[p] = string(c)
	}
	return out
}

// SetFile changes the branch behind the client's back
func (s *Server) SetFile(p, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = []byte(content)
}

// SetSymlink adds a symlink to target. The archive carries it as a symlink
// entry while listings show it as a plain file holding the target.
func (s *Server) SetSymlink(p, target string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[p] = []byte(target)
	s.links[p] = true
}

// Writes lists every successful "PUT path" and "DELETE path" in order
func (s *Server) Writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.writes...)
}

// Fail makes every request with method to the contents path p answer with status
func (s *Server) Fail(method, p string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+p] = status
}

func (s *Server) routes() http.Handler {
	r := gin.New()
	r.Use(slogGin.NewWithConfig(slog.Default().WithGroup("githubtest"), slogGin.Config{
		DefaultLevel:     slog.LevelDebug,
		ClientErrorLevel: slog.LevelDebug,
		ServerErrorLevel: slog.LevelWarn,
	}))
	r.Use(gin.Recovery())
	r.Use(gzip.Gzip(gzip.BestSpeed))

	r.GET("/*path", s.handleGet)
	r.PUT("/*path", s.authenticated(s.handlePut))
	r.DELETE("/*path", s.authenticated(s.handleDelete))
	return r.Handler()
}

func (s *Server) authenticated(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+Token {
			c.JSON(http.StatusUnauthorized, gin.H{"message": "Bad credentials"})
			return
		}
		next(c)
	}
}

func (s *Server) repoPrefix() string {
	return "/repos/" + s.Owner + "/" + s.Repo
}

func (s *Server) handleGet(c *gin.Context) {
	p := c.Param("path")
	archivePrefix := "/" + s.Owner + "/" + s.Repo + "/archive/refs/heads/"

	switch {
	case strings.HasPrefix(p, archivePrefix) && strings.HasSuffix(p, ".zip"):
		s.serveArchive(c, strings.TrimSuffix(strings.TrimPrefix(p, archivePrefix), ".zip"))
	case p == s.repoPrefix():
		s.authenticated(s.serveRepo)(c)
	case p == s.repoPrefix()+"/contents" || strings.HasPrefix(p, s.repoPrefix()+"/contents/"):
		s.authenticated(s.serveContents)(c)
	default:
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
	}
}

func (s *Server) contentPath(c *gin.Context) string {
	p := strings.TrimPrefix(c.Param("path"), s.repoPrefix()+"/contents")
	return strings.Trim(p, "/")
}

func (s *Server) injected(c *gin.Context, p string) bool {
	s.mu.Lock()
	status, ok := s.failures[c.Request.Method+" "+p]
	s.mu.Unlock()
	if ok {
		c.JSON(status, gin.H{"message": http.StatusText(status)})
	}
	return ok
}

func (s *Server) serveRepo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"full_name":      s.Owner + "/" + s.Repo,
		"default_branch": s.DefaultBranch,
		"private":        true,
		"permissions":    gin.H{"push": true},
	})
}

func (s *Server) serveArchive(c *gin.Context, branch string) {
	if branch != s.DefaultBranch {
		c.Status(http.StatusNotFound)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	root := s.Repo + "-" + branch + "/"
	if _, err := zw.Create(root); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}
	for _, p := range s.sortedPaths() {
		hdr := &zip.FileHeader{Name: root + p, Method: zip.Deflate}
		if s.links[p] {
			hdr.SetMode(os.ModeSymlink | 0o777)
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write(s.files[p])
	}
	if err := zw.Close(); err != nil {
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) serveContents(c *gin.Context) {
	p := s.contentPath(c)
	if ref := c.Query("ref"); ref != "" && ref != s.DefaultBranch {
		c.JSON(http.StatusNotFound, gin.H{"message": "No commit found for the ref " + ref})
		return
	}
	if s.injected(c, p) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if content, ok := s.files[p]; ok && p != "" {
		c.JSON(http.StatusOK, s.item(p, content))
		return
	}

	prefix := ""
	if p != "" {
		prefix = p + "/"
	}

	seen := map[string]bool{}
	items := []gin.H{}
	for _, fp := range s.sortedPaths() {
		if !strings.HasPrefix(fp, prefix) {
			continue
		}
		rest := fp[len(prefix):]
		if first, _, nested := strings.Cut(rest, "/"); nested {
			if !seen[first] {
				seen[first] = true
				items = append(items, gin.H{"type": "dir", "name": first, "path": prefix + first, "sha": "", "size": 0})
			}
			continue
		}
		items = append(items, s.item(fp, s.files[fp]))
	}

	if len(items) == 0 {
		msg := "Not Found"
		if p == "" {
			msg = "This repository is empty."
		}
		c.JSON(http.StatusNotFound, gin.H{"message": msg})
		return
	}
	c.JSON(http.StatusOK, items)
}

type writeRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha"`
	Branch  string `json:"branch"`
}

func (s *Server) handlePut(c *gin.Context) {
	p := s.contentPath(c)
	if s.injected(c, p) {
		return
	}

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Problems parsing JSON"})
		return
	}
	if req.Branch != "" && req.Branch != s.DefaultBranch {
		c.JSON(http.StatusNotFound, gin.H{"message": "Branch " + req.Branch + " not found"})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "content is not valid Base64"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.files[p]
	status := http.StatusOK
	switch {
	case req.SHA == "" && exists:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	case req.SHA == "":
		status = http.StatusCreated
	case !exists:
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
		return
	case github.BlobSHA(current) != req.SHA:
		c.JSON(http.StatusConflict, gin.H{"message": p + " does not match " + req.SHA})
		return
	}

	s.files[p] = content
	s.writes = append(s.writes, "PUT "+p)
	c.JSON(status, gin.H{"content": s.item(p, content)})
}

func (s *Server) handleDelete(c *gin.Context) {
	p := s.contentPath(c)
	if s.injected(c, p) {
		return
	}

	var req writeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SHA == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"message": "Invalid request.\n\n\"sha\" wasn't supplied."})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.files[p]
	switch {
	case !exists:
		c.JSON(http.StatusNotFound, gin.H{"message": "Not Found"})
		return
	case github.BlobSHA(current) != req.SHA:
		c.JSON(http.StatusConflict, gin.H{"message": p + " does not match " + req.SHA})
		return
	}

	delete(s.files, p)
	delete(s.links, p)
	s.writes = append(s.writes, "DELETE "+p)
	c.JSON(http.StatusOK, gin.H{"content": nil, "commit": gin.H{"message": req.Message}})
}

func (s *Server) item(p string, content []byte) gin.H {
	return gin.H{
		"type": "file",
		"name": path.Base(p),
		"path": p,
		"sha":  github.BlobSHA(content),
		"size": len(content),
	}
}

// sortedPaths expects s.mu to be held
func (s *Server) sortedPaths() []string {
	out := make([]string, 0, len(s.files))
	for p := range s.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func init() {
	gin.SetMode(gin.TestMode)
}
