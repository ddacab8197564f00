// Package search expands glob patterns over validated base-path roots,
// with caps on pattern length, recursive-wildcard count, and result count.
package search

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/zynqcloud/filegate/internal/mimeutil"
	"github.com/zynqcloud/filegate/internal/model"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// Error is a search failure carrying the HTTP status it maps to.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusCode lets the HTTP layer map any component error uniformly.
func (e *Error) StatusCode() int { return e.Status }

func errf(status int, format string, args ...any) *Error {
	return &Error{Status: status, Message: fmt.Sprintf(format, args...)}
}

const maxPatternLength = 500

// Searcher expands glob patterns under a set of gate-validated bases.
type Searcher struct {
	gate             *pathgate.Gate
	maxRecursiveStar int
}

// New creates a Searcher. maxRecursiveWildcards caps the number of "**"
// occurrences permitted in a pattern.
func New(gate *pathgate.Gate, maxRecursiveWildcards int) *Searcher {
	return &Searcher{gate: gate, maxRecursiveStar: maxRecursiveWildcards}
}

// Request is the parsed query for GET /files/search.
type Request struct {
	BasePaths   []string
	Pattern     string
	Limit       int
	Files       bool
	Directories bool
	ShowHidden  bool
}

// Response is returned by Search. HasMore is set when any base's matches
// were truncated at the per-base limit.
type Response struct {
	Results    []model.FileInfo `json:"results"`
	TotalFiles int              `json:"totalFiles"`
	HasMore    bool             `json:"hasMore"`
}

// Search expands req.Pattern under every requested base, in parallel,
// capping each base's contribution at req.Limit and setting HasMore when
// truncated.
func (s *Searcher) Search(req Request) (*Response, error) {
	if !req.Files && !req.Directories {
		return nil, errf(http.StatusBadRequest, "at least one of files or directories must be true")
	}
	if len(req.Pattern) > maxPatternLength {
		return nil, errf(http.StatusBadRequest, "pattern exceeds maximum length of %d", maxPatternLength)
	}
	if strings.Count(req.Pattern, "**") > s.maxRecursiveStar {
		return nil, errf(http.StatusBadRequest, "pattern exceeds maximum of %d recursive wildcards", s.maxRecursiveStar)
	}
	if req.Limit <= 0 {
		req.Limit = 1
	}

	type baseResult struct {
		items   []model.FileInfo
		hasMore bool
		err     error
	}

	results := make([]baseResult, len(req.BasePaths))
	var wg sync.WaitGroup
	for i, base := range req.BasePaths {
		wg.Add(1)
		go func(i int, base string) {
			defer wg.Done()
			items, hasMore, err := s.searchBase(base, req)
			results[i] = baseResult{items: items, hasMore: hasMore, err: err}
		}(i, base)
	}
	wg.Wait()

	resp := &Response{Results: []model.FileInfo{}}
	for _, r := range results {
		if r.err != nil {
			return nil, r.err
		}
		resp.Results = append(resp.Results, r.items...)
		resp.HasMore = resp.HasMore || r.hasMore
	}
	resp.TotalFiles = len(resp.Results)
	return resp, nil
}

func (s *Searcher) searchBase(base string, req Request) ([]model.FileInfo, bool, error) {
	res, err := s.gate.Validate(base, pathgate.Options{AllowBasePath: true})
	if err != nil {
		return nil, false, err
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		return nil, false, errf(http.StatusNotFound, "base path not found")
	}
	if !st.IsDir() {
		return nil, false, errf(http.StatusBadRequest, "base path is not a directory")
	}

	matches, err := doublestar.Glob(os.DirFS(res.RealPath), req.Pattern)
	if err != nil {
		return nil, false, errf(http.StatusBadRequest, "invalid pattern: %v", err)
	}

	var out []model.FileInfo
	for _, rel := range matches {
		if len(out) >= req.Limit {
			return out, true, nil
		}
		name := filepath.Base(rel)
		if !req.ShowHidden && strings.HasPrefix(name, ".") {
			continue
		}

		entryPath := filepath.Join(res.RealPath, rel)
		info, err := os.Lstat(entryPath)
		if err != nil {
			continue // stat failure: skip silently
		}

		if info.IsDir() && !req.Directories {
			continue
		}
		if !info.IsDir() && !req.Files {
			continue
		}

		fi := model.FileInfo{
			Name:     name,
			Path:     entryPath,
			Size:     info.Size(),
			Mtime:    info.ModTime().Format(time.RFC3339),
			IsHidden: strings.HasPrefix(name, "."),
		}
		if info.IsDir() {
			fi.Type = model.TypeDirectory
			fi.Size = 0
		} else {
			fi.Type = model.TypeFile
			fi.MimeType = mimeutil.Guess(entryPath)
		}
		out = append(out, fi)
	}

	return out, false, nil
}
