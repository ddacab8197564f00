package handler

import (
	"net/http"
)

// OpenAPI serves a static OpenAPI 3 document describing the route table.
func (h *Handler) OpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(openAPIDocument)) //nolint:errcheck
}

// Digest serves a human-readable markdown summary of the API for operators
// browsing the service directly.
func (h *Handler) Digest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Write([]byte(markdownDigest)) //nolint:errcheck
}

const openAPIDocument = `{
  "openapi": "3.0.3",
  "info": { "title": "filegate", "version": "1.0.0" },
  "paths": {
    "/files/info": { "get": { "summary": "Stat or list a path" } },
    "/files/content": {
      "get": { "summary": "Download a file or directory" },
      "put": { "summary": "Upload a single file" }
    },
    "/files/mkdir": { "post": { "summary": "Create a directory" } },
    "/files/delete": { "delete": { "summary": "Remove a path" } },
    "/files/transfer": { "post": { "summary": "Move or copy a path" } },
    "/files/search": { "get": { "summary": "Glob search under base paths" } },
    "/files/upload/start": { "post": { "summary": "Begin or resume a chunked upload session" } },
    "/files/upload/chunk": { "post": { "summary": "Submit one chunk of an upload session" } },
    "/files/thumbnail/image": { "get": { "summary": "Render an image thumbnail" } },
    "/metrics": { "get": { "summary": "Process counters (uploads, bytes, scans)" } }
  }
}`

const markdownDigest = `# filegate

A sandboxed file-operation proxy. All ` + "`/files/*`" + ` routes require
` + "`Authorization: Bearer <FILE_PROXY_TOKEN>`" + `.

- ` + "`GET /files/info?path=`" + ` - stat or list
- ` + "`GET /files/content?path=`" + ` - download
- ` + "`PUT /files/content`" + ` - upload a single file (headers: X-File-Path, X-File-Name)
- ` + "`POST /files/mkdir`" + ` - create a directory
- ` + "`DELETE /files/delete?path=`" + ` - remove a path
- ` + "`POST /files/transfer`" + ` - move or copy
- ` + "`GET /files/search`" + ` - glob search
- ` + "`POST /files/upload/start`" + ` / ` + "`POST /files/upload/chunk`" + ` - resumable chunked upload
- ` + "`GET /files/thumbnail/image?path=`" + ` - image thumbnail
`
