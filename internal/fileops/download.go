package fileops

import (
	"io"
	"net/http"
	"os"

	"github.com/zynqcloud/filegate/internal/mimeutil"
	"github.com/zynqcloud/filegate/internal/pathgate"
)

// DownloadInfo describes a validated download target, ready to be streamed
// by the HTTP handler.
type DownloadInfo struct {
	IsDir    bool
	RealPath string // file: the file itself; dir: the directory root
	Name     string
	Size     int64  // file: on-disk size; dir: recursive size (already size-checked)
	MimeType string // file only
}

// PrepareDownload validates path, stats it, and enforces maxBytes: for a
// file against its on-disk size, for a directory against the recursive
// walk-sum. It does not open the file; callers stream separately so a
// cancelled request never leaves an open fd held past the handler's return.
func (o *Ops) PrepareDownload(path string, maxBytes int64) (*DownloadInfo, error) {
	res, err := o.gate.Validate(path, pathgate.Options{AllowBasePath: true})
	if err != nil {
		return nil, err
	}

	st, err := os.Stat(res.RealPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errf(http.StatusNotFound, "path not found")
		}
		return nil, errf(http.StatusInternalServerError, "stat: %v", err)
	}

	if !st.IsDir() {
		if st.Size() > maxBytes {
			return nil, errf(http.StatusRequestEntityTooLarge, "file exceeds maximum download size")
		}
		return &DownloadInfo{
			RealPath: res.RealPath,
			Name:     st.Name(),
			Size:     st.Size(),
			MimeType: mimeutil.Guess(res.RealPath),
		}, nil
	}

	size, err := dirSize(res.RealPath)
	if err != nil {
		return nil, errf(http.StatusInternalServerError, "compute directory size: %v", err)
	}
	if size > maxBytes {
		return nil, errf(http.StatusRequestEntityTooLarge, "directory exceeds maximum download size")
	}
	return &DownloadInfo{
		IsDir:    true,
		RealPath: res.RealPath,
		Name:     st.Name(),
		Size:     size,
	}, nil
}

// OpenFile opens a file DownloadInfo's target for streaming. Caller closes.
func OpenFile(realPath string) (io.ReadCloser, error) {
	return os.Open(realPath)
}
