// Package thumbnail renders resized image previews, deferring all format
// decoding, resizing, and re-encoding to github.com/kovidgoyal/imaging (a
// maintained drop-in fork of disintegration/imaging, the library behind
// cs3org-reva's thumbnails service) plus golang.org/x/image's additional
// format decoders. Conditional-request caching (ETag/If-Modified-Since) is
// implemented here.
package thumbnail

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/kovidgoyal/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/zynqcloud/filegate/internal/pathgate"
)

// Error is a thumbnail failure carrying the HTTP status it maps to.
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

// Fit modes.
const (
	FitCover   = "cover"
	FitContain = "contain"
	FitFill    = "fill"
	FitInside  = "inside"
	FitOutside = "outside"
)

// Anchor positions.
const (
	PosCenter    = "center"
	PosTop       = "top"
	PosBottom    = "bottom"
	PosLeft      = "left"
	PosRight     = "right"
	PosEntropy   = "entropy"
	PosAttention = "attention"
)

// Params is the parsed, bounds-checked query for GET /files/thumbnail/image.
type Params struct {
	Width    int
	Height   int
	Fit      string
	Position string
	Format   string
	Quality  int
}

const (
	minDimension     = 1
	maxDimension     = 2000
	defaultDimension = 200
	defaultFit       = FitCover
	defaultPosition  = PosCenter
	defaultFormat    = "webp"
	defaultQuality   = 80
	minQuality       = 1
	maxQuality       = 100
)

// ParseParams applies bounds and defaults, rejecting out-of-range or
// unknown values.
func ParseParams(width, height, fit, position, format, quality string) (Params, error) {
	p := Params{Width: defaultDimension, Height: defaultDimension, Fit: defaultFit, Position: defaultPosition, Format: defaultFormat, Quality: defaultQuality}

	if width != "" {
		v, err := strconv.Atoi(width)
		if err != nil || v < minDimension || v > maxDimension {
			return p, errf(http.StatusBadRequest, "width must be between %d and %d", minDimension, maxDimension)
		}
		p.Width = v
	}
	if height != "" {
		v, err := strconv.Atoi(height)
		if err != nil || v < minDimension || v > maxDimension {
			return p, errf(http.StatusBadRequest, "height must be between %d and %d", minDimension, maxDimension)
		}
		p.Height = v
	}
	if fit != "" {
		switch fit {
		case FitCover, FitContain, FitFill, FitInside, FitOutside:
			p.Fit = fit
		default:
			return p, errf(http.StatusBadRequest, "invalid fit %q", fit)
		}
	}
	if position != "" {
		switch position {
		case PosCenter, PosTop, PosBottom, PosLeft, PosRight, PosEntropy, PosAttention:
			p.Position = position
		default:
			return p, errf(http.StatusBadRequest, "invalid position %q", position)
		}
	}
	if format != "" {
		switch format {
		case "webp", "jpeg", "png", "avif":
			p.Format = format
		default:
			return p, errf(http.StatusBadRequest, "invalid format %q", format)
		}
	}
	if quality != "" {
		v, err := strconv.Atoi(quality)
		if err != nil || v < minQuality || v > maxQuality {
			return p, errf(http.StatusBadRequest, "quality must be between %d and %d", minQuality, maxQuality)
		}
		p.Quality = v
	}
	return p, nil
}

// key returns the deterministic string the ETag is derived from.
func (p Params) key() string {
	return fmt.Sprintf("%dx%d-%s-%s-%s-%d", p.Width, p.Height, p.Fit, p.Position, p.Format, p.Quality)
}

// ETag computes the cache tag: first 16 hex of
// SHA-256(realPath + ":" + mtime_ms + ":" + paramsKey).
func ETag(realPath string, mtimeMs int64, p Params) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", realPath, mtimeMs, p.key())))
	return hex.EncodeToString(sum[:])[:16]
}

// Renderer validates paths and renders thumbnails.
type Renderer struct {
	gate *pathgate.Gate
}

// New creates a Renderer.
func New(gate *pathgate.Gate) *Renderer {
	return &Renderer{gate: gate}
}

// Result is a rendered thumbnail ready to be written to an HTTP response.
type Result struct {
	Data        []byte
	ContentType string
	ETag        string
	ModTime     time.Time
}

// Render validates path, decodes the source image, resizes per p, and
// re-encodes it. It does not itself apply conditional-request short-
// circuiting (If-None-Match/If-Modified-Since); callers check those
// against ETag/ModTime before calling Render, since computing the ETag only
// needs a stat, not a full decode.
func (r *Renderer) Render(path string, p Params) (*Result, error) {
	res, err := r.gate.Validate(path, pathgate.Options{})
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
	if st.IsDir() {
		return nil, errf(http.StatusBadRequest, "cannot thumbnail a directory")
	}

	src, err := imaging.Open(res.RealPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errf(http.StatusBadRequest, "decode image: %v", err)
	}

	anchor := anchorFor(p.Position)
	out := applyFit(src, p, anchor)

	var buf bytes.Buffer
	format, opts, encodedType := encoderFor(p)
	if err := imaging.Encode(&buf, out, format, opts...); err != nil {
		return nil, errf(http.StatusInternalServerError, "encode thumbnail: %v", err)
	}

	return &Result{
		Data:        buf.Bytes(),
		ContentType: encodedType,
		ETag:        ETag(res.RealPath, st.ModTime().UnixMilli(), p),
		ModTime:     st.ModTime(),
	}, nil
}

// StatForETag stats path (without decoding it) so the handler can compute
// the conditional-request ETag before deciding whether to render at all.
func (r *Renderer) StatForETag(path string) (realPath string, mtime time.Time, err error) {
	res, verr := r.gate.Validate(path, pathgate.Options{})
	if verr != nil {
		return "", time.Time{}, verr
	}
	st, serr := os.Stat(res.RealPath)
	if serr != nil {
		if os.IsNotExist(serr) {
			return "", time.Time{}, errf(http.StatusNotFound, "path not found")
		}
		return "", time.Time{}, errf(http.StatusInternalServerError, "stat: %v", serr)
	}
	return res.RealPath, st.ModTime(), nil
}

func anchorFor(position string) imaging.Anchor {
	switch position {
	case PosTop:
		return imaging.Top
	case PosBottom:
		return imaging.Bottom
	case PosLeft:
		return imaging.Left
	case PosRight:
		return imaging.Right
	default:
		// entropy/attention have no direct anchor equivalent in imaging's
		// fixed nine-point anchor model; center is the closest approximation.
		return imaging.Center
	}
}

func applyFit(src image.Image, p Params, anchor imaging.Anchor) image.Image {
	switch p.Fit {
	case FitFill:
		return imaging.Resize(src, p.Width, p.Height, imaging.Lanczos)
	case FitContain, FitInside:
		return imaging.Fit(src, p.Width, p.Height, imaging.Lanczos)
	case FitOutside:
		return imaging.Resize(src, p.Width, 0, imaging.Lanczos)
	default: // cover
		return imaging.Fill(src, p.Width, p.Height, anchor, imaging.Lanczos)
	}
}

// encoderFor maps the requested output format onto the library's encoder
// set. webp and avif are accepted request params but have no pure-Go encoder
// (x/image ships only a webp decoder), so both are served as JPEG at the
// requested quality; encodedType reports the format actually produced so the
// Content-Type header always matches the bytes.
func encoderFor(p Params) (format imaging.Format, opts []imaging.EncodeOption, encodedType string) {
	switch p.Format {
	case "png":
		return imaging.PNG, nil, "image/png"
	default: // jpeg, webp, avif
		return imaging.JPEG, []imaging.EncodeOption{imaging.JPEGQuality(p.Quality)}, "image/jpeg"
	}
}
