// Package handlers implements the HTTP endpoints that expose configured
// disks: streaming reads, downloads, listings and URL generation.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/core/log"
	"github.com/ebogdum/diskfs/internal/pathutil"
)

// MaxTemporaryURLExpiry caps the lifetime of generated temporary URLs.
const MaxTemporaryURLExpiry = 7 * 24 * time.Hour

// DiskResolver returns the driver behind a disk name. *core.Manager
// satisfies it.
type DiskResolver interface {
	Disk(name string) (*core.Driver, error)
}

// ListingResponse is the body of a directory listing.
type ListingResponse struct {
	Disk        string   `json:"disk"`
	Path        string   `json:"path"`
	Recursive   bool     `json:"recursive"`
	Files       []string `json:"files"`
	Directories []string `json:"directories"`
}

// URLResponse is the body returned by the URL endpoint.
type URLResponse struct {
	URL     string     `json:"url"`
	Expires *time.Time `json:"expires,omitempty"`
}

// requestPath returns the normalized wildcard path of r.
func requestPath(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return "", fmt.Errorf("%w: %v", pathutil.ErrPathTraversal, err)
		}
		raw = unescaped
	}
	return pathutil.Normalize(raw)
}

// requestTarget resolves the {disk} parameter and the wildcard path.
func requestTarget(r *http.Request, disks DiskResolver) (*core.Driver, string, error) {
	p, err := requestPath(r)
	if err != nil {
		return nil, "", err
	}

	driver, err := disks.Disk(chi.URLParam(r, "disk"))
	if err != nil {
		return nil, "", err
	}
	return driver, p, nil
}

func serve(disks DiskResolver, disposition string, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, p, err := requestTarget(r, disks)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}
		if p == "" {
			SendErrorResponse(w, logger, errors.New("a file path is required"), http.StatusBadRequest)
			return
		}

		err = driver.Response(r.Context(), w, p, r.URL.Query().Get("name"), nil, disposition)
		if err == nil {
			logger.Debug("File served",
				zap.String("disk", driver.Config().Name()),
				log.Path("path", p),
				zap.String("disposition", disposition))
			return
		}

		// the body has started once the status line went out
		if ww, ok := w.(interface{ Status() int }); ok && ww.Status() != 0 {
			return
		}
		SendErrorResponse(w, logger, err, http.StatusInternalServerError)
	}
}

// V1ServeFile handles GET /v1/disks/{disk}/files/* by streaming the file
// inline.
func V1ServeFile(disks DiskResolver, logger *zap.Logger) http.HandlerFunc {
	return serve(disks, core.DispositionInline, logger)
}

// V1DownloadFile handles GET /v1/disks/{disk}/download/* by streaming the
// file as an attachment. The optional name query parameter overrides the
// suggested file name.
func V1DownloadFile(disks DiskResolver, logger *zap.Logger) http.HandlerFunc {
	return serve(disks, core.DispositionAttachment, logger)
}

// V1ListDirectory handles GET /v1/disks/{disk}/list/*. recursive=true
// walks the whole subtree.
func V1ListDirectory(disks DiskResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, p, err := requestTarget(r, disks)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))

		var files, directories []string
		if recursive {
			files, err = driver.AllFiles(r.Context(), p)
			if err == nil {
				directories, err = driver.AllDirectories(r.Context(), p)
			}
		} else {
			files, err = driver.Files(r.Context(), p)
			if err == nil {
				directories, err = driver.Directories(r.Context(), p)
			}
		}
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		response := ListingResponse{
			Disk:        driver.Config().Name(),
			Path:        p,
			Recursive:   recursive,
			Files:       nonNil(files),
			Directories: nonNil(directories),
		}

		w.Header().Set("X-Diskfs-Count", strconv.Itoa(len(files)+len(directories)))
		SendJSONResponse(w, response)

		logger.Debug("Directory listed via API",
			zap.String("disk", response.Disk),
			log.Path("path", p),
			zap.Bool("recursive", recursive),
			zap.Int("items_count", len(files)+len(directories)))
	}
}

// V1FileURL handles GET /v1/disks/{disk}/url/*. Without an expires query
// parameter it returns the public URL; with expires=<seconds> it returns a
// temporary URL valid for that long.
func V1FileURL(disks DiskResolver, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driver, p, err := requestTarget(r, disks)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		expires := r.URL.Query().Get("expires")
		if expires == "" {
			u, err := driver.URL(p)
			if err != nil {
				SendErrorResponse(w, logger, err, http.StatusInternalServerError)
				return
			}
			SendJSONResponse(w, URLResponse{URL: u})
			return
		}

		seconds, err := strconv.Atoi(expires)
		ttl := time.Duration(seconds) * time.Second
		if err != nil || ttl <= 0 || ttl > MaxTemporaryURLExpiry {
			SendErrorResponse(w, logger,
				fmt.Errorf("expires must be between 1 and %d seconds", int(MaxTemporaryURLExpiry.Seconds())),
				http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		expiresAt := time.Now().Add(ttl).UTC()
		u, err := driver.TemporaryURL(ctx, p, expiresAt)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusInternalServerError)
			return
		}

		SendJSONResponse(w, URLResponse{URL: u, Expires: &expiresAt})

		logger.Info("Temporary URL generated",
			zap.String("disk", driver.Config().Name()),
			log.Path("path", p),
			zap.Duration("ttl", ttl))
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
