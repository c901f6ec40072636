package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ebogdum/diskfs/core"
	"github.com/ebogdum/diskfs/links"
)

// LinkVerifier validates signed download links. *links.Signer satisfies
// it.
type LinkVerifier interface {
	Verify(disk, path string, expires int64, signature string) error
}

// V1SignedDownload handles GET /v1/signed/{disk}/*?expires=&signature=.
// The signature stands in for API key authentication.
func V1SignedDownload(disks DiskResolver, verifier LinkVerifier, logger *zap.Logger) http.HandlerFunc {
	download := serve(disks, core.DispositionAttachment, logger)

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
		if err != nil || query.Get("signature") == "" {
			sendLinkError(w, logger, links.ErrLinkInvalid)
			return
		}

		p, err := requestPath(r)
		if err != nil {
			SendErrorResponse(w, logger, err, http.StatusBadRequest)
			return
		}

		if err := verifier.Verify(chi.URLParam(r, "disk"), p, expires, query.Get("signature")); err != nil {
			sendLinkError(w, logger, err)
			return
		}

		download(w, r)
	}
}

func sendLinkError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := http.StatusForbidden, "LINK_INVALID"
	if errors.Is(err, links.ErrLinkExpired) {
		status, code = http.StatusGone, "LINK_EXPIRED"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	SendJSONResponse(w, ErrorResponse{Code: code, Message: err.Error()})

	logger.Info("Signed link rejected",
		zap.String("error_code", code),
		zap.Int("status_code", status))
}
