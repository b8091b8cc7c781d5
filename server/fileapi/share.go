package fileapi

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/helpers"
	"github.com/migadu/hako/pkg/metrics"
	"github.com/migadu/hako/sharelink"
)

// handleCreateShare issues a time-limited download link for one object. The
// optional "ttl" form field is a lifetime in seconds; absent or non-positive
// values fall back to the configured default.
func (s *Server) handleCreateShare(w http.ResponseWriter, r *http.Request) {
	key, err := helpers.CleanObjectKey(r.FormValue("key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid object key")
		return
	}
	if isReservedKey(key) {
		s.writeError(w, http.StatusBadRequest, "Keys inside reserved prefixes cannot be shared")
		return
	}

	var ttl time.Duration
	if raw := r.FormValue("ttl"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "TTL must be an integer number of seconds")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}
	if ttl <= 0 {
		ttl = s.shareTTL
	}

	ctx := r.Context()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		log.Printf("[FILEAPI] error checking %s before sharing: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Share failed")
		return
	}
	if !exists {
		s.writeError(w, http.StatusNotFound, "Object not found")
		return
	}

	token, err := s.shares.Encode(key, ttl)
	if err != nil {
		log.Printf("[FILEAPI] error issuing share token for %s: %v", key, err)
		s.writeError(w, http.StatusInternalServerError, "Failed to issue share token")
		return
	}

	metrics.ShareTokensIssuedTotal.Inc()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"url":     s.publicBaseURL + "/d?token=" + token,
	})
}

// handleShareDownload serves the public share links. Every failure answers
// with the same plain 404: a caller probing with forged or stale tokens
// cannot tell a bad token from an expired one or from a deleted object.
// Only the metrics label the rejection reason.
func (s *Server) handleShareDownload(w http.ResponseWriter, r *http.Request) {
	key, expiresAt, err := s.shares.Decode(r.URL.Query().Get("token"))
	if err != nil {
		metrics.ShareRejectsTotal.WithLabelValues("invalid_token").Inc()
		metrics.DownloadsTotal.WithLabelValues("share", "rejected").Inc()
		http.NotFound(w, r)
		return
	}

	if sharelink.IsExpired(expiresAt, time.Now()) {
		metrics.ShareRejectsTotal.WithLabelValues("expired").Inc()
		metrics.DownloadsTotal.WithLabelValues("share", "rejected").Inc()
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()

	reader, meta, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			metrics.ShareRejectsTotal.WithLabelValues("not_found").Inc()
		} else {
			metrics.ShareRejectsTotal.WithLabelValues("storage_error").Inc()
			log.Printf("[FILEAPI] error fetching shared object %s: %v", key, err)
		}
		metrics.DownloadsTotal.WithLabelValues("share", "rejected").Inc()
		http.NotFound(w, r)
		return
	}
	defer reader.Close()

	s.streamObject(w, key, reader, meta.ContentType, meta.Size, "share")
}

// handleHealthz answers liveness probes with a bucket round-trip.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.store.Ping(ctx); err != nil {
		log.Printf("[FILEAPI] health check failed: %v", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
