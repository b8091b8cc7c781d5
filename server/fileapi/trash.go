package fileapi

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/helpers"
	"github.com/migadu/hako/pkg/metrics"
)

// TrashEntry is one soft-deleted object. Key is the original key the object
// had before deletion; DeletedAt is when it was moved to the trash.
type TrashEntry struct {
	Key       string    `json:"key"`
	Size      int64     `json:"size"`
	DeletedAt time.Time `json:"deleted_at"`
}

func (s *Server) handleListTrash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	objects, err := s.store.List(ctx, consts.TrashPrefix, true)
	if err != nil {
		log.Printf("[FILEAPI] error listing trash: %v", err)
		s.writeError(w, http.StatusBadGateway, "Listing failed")
		return
	}

	entries := make([]TrashEntry, 0, len(objects))
	for _, obj := range objects {
		orig, ok := helpers.OriginalKey(obj.Key)
		if !ok {
			continue
		}
		entries = append(entries, TrashEntry{
			Key:       orig,
			Size:      obj.Size,
			DeletedAt: obj.ModifiedAt,
		})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   len(entries),
	})
}

// handleRestoreTrash copies a trashed object back to its original key and
// removes the trash entry. The restore refuses to clobber a key that has
// been recreated since the deletion.
func (s *Server) handleRestoreTrash(w http.ResponseWriter, r *http.Request) {
	key, err := helpers.CleanObjectKey(r.FormValue("key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid object key")
		return
	}

	ctx := r.Context()

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		log.Printf("[FILEAPI] error checking %s before restore: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Restore failed")
		return
	}
	if exists {
		metrics.TrashOperationsTotal.WithLabelValues("restore", "conflict").Inc()
		s.writeError(w, http.StatusConflict, "An object with this key already exists")
		return
	}

	trashKey := helpers.TrashKey(key)
	if err := s.store.Copy(ctx, trashKey, key); err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			metrics.TrashOperationsTotal.WithLabelValues("restore", "error").Inc()
			s.writeError(w, http.StatusNotFound, "No trash entry for this key")
			return
		}
		metrics.TrashOperationsTotal.WithLabelValues("restore", "error").Inc()
		log.Printf("[FILEAPI] error restoring %s: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Restore failed")
		return
	}

	if err := s.store.Delete(ctx, trashKey); err != nil {
		// The object is restored; only the stale trash entry remains.
		metrics.TrashOperationsTotal.WithLabelValues("restore", "error").Inc()
		log.Printf("[FILEAPI] error removing trash entry %s after restore: %v", trashKey, err)
		s.writeError(w, http.StatusBadGateway, "Restore failed")
		return
	}

	metrics.TrashOperationsTotal.WithLabelValues("restore", "success").Inc()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"message": "File restored from trash",
	})
}

// handleDeleteTrash permanently removes one trash entry.
func (s *Server) handleDeleteTrash(w http.ResponseWriter, r *http.Request) {
	key, err := helpers.CleanObjectKey(r.FormValue("key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid object key")
		return
	}

	ctx := r.Context()

	trashKey := helpers.TrashKey(key)
	exists, err := s.store.Exists(ctx, trashKey)
	if err != nil {
		log.Printf("[FILEAPI] error checking trash entry %s: %v", trashKey, err)
		s.writeError(w, http.StatusBadGateway, "Delete failed")
		return
	}
	if !exists {
		s.writeError(w, http.StatusNotFound, "No trash entry for this key")
		return
	}

	if err := s.store.Delete(ctx, trashKey); err != nil {
		metrics.TrashOperationsTotal.WithLabelValues("delete", "error").Inc()
		log.Printf("[FILEAPI] error deleting trash entry %s: %v", trashKey, err)
		s.writeError(w, http.StatusBadGateway, "Delete failed")
		return
	}

	metrics.TrashOperationsTotal.WithLabelValues("delete", "success").Inc()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"message": "Trash entry permanently deleted",
	})
}

// handleEmptyTrash permanently removes every trash entry, best-effort.
func (s *Server) handleEmptyTrash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	objects, err := s.store.List(ctx, consts.TrashPrefix, true)
	if err != nil {
		log.Printf("[FILEAPI] error listing trash: %v", err)
		s.writeError(w, http.StatusBadGateway, "Listing failed")
		return
	}

	removed := 0
	failed := 0
	for _, obj := range objects {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			log.Printf("[FILEAPI] error deleting trash entry %s: %v", obj.Key, err)
			failed++
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.TrashOperationsTotal.WithLabelValues("empty", "success").Add(float64(removed))
	}
	if failed > 0 {
		metrics.TrashOperationsTotal.WithLabelValues("empty", "error").Add(float64(failed))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"removed": removed,
		"failed":  failed,
		"message": "Trash emptied",
	})
}
