package fileapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/migadu/hako/consts"
	"github.com/migadu/hako/folders"
	"github.com/migadu/hako/helpers"
	"github.com/migadu/hako/pkg/metrics"
)

// FileEntry is one file in a folder listing.
type FileEntry struct {
	Key        string    `json:"key"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ListFilesResponse is the folder view returned by GET /api/v1/files.
type ListFilesResponse struct {
	Path    string      `json:"path"`
	Files   []FileEntry `json:"files"`
	Folders []string    `json:"folders"`
	Count   int         `json:"count"`
}

// handleListFiles lists one folder level: the files directly in the folder,
// newest first, and its immediate subfolders. The whole bucket is listed and
// projected on every request; there is no cached tree to go stale.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	folderPath, err := helpers.NormalizeFolderPath(r.URL.Query().Get("path"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid folder path")
		return
	}

	ctx := r.Context()

	objects, err := s.store.List(ctx, "", true)
	if err != nil {
		log.Printf("[FILEAPI] error listing bucket: %v", err)
		s.writeError(w, http.StatusBadGateway, "Listing failed")
		return
	}

	records := make([]folders.Record, 0, len(objects))
	for _, obj := range objects {
		if isReservedKey(obj.Key) {
			continue
		}
		records = append(records, folders.Record{
			Key:        obj.Key,
			Size:       obj.Size,
			ModifiedAt: obj.ModifiedAt,
		})
	}

	view := folders.Project(records, folderPath)

	files := make([]FileEntry, 0, len(view.Files))
	for _, f := range view.Files {
		files = append(files, FileEntry{
			Key:        f.Key,
			Name:       helpers.BaseName(f.Key),
			Size:       f.Size,
			ModifiedAt: f.ModifiedAt,
		})
	}
	folderList := view.Folders
	if folderList == nil {
		folderList = []string{}
	}

	s.writeJSON(w, http.StatusOK, ListFilesResponse{
		Path:    folderPath,
		Files:   files,
		Folders: folderList,
		Count:   len(files) + len(folderList),
	})
}

// handleUploadFile stores one multipart file upload. The target key is the
// sanitized file name joined onto the optional "path" form field.
func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize)

	if err := r.ParseMultipartForm(32 << 20); err != nil { // 32MB in memory, rest spills to disk
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		// The multipart reader does not always wrap the limiter error, so
		// match the message as well as the type.
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
			s.writeError(w, http.StatusRequestEntityTooLarge, "Upload exceeds the configured size limit")
			return
		}
		s.writeError(w, http.StatusBadRequest, "Failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.writeError(w, http.StatusBadRequest, "A 'file' form part is required")
		return
	}
	defer file.Close()

	folderPath, err := helpers.NormalizeFolderPath(r.FormValue("path"))
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.writeError(w, http.StatusBadRequest, "Invalid folder path")
		return
	}

	key := helpers.JoinPath(folderPath, helpers.SanitizeFileName(header.Filename))
	if isReservedKey(key) {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.writeError(w, http.StatusBadRequest, "Uploads into reserved prefixes are not allowed")
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	ctx := r.Context()

	result, err := s.store.Put(ctx, key, file, header.Size, contentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		log.Printf("[FILEAPI] error uploading %s: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Upload failed")
		return
	}

	metrics.UploadsTotal.WithLabelValues("success").Inc()
	metrics.UploadedBytesTotal.Add(float64(result.Size))

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"key":     result.Key,
		"size":    result.Size,
		"blake3":  result.BLAKE3,
		"message": "File uploaded successfully",
	})
}

// handleCreateFolder makes an empty folder visible by writing its zero-byte
// placeholder object.
func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	folderPath, err := helpers.NormalizeFolderPath(r.FormValue("path"))
	if err != nil || folderPath == "" {
		s.writeError(w, http.StatusBadRequest, "A non-empty folder path is required")
		return
	}
	if isReservedKey(folderPath) {
		s.writeError(w, http.StatusBadRequest, "Folders inside reserved prefixes are not allowed")
		return
	}

	ctx := r.Context()

	key := folderPath + consts.FolderMarker
	if _, err := s.store.Put(ctx, key, strings.NewReader(""), 0, "application/octet-stream"); err != nil {
		log.Printf("[FILEAPI] error creating folder %s: %v", folderPath, err)
		s.writeError(w, http.StatusBadGateway, "Folder creation failed")
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"path":    folderPath,
		"message": "Folder created successfully",
	})
}

// handleDownloadFile streams one object to an authenticated caller.
func (s *Server) handleDownloadFile(w http.ResponseWriter, r *http.Request) {
	key, err := helpers.CleanObjectKey(r.URL.Query().Get("key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid object key")
		return
	}
	if isReservedKey(key) {
		s.writeError(w, http.StatusBadRequest, "Keys inside reserved prefixes are not served here")
		return
	}

	ctx := r.Context()

	reader, meta, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			metrics.DownloadsTotal.WithLabelValues("api", "not_found").Inc()
			s.writeError(w, http.StatusNotFound, "Object not found")
			return
		}
		metrics.DownloadsTotal.WithLabelValues("api", "error").Inc()
		log.Printf("[FILEAPI] error fetching %s: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Download failed")
		return
	}
	defer reader.Close()

	s.streamObject(w, key, reader, meta.ContentType, meta.Size, "api")
}

// handleDeleteFile soft-deletes one object: copy to the trash prefix, then
// remove the original. The trash copy's modification time becomes the
// deletion time the retention purge works from.
func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	key, err := helpers.CleanObjectKey(r.FormValue("key"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid object key")
		return
	}
	if isReservedKey(key) {
		s.writeError(w, http.StatusBadRequest, "Keys inside reserved prefixes are not served here")
		return
	}

	ctx := r.Context()

	if err := s.store.Copy(ctx, key, helpers.TrashKey(key)); err != nil {
		if errors.Is(err, consts.ErrObjectNotFound) {
			metrics.TrashOperationsTotal.WithLabelValues("trash", "error").Inc()
			s.writeError(w, http.StatusNotFound, "Object not found")
			return
		}
		metrics.TrashOperationsTotal.WithLabelValues("trash", "error").Inc()
		log.Printf("[FILEAPI] error copying %s to trash: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Delete failed")
		return
	}

	if err := s.store.Delete(ctx, key); err != nil {
		// The trash copy exists at this point; the original stays behind
		// until the client retries.
		metrics.TrashOperationsTotal.WithLabelValues("trash", "error").Inc()
		log.Printf("[FILEAPI] error removing %s after trash copy: %v", key, err)
		s.writeError(w, http.StatusBadGateway, "Delete failed")
		return
	}

	metrics.TrashOperationsTotal.WithLabelValues("trash", "success").Inc()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"message": "File moved to trash",
	})
}

// handleDeleteFolder soft-deletes everything under a folder prefix. The
// per-key moves are best-effort: a failed key is logged and skipped, the
// loop always finishes, and the response reports counts only.
func (s *Server) handleDeleteFolder(w http.ResponseWriter, r *http.Request) {
	folderPath, err := helpers.NormalizeFolderPath(r.FormValue("folder"))
	if err != nil || folderPath == "" {
		s.writeError(w, http.StatusBadRequest, "A non-empty folder path is required")
		return
	}
	if isReservedKey(folderPath) {
		s.writeError(w, http.StatusBadRequest, "Folders inside reserved prefixes are not served here")
		return
	}

	ctx := r.Context()

	objects, err := s.store.List(ctx, folderPath, true)
	if err != nil {
		log.Printf("[FILEAPI] error listing folder %s: %v", folderPath, err)
		s.writeError(w, http.StatusBadGateway, "Listing failed")
		return
	}

	trashed := 0
	failed := 0
	for _, obj := range objects {
		if err := s.store.Copy(ctx, obj.Key, helpers.TrashKey(obj.Key)); err != nil {
			log.Printf("[FILEAPI] error copying %s to trash: %v", obj.Key, err)
			failed++
			continue
		}
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			log.Printf("[FILEAPI] error removing %s after trash copy: %v", obj.Key, err)
			failed++
			continue
		}
		trashed++
	}

	if trashed > 0 {
		metrics.TrashOperationsTotal.WithLabelValues("trash", "success").Add(float64(trashed))
	}
	if failed > 0 {
		metrics.TrashOperationsTotal.WithLabelValues("trash", "error").Add(float64(failed))
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"folder":  folderPath,
		"trashed": trashed,
		"failed":  failed,
		"message": fmt.Sprintf("Moved %d objects to trash", trashed),
	})
}

// streamObject writes one object body with download headers. kind labels the
// download metric: "api" for authenticated downloads, "share" for links.
func (s *Server) streamObject(w http.ResponseWriter, key string, reader io.Reader, contentType string, size int64, kind string) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", helpers.BaseName(key)))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		// Headers are out already, so the client sees a truncated body.
		metrics.DownloadsTotal.WithLabelValues(kind, "error").Inc()
		log.Printf("[FILEAPI] error streaming %s: %v", key, err)
		return
	}

	metrics.DownloadsTotal.WithLabelValues(kind, "success").Inc()
}
