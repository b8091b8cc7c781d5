// Package folders projects the bucket's flat key space into a hierarchical
// folder view. The store has no real directories: a "folder" is any key
// prefix ending in "/", kept visible when empty by a zero-byte ".folder"
// marker object. Projection is a pure single pass over the listing — nothing
// is cached and nothing is mutated.
package folders

import (
	"sort"
	"strings"
	"time"

	"github.com/migadu/hako/consts"
)

// Record is one stored object as reported by the bucket listing.
type Record struct {
	Key        string
	Size       int64
	ModifiedAt time.Time
}

// View is the projection of a record set onto one folder level: the files
// directly in the folder, newest first, and the immediate subfolder paths in
// lexicographic order. Every folder entry ends with "/" and carries the
// current path as its prefix.
type View struct {
	Files   []Record
	Folders []string
}

// NormalizePath prepares a folder path for Project: empty stays empty,
// anything else gets a trailing slash appended if missing.
func NormalizePath(path string) string {
	if path == "" || strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

// Project partitions records into the files and immediate subfolders of path.
// The path must be normalized (empty or slash-terminated, see NormalizePath).
//
// Prefix matching is case-insensitive. A record whose key equals the path is
// the folder's own marker and is hidden, as is any ".folder" placeholder.
// Subfolder names are de-duplicated case-insensitively; when two keys imply
// folder names differing only by case, the first record listed wins and later
// casings fold into it.
func Project(records []Record, path string) View {
	var files []Record
	var folderPaths []string
	seen := make(map[string]struct{})

	for _, rec := range records {
		key := strings.ReplaceAll(rec.Key, "\\", "/")

		remainder := key
		if path != "" {
			if len(key) < len(path) || !strings.EqualFold(key[:len(path)], path) {
				continue
			}
			remainder = key[len(path):]
			if remainder == "" {
				// The folder's own marker object.
				continue
			}
		}

		if strings.EqualFold(remainder, consts.FolderMarker) {
			continue
		}

		if idx := strings.Index(remainder, "/"); idx >= 0 {
			folderPath := path + remainder[:idx+1]
			lower := strings.ToLower(folderPath)
			if _, dup := seen[lower]; !dup {
				seen[lower] = struct{}{}
				folderPaths = append(folderPaths, folderPath)
			}
			continue
		}

		rec.Key = key
		files = append(files, rec)
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModifiedAt.After(files[j].ModifiedAt)
	})
	sort.Slice(folderPaths, func(i, j int) bool {
		li, lj := strings.ToLower(folderPaths[i]), strings.ToLower(folderPaths[j])
		if li != lj {
			return li < lj
		}
		return folderPaths[i] < folderPaths[j]
	})

	return View{Files: files, Folders: folderPaths}
}
