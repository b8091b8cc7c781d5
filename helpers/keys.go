package helpers

import (
	"path"
	"strings"

	"github.com/migadu/hako/consts"
)

// CleanObjectKey validates and canonicalizes a user-supplied object key.
// Backslashes become slashes, a leading slash is stripped, and empty keys,
// dot-segment traversal and NUL bytes are rejected with ErrInvalidObjectKey.
func CleanObjectKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	key = strings.TrimPrefix(key, "/")
	if key == "" || key == "." {
		return "", consts.ErrInvalidObjectKey
	}
	if strings.ContainsRune(key, '\x00') {
		return "", consts.ErrInvalidObjectKey
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", consts.ErrInvalidObjectKey
		}
	}
	return key, nil
}

// NormalizeFolderPath canonicalizes a folder path for listing and projection:
// empty stays empty, anything else is cleaned like a key and gets a trailing
// slash appended if missing.
func NormalizeFolderPath(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" || p == "/" {
		return "", nil
	}
	cleaned, err := CleanObjectKey(strings.TrimSuffix(p, "/"))
	if err != nil {
		return "", err
	}
	return cleaned + "/", nil
}

// JoinPath prepends a normalized folder path (empty or slash-terminated) to a
// file name.
func JoinPath(folderPath, name string) string {
	return folderPath + name
}

// BaseName returns the display name of a key: the part after the last slash.
func BaseName(key string) string {
	return path.Base(key)
}

// TrashKey maps an object key to its location under the trash prefix.
func TrashKey(key string) string {
	return consts.TrashPrefix + key
}

// OriginalKey strips the trash prefix from a trashed key. The second return
// value is false when the key is not under the trash prefix.
func OriginalKey(trashKey string) (string, bool) {
	if !strings.HasPrefix(trashKey, consts.TrashPrefix) {
		return "", false
	}
	orig := trashKey[len(consts.TrashPrefix):]
	if orig == "" {
		return "", false
	}
	return orig, true
}

// SanitizeFileName makes an uploaded file name safe to use as a key segment:
// path separators and NUL bytes are dropped, and names that reduce to nothing
// fall back to "file".
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	for _, r := range name {
		switch r {
		case '/', '\\', '\x00':
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if out == "" || out == "." || out == ".." {
		return "file"
	}
	return out
}
