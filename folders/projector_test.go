package folders

import (
	"strings"
	"testing"
	"time"
)

func rec(key string, modifiedAt time.Time) Record {
	return Record{Key: key, Size: 1, ModifiedAt: modifiedAt}
}

func fileKeys(v View) []string {
	keys := make([]string, 0, len(v.Files))
	for _, f := range v.Files {
		keys = append(keys, f.Key)
	}
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProject(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		records     []Record
		path        string
		wantFiles   []string
		wantFolders []string
	}{
		{
			name:        "root with marker hidden",
			records:     []Record{rec("a.txt", now), rec("docs/b.txt", now), rec("docs/.folder", now)},
			path:        "",
			wantFiles:   []string{"a.txt"},
			wantFolders: []string{"docs/"},
		},
		{
			name:        "subfolder listing",
			records:     []Record{rec("docs/b.txt", now), rec("docs/sub/c.txt", now)},
			path:        "docs/",
			wantFiles:   []string{"docs/b.txt"},
			wantFolders: []string{"docs/sub/"},
		},
		{
			name:        "empty record set",
			records:     nil,
			path:        "",
			wantFiles:   []string{},
			wantFolders: []string{},
		},
		{
			name:        "key equal to path is the folder marker",
			records:     []Record{rec("docs/", now), rec("docs/a.txt", now)},
			path:        "docs/",
			wantFiles:   []string{"docs/a.txt"},
			wantFolders: []string{},
		},
		{
			name:        "marker hidden case-insensitively",
			records:     []Record{rec("docs/.Folder", now), rec("docs/a.txt", now)},
			path:        "docs/",
			wantFiles:   []string{"docs/a.txt"},
			wantFolders: []string{},
		},
		{
			name:        "marker hidden at root",
			records:     []Record{rec(".folder", now), rec("a.txt", now)},
			path:        "",
			wantFiles:   []string{"a.txt"},
			wantFolders: []string{},
		},
		{
			name:        "prefix match is case-insensitive",
			records:     []Record{rec("Docs/a.txt", now), rec("other/b.txt", now)},
			path:        "docs/",
			wantFiles:   []string{"Docs/a.txt"},
			wantFolders: []string{},
		},
		{
			name:        "records outside the path are skipped",
			records:     []Record{rec("docs/a.txt", now), rec("media/b.png", now)},
			path:        "docs/",
			wantFiles:   []string{"docs/a.txt"},
			wantFolders: []string{},
		},
		{
			name:        "deep nesting yields only the immediate subfolder",
			records:     []Record{rec("a/b/c/d.txt", now)},
			path:        "",
			wantFiles:   []string{},
			wantFolders: []string{"a/"},
		},
		{
			name:        "deep nesting under a path",
			records:     []Record{rec("a/b/c/d.txt", now)},
			path:        "a/",
			wantFiles:   []string{},
			wantFolders: []string{"a/b/"},
		},
		{
			name:        "case-insensitive folder dedup keeps first casing",
			records:     []Record{rec("docs/Sub/a.txt", now), rec("docs/sub/b.txt", now)},
			path:        "docs/",
			wantFiles:   []string{},
			wantFolders: []string{"docs/Sub/"},
		},
		{
			name:        "backslashes are normalized before projection",
			records:     []Record{rec("docs\\b.txt", now)},
			path:        "",
			wantFiles:   []string{},
			wantFolders: []string{"docs/"},
		},
		{
			name:        "folders sorted lexicographically ignoring case",
			records:     []Record{rec("zeta/a", now), rec("Alpha/b", now), rec("media/c", now)},
			path:        "",
			wantFiles:   []string{},
			wantFolders: []string{"Alpha/", "media/", "zeta/"},
		},
		{
			name:        "nested markers appear as folders not files",
			records:     []Record{rec("docs/.folder", now), rec("docs/sub/.folder", now)},
			path:        "docs/",
			wantFiles:   []string{},
			wantFolders: []string{"docs/sub/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Project(tt.records, tt.path)
			if !equalStrings(fileKeys(got), tt.wantFiles) {
				t.Errorf("files = %v, want %v", fileKeys(got), tt.wantFiles)
			}
			if !equalStrings(got.Folders, tt.wantFolders) {
				t.Errorf("folders = %v, want %v", got.Folders, tt.wantFolders)
			}
		})
	}
}

func TestProjectSortsFilesByModifiedAtDescending(t *testing.T) {
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		rec("old.txt", base),
		rec("newest.txt", base.Add(2*time.Hour)),
		rec("newer.txt", base.Add(time.Hour)),
	}

	got := Project(records, "")
	want := []string{"newest.txt", "newer.txt", "old.txt"}
	if !equalStrings(fileKeys(got), want) {
		t.Errorf("files = %v, want %v", fileKeys(got), want)
	}
}

func TestProjectKeepsInputOrderOnEqualTimestamps(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{rec("first.txt", now), rec("second.txt", now), rec("third.txt", now)}

	got := Project(records, "")
	want := []string{"first.txt", "second.txt", "third.txt"}
	if !equalStrings(fileKeys(got), want) {
		t.Errorf("files = %v, want %v", fileKeys(got), want)
	}
}

// Every projected file must sit directly in the folder, every projected
// folder must be slash-terminated, path-prefixed and backed by at least one
// input key.
func TestProjectInvariants(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	records := []Record{
		rec("readme.md", now),
		rec("docs/a.txt", now),
		rec("docs/sub/b.txt", now),
		rec("docs/sub/deeper/c.txt", now),
		rec("docs/.folder", now),
		rec("Media/pic.png", now),
		rec("media/clip.mp4", now),
	}

	for _, path := range []string{"", "docs/", "docs/sub/", "media/"} {
		v := Project(records, path)

		for _, f := range v.Files {
			remainder := f.Key[len(path):]
			if strings.Contains(remainder, "/") {
				t.Errorf("path %q: file %q is not a direct child", path, f.Key)
			}
		}

		for _, folder := range v.Folders {
			if !strings.HasSuffix(folder, "/") {
				t.Errorf("path %q: folder %q does not end with /", path, folder)
			}
			if !strings.HasPrefix(strings.ToLower(folder), strings.ToLower(path)) {
				t.Errorf("path %q: folder %q does not carry the path prefix", path, folder)
			}
			backed := false
			for _, r := range records {
				if strings.HasPrefix(strings.ToLower(r.Key), strings.ToLower(folder)) {
					backed = true
					break
				}
			}
			if !backed {
				t.Errorf("path %q: folder %q is not backed by any input key", path, folder)
			}
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "", want: ""},
		{input: "docs", want: "docs/"},
		{input: "docs/", want: "docs/"},
		{input: "docs/sub", want: "docs/sub/"},
	}

	for _, tt := range tests {
		if got := NormalizePath(tt.input); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
