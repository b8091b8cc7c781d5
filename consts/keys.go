package consts

// Key-space conventions. The bucket has no real hierarchy; folders exist only
// as `/`-delimited key prefixes.
const (
	PathDelimiter = "/"

	// FolderMarker is the zero-byte placeholder object that keeps an
	// otherwise-empty folder visible in listings. Never shown as a file.
	FolderMarker = ".folder"

	// TrashPrefix is where soft-deleted objects live until restored or
	// purged. Keys under it keep their original path appended, so a restore
	// is a straight prefix strip.
	TrashPrefix = ".trash/"

	// AutocertPrefix holds the TLS manager's certificate cache. Internal
	// only; never listed or served.
	AutocertPrefix = ".autocert/"
)
