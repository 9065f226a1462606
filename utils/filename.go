package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// SanitizeFilename reduces a client supplied file name to a safe base name:
// any directory components (including traversal sequences) are stripped and
// remaining characters are restricted to a conservative set. The extension is
// preserved. Returns "" when nothing usable is left.
func SanitizeFilename(name string) string {
	// Client may send Windows style separators.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	name = unsafeFilenameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._-")
	if name == "" || name == "." || name == ".." {
		return ""
	}
	return name
}
