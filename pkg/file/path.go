package file

import (
	"path/filepath"
	"strings"
)

func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}

	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(filepath.Dir(path), TrimExt(filepath.Base(path))+ext)
}

// TrimExt drops the final extension of path. Dotfiles without another dot
// are returned unchanged.
func TrimExt(path string) string {
	base := filepath.Base(path)
	lastDot := strings.LastIndex(base, ".")
	if lastDot <= 0 {
		return path
	}
	return path[:len(path)-(len(base)-lastDot)]
}

// AddSuffix inserts suffix between the file name and its extension:
// AddSuffix("a/movie.srt", ".zh") == "a/movie.zh.srt".
func AddSuffix(path, suffix string) string {
	ext := filepath.Ext(path)
	if strings.LastIndex(filepath.Base(path), ".") <= 0 {
		ext = ""
	}
	return TrimExt(path) + suffix + ext
}
