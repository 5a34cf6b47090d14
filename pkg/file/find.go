package file

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FindRecentAfter walks dir and returns files with the given extension
// (case-insensitive, empty matches all) modified after startTime.
func FindRecentAfter(dir string, startTime time.Time, ext string) ([]string, error) {
	var recentFiles []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo,
		err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}
		if info.ModTime().After(startTime) {
			recentFiles = append(recentFiles, path)
		}
		return nil
	})

	return recentFiles, err
}
