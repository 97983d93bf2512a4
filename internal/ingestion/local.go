package ingestion

import (
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
)

var allowedExt = []string{".pdf", ".txt", ".md", ".png", ".jpg", ".jpeg"}

// Supported reports whether ExtractText can read name.
func Supported(name string) bool {
	return slices.Contains(allowedExt, strings.ToLower(filepath.Ext(name)))
}

// LoadLocalFiles returns every supported file under root.
func LoadLocalFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if Supported(path) {
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
