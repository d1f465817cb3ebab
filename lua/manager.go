package lua

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ScriptExt is the extension given to saved drone scripts.
const ScriptExt = ".ds"

const maxSnapshots = 10000

// SaveToRecent writes src into recentDir as <name>_<n>.ds, where name comes
// from originalPath and n is the first free number. It returns the new path.
func SaveToRecent(src, originalPath, recentDir string) (string, error) {
	if recentDir == "" {
		recentDir = "recent"
	}
	if err := os.MkdirAll(recentDir, 0755); err != nil {
		return "", fmt.Errorf("recent dir: %w", err)
	}

	stem := "untitled"
	if originalPath != "" {
		base := filepath.Base(originalPath)
		stem = strings.TrimSuffix(base, filepath.Ext(base))
	}

	for n := 1; n <= maxSnapshots; n++ {
		path := filepath.Join(recentDir, fmt.Sprintf("%s_%d%s", stem, n, ScriptExt))
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("snapshot %s: %w", path, err)
		}

		_, werr := f.WriteString(src)
		if cerr := f.Close(); werr == nil {
			werr = cerr
		}
		if werr != nil {
			return "", fmt.Errorf("snapshot %s: %w", path, werr)
		}
		return path, nil
	}
	return "", fmt.Errorf("recent dir %s: no free name for %q", recentDir, stem)
}
