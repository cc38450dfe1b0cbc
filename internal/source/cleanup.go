package source

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// CleanupTemps removes downloaded PDFs left in the temp dir by interrupted
// runs that are older than maxAge. It returns the number removed.
func CleanupTemps(maxAge time.Duration) int {
	return cleanupDir(os.TempDir(), maxAge, time.Now())
}

func cleanupDir(dir string, maxAge time.Duration, now time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasPrefix(name, httpTempPrefix) || strings.HasPrefix(name, s3TempPrefix)) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) >= maxAge {
			if os.Remove(filepath.Join(dir, name)) == nil {
				removed++
			}
		}
	}
	if removed > 0 {
		log.Debug().Int("removed", removed).Str("dir", dir).Msg("cleaned stale temp downloads")
	}
	return removed
}
