package writer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

// LogIngestError appends a timestamped message to the side error log under
// dir. Used by the ingest entry point before a Writer exists, and safe to
// call from multiple processes. Best effort: an unloggable error is not
// worth crashing over.
func LogIngestError(dir, msg string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return
	}
	path := filepath.Join(dir, ErrorLog)

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return
	}
	defer lock.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), msg)
}
