package runtime

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// SetupLogging tees the standard logger into a dated file under dir in
// addition to stderr, creating the directory when missing. The file stays
// open for the life of the process. Returns the log file path.
func SetupLogging(dir string) (string, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	name := filepath.Join(dir, fmt.Sprintf("research_%s.log", time.Now().Format("20060102")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	log.SetOutput(io.MultiWriter(os.Stderr, f))
	return name, nil
}
