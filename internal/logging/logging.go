package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/llmhub/termmux/internal/config"
)

var (
	mu      sync.Mutex
	logFile *os.File
)

// Init sets up dual logging to stdout and a log file when LogPath is
// configured. Must be called after config.Load(). Safe to call when no log
// file is configured; logging stays on stdout.
func Init() {
	path := config.Cfg.LogPath
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	mu.Lock()
	logFile = f
	mu.Unlock()

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("Logging to %s", path)
}

// Close flushes and closes the log file if one was opened.
func Close() {
	mu.Lock()
	defer mu.Unlock()
	if logFile != nil {
		log.SetOutput(os.Stdout)
		logFile.Close()
		logFile = nil
	}
}
