// Package log holds the write-ahead-log lifecycle hook. The buffer pool
// carries a LogManager so a recovery layer can slot in later; the core
// itself never writes log records.
package log

import (
	"fmt"
	"os"
	"sync"
)

// LogManager owns the log file handle. Only the open/flush/close
// lifecycle is implemented; record formats and replay belong to a
// future recovery layer.
type LogManager struct {
	mutex    sync.Mutex
	file     *os.File
	filePath string
}

// NewLogManager opens (or creates) the log file at the given path.
func NewLogManager(filePath string) (*LogManager, error) {
	if filePath == "" {
		return nil, fmt.Errorf("filePath cannot be empty")
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &LogManager{file: file, filePath: filePath}, nil
}

// Flush forces buffered log data to disk.
func (lm *LogManager) Flush() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.file == nil {
		return fmt.Errorf("log manager is closed")
	}
	return lm.file.Sync()
}

// Close flushes and closes the log file.
func (lm *LogManager) Close() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lm.file == nil {
		return nil
	}

	if err := lm.file.Sync(); err != nil {
		lm.file.Close()
		lm.file = nil
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	err := lm.file.Close()
	lm.file = nil
	return err
}
