package backend

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// DiskBackend appends every received chunk to a per-port log file under
// var/run/vspc/<uuid[0:2]>/<uuid[0:4]>/<uuid>.log (§6), sharded the way the
// teacher shards its session artifacts to keep any one directory small.
type DiskBackend struct {
	mu   sync.Mutex
	file *os.File
}

// NewDiskBackend opens (creating parent directories as needed) the log file
// for portUUID rooted at baseDir, keeping the file open for the backend's
// lifetime.
func NewDiskBackend(baseDir, portUUID string) (*DiskBackend, error) {
	if len(portUUID) < 4 {
		return nil, fmt.Errorf("backend: disk log path requires a uuid of at least 4 characters, got %q", portUUID)
	}
	dir := filepath.Join(baseDir, portUUID[:2], portUUID[:4])
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("backend: create disk log directory: %w", err)
	}
	path := filepath.Join(dir, portUUID+".log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("backend: open disk log: %w", err)
	}
	return &DiskBackend{file: f}, nil
}

// ReceiveBytes implements vmport.Backend by appending to the open file.
func (d *DiskBackend) ReceiveBytes(data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.file.Write(data)
	return err
}

// Close releases the underlying file handle.
func (d *DiskBackend) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.file.Close()
}
