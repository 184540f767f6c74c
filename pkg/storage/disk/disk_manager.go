// Package disk provides the block device abstraction underneath the
// buffer pool: page-granular reads and writes against a single file,
// plus allocation of fresh page ids.
package disk

import (
	"fmt"
	"io"
	"os"
	"sync"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// DiskManager is the buffer pool's view of the disk device. Reads of a
// page that was never written fill the buffer with zeroes; this is what
// lets well-known pages (such as the index header page) be fetched
// before anything has been stored in them.
type DiskManager interface {
	// ReadPage fills buf (page.Size bytes) with the page's contents.
	ReadPage(id primitives.PageID, buf []byte) error

	// WritePage persists buf (page.Size bytes) as the page's contents.
	WritePage(id primitives.PageID, buf []byte) error

	// AllocatePage hands out the next unused page id. Ids are
	// monotonic and never reused within a session.
	AllocatePage() primitives.PageID

	// Close releases the underlying resources.
	Close() error
}

// FileDiskManager stores pages in a single OS file. Page offsets are
// calculated as id * page.Size.
type FileDiskManager struct {
	mutex    sync.Mutex
	file     *os.File
	filePath string
	nextPage primitives.PageID
}

// NewFileDiskManager opens (or creates) the database file at the given
// path. The page id counter resumes after the highest page already in
// the file.
func NewFileDiskManager(filePath string) (*FileDiskManager, error) {
	if filePath == "" {
		return nil, fmt.Errorf("filePath cannot be empty")
	}

	file, err := os.OpenFile(filePath, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	numPages := info.Size() / int64(page.Size)
	if info.Size()%int64(page.Size) != 0 {
		numPages++
	}

	// Page 0 is the well-known header page; the allocator never hands
	// it out.
	next := primitives.PageID(numPages)
	if next < 1 {
		next = 1
	}

	return &FileDiskManager{
		file:     file,
		filePath: filePath,
		nextPage: next,
	}, nil
}

// ReadPage reads the page into buf. Reading past the end of the file
// returns a zero-filled buffer.
func (dm *FileDiskManager) ReadPage(id primitives.PageID, buf []byte) error {
	if err := validatePageArgs(id, buf); err != nil {
		return err
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.file == nil {
		return fmt.Errorf("disk manager is closed")
	}

	offset := int64(id) * int64(page.Size)
	n, err := dm.file.ReadAt(buf, offset)
	if err == io.EOF {
		clear(buf[n:])
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read page %d: %w", id, err)
	}
	return nil
}

// WritePage writes buf to the page's offset, extending the file if
// needed.
func (dm *FileDiskManager) WritePage(id primitives.PageID, buf []byte) error {
	if err := validatePageArgs(id, buf); err != nil {
		return err
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.file == nil {
		return fmt.Errorf("disk manager is closed")
	}

	offset := int64(id) * int64(page.Size)
	if _, err := dm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("failed to write page %d: %w", id, err)
	}
	return nil
}

// AllocatePage returns the next unused page id.
func (dm *FileDiskManager) AllocatePage() primitives.PageID {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	id := dm.nextPage
	dm.nextPage++
	return id
}

// Close flushes and closes the underlying file.
func (dm *FileDiskManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.file == nil {
		return nil
	}

	if err := dm.file.Sync(); err != nil {
		dm.file.Close()
		dm.file = nil
		return fmt.Errorf("failed to sync file: %w", err)
	}

	err := dm.file.Close()
	dm.file = nil
	return err
}

// FilePath returns the path of the backing file.
func (dm *FileDiskManager) FilePath() string {
	return dm.filePath
}

func validatePageArgs(id primitives.PageID, buf []byte) error {
	if id < 0 {
		return fmt.Errorf("invalid page id %d", id)
	}
	if len(buf) != page.Size {
		return fmt.Errorf("buffer must be exactly %d bytes, got %d", page.Size, len(buf))
	}
	return nil
}
