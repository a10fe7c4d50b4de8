package persistence

import (
	"io"
	"os"
	"path/filepath"

	"github.com/spacemeshos/post-core/shared"
)

const labelSize = 16

// LabelsWriter appends label bytes to one postdata_N.bin file, tracking
// how many whole labels have been written so initialization can resume a
// partially-written file.
type LabelsWriter struct {
	file *os.File
}

// NewLabelsWriter opens (creating if necessary) the fileIndex'th label
// file in datadir for appending.
func NewLabelsWriter(datadir string, fileIndex int) (*LabelsWriter, error) {
	path := filepath.Join(datadir, shared.InitFileName(fileIndex))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, shared.NewInitIOError("opening label file", err)
	}
	return &LabelsWriter{file: f}, nil
}

// NumLabelsWritten reports how many whole 16-byte labels are already
// present in the file.
func (w *LabelsWriter) NumLabelsWritten() (uint64, error) {
	info, err := w.file.Stat()
	if err != nil {
		return 0, shared.NewInitIOError("stat label file", err)
	}
	return uint64(info.Size()) / labelSize, nil
}

// Write appends label bytes at the current end of the file. data's length
// must be a whole multiple of 16.
func (w *LabelsWriter) Write(data []byte) error {
	if len(data)%labelSize != 0 {
		return shared.NewInvalidArgumentError("label data must be a whole multiple of 16 bytes")
	}
	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return shared.NewInitIOError("seeking label file", err)
	}
	if _, err := w.file.Write(data); err != nil {
		return shared.NewInitIOError("writing label file", err)
	}
	return nil
}

// Truncate shrinks the file to exactly numLabels labels, used to recover
// from a partial write left by a crashed initialization run.
func (w *LabelsWriter) Truncate(numLabels uint64) error {
	if err := w.file.Truncate(int64(numLabels) * labelSize); err != nil {
		return shared.NewInitIOError("truncating label file", err)
	}
	return nil
}

// Flush ensures written labels are durable on disk.
func (w *LabelsWriter) Flush() error {
	if err := w.file.Sync(); err != nil {
		return shared.NewInitIOError("flushing label file", err)
	}
	return nil
}

// Close releases the underlying file handle.
func (w *LabelsWriter) Close() error {
	return w.file.Close()
}
