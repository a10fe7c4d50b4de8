package persistence

import (
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/spacemeshos/post-core/internal/diskhint"
	"github.com/spacemeshos/post-core/shared"
)

// DefaultBatchSize is the recommended batch size for the label streamer:
// 1 MiB.
const DefaultBatchSize = 1 << 20

var posFileRe = regexp.MustCompile(`^postdata_(\d+)\.bin$`)

// PosFiles returns the postdata_N.bin file names in datadir, sorted by
// their numeric index. Anything not matching the naming convention is
// skipped.
func PosFiles(datadir string) ([]string, error) {
	entries, err := os.ReadDir(datadir)
	if err != nil {
		return nil, err
	}
	type indexed struct {
		id   uint64
		name string
	}
	var found []indexed
	for _, e := range entries {
		m := posFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		id, err := strconv.ParseUint(m[1], 10, 64)
		if err != nil {
			continue
		}
		found = append(found, indexed{id: id, name: e.Name()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].id < found[j].id })
	names := make([]string, len(found))
	for i, f := range found {
		names[i] = f.name
	}
	return names, nil
}

// Batch is one fixed-size chunk of label bytes read from the ordered
// label file sequence, along with the absolute label-byte offset of its
// first byte.
type Batch struct {
	Data []byte
	Pos  uint64
}

// LabelSource yields successive batches of label bytes. Implementations
// include the on-disk streamer and, for tests, an in-memory mock.
type LabelSource interface {
	// Next returns the next batch, or ok == false once exhausted.
	Next() (batch Batch, ok bool, err error)
}

// lazyReader defers opening its file until the first read, so a streamer
// over many files stays cheap until it actually touches them.
type lazyReader struct {
	path string
	file *os.File
}

func (l *lazyReader) Read(p []byte) (int, error) {
	if l.file == nil {
		f, err := os.Open(l.path)
		if err != nil {
			return 0, err
		}
		l.file = f
	}
	return l.file.Read(p)
}

func (l *lazyReader) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// dropCache hints to the OS that a fully-streamed file won't be reread.
// Best-effort: a failure here doesn't fail the stream.
func (l *lazyReader) dropCache() {
	if l.file != nil {
		_ = diskhint.DropCache(l.file)
	}
}

// batchingReader turns one file's raw bytes into fixed-size batches
// tagged with their absolute position in the overall label stream.
type batchingReader struct {
	identifier string
	reader     io.ReadCloser
	startPos   uint64
	pos        uint64
	batchSize  int
	totalSize  uint64
}

func (b *batchingReader) next() (Batch, bool, error) {
	posInFile := b.pos - b.startPos
	if posInFile >= b.totalSize {
		return Batch{}, false, nil
	}
	remaining := b.totalSize - posInFile
	size := b.batchSize
	if uint64(size) > remaining {
		size = int(remaining)
	}
	data := make([]byte, size)
	n, err := io.ReadFull(b.reader, data)
	if n == 0 {
		if err != nil && err != io.EOF {
			return Batch{}, false, shared.NewInitIOError("reading "+b.identifier, err)
		}
		return Batch{}, false, nil
	}
	batch := Batch{Data: data[:n], Pos: b.pos}
	b.pos += uint64(n)
	return batch, true, nil
}

// FileStreamer streams the ordered postdata_N.bin files in a data
// directory as fixed-size batches.
type FileStreamer struct {
	readers   []*batchingReader
	batchSize int
	idx       int
}

// NewFileStreamer builds a streamer over datadir's label files.
// fileSizeLabels is the configured max_file_size in labels; it sets each
// file's starting position and read bound, and a non-terminal file whose
// size differs from it is logged as a warning.
func NewFileStreamer(datadir string, batchSize int, fileSizeLabels uint64, logger shared.Logger) (*FileStreamer, error) {
	if logger == nil {
		logger = shared.DisabledLogger()
	}
	names, err := PosFiles(datadir)
	if err != nil {
		return nil, shared.NewInitIOError("listing label files", err)
	}

	fileSizeBytes := fileSizeLabels * labelSize
	readers := make([]*batchingReader, 0, len(names))
	for i, name := range names {
		path := filepath.Join(datadir, name)
		info, err := os.Stat(path)
		if err != nil {
			return nil, shared.NewInitIOError("stat label file", err)
		}
		isLast := i == len(names)-1
		if !isLast && uint64(info.Size()) != fileSizeBytes {
			logger.Warn("unexpected label file size, continuing")
		}
		// Each file is bounded at its nominal size so its batches stay
		// inside [i*fileSize, (i+1)*fileSize): an over-long file is
		// truncated at the boundary and a short one just EOFs early.
		readers = append(readers, &batchingReader{
			identifier: path,
			reader:     &lazyReader{path: path},
			startPos:   uint64(i) * fileSizeBytes,
			pos:        uint64(i) * fileSizeBytes,
			batchSize:  batchSize,
			totalSize:  fileSizeBytes,
		})
	}
	return &FileStreamer{readers: readers, batchSize: batchSize}, nil
}

// Next implements LabelSource.
func (s *FileStreamer) Next() (Batch, bool, error) {
	for s.idx < len(s.readers) {
		b, ok, err := s.readers[s.idx].next()
		if err != nil {
			return Batch{}, false, err
		}
		if ok {
			return b, true, nil
		}
		lr := s.readers[s.idx].reader.(*lazyReader)
		lr.dropCache()
		lr.Close()
		s.idx++
	}
	return Batch{}, false, nil
}

// Close releases any open file handles.
func (s *FileStreamer) Close() error {
	for _, r := range s.readers {
		r.reader.(*lazyReader).Close()
	}
	return nil
}

// MemorySource is an in-memory LabelSource, used by streamer tests to
// mock the on-disk layout without touching the filesystem.
type MemorySource struct {
	batches []Batch
	idx     int
}

// NewMemorySource builds a LabelSource that replays the given batches in
// order.
func NewMemorySource(batches []Batch) *MemorySource {
	return &MemorySource{batches: batches}
}

// Next implements LabelSource.
func (m *MemorySource) Next() (Batch, bool, error) {
	if m.idx >= len(m.batches) {
		return Batch{}, false, nil
	}
	b := m.batches[m.idx]
	m.idx++
	return b, true, nil
}
