package persistence

import (
	"os"
	"path/filepath"
)

// DiskState reports how much of a data directory's label set has already
// been written, so an Initializer can resume.
type DiskState struct {
	datadir string
}

// NewDiskState returns a DiskState for datadir.
func NewDiskState(datadir string) *DiskState {
	return &DiskState{datadir: datadir}
}

// NumLabelsWritten sums the label count across every postdata_N.bin file
// present in the data directory.
func (d *DiskState) NumLabelsWritten() (uint64, error) {
	files, err := PosFiles(d.datadir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var total uint64
	for _, f := range files {
		info, err := os.Stat(filepath.Join(d.datadir, f))
		if err != nil {
			return 0, err
		}
		total += uint64(info.Size()) / labelSize
	}
	return total, nil
}

// NumFilesWritten returns how many postdata_N.bin files currently exist.
func (d *DiskState) NumFilesWritten() (int, error) {
	files, err := PosFiles(d.datadir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return len(files), nil
}
