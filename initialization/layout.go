package initialization

import "github.com/spacemeshos/post-core/config"

// filesLayout describes how a label range splits across postdata_N.bin
// files: every file but the last holds exactly FileNumLabels labels.
type filesLayout struct {
	NumFiles          uint
	FileNumLabels     uint64
	LastFileNumLabels uint64
}

// deriveFilesLayout computes the file layout for cfg/opts's label range.
func deriveFilesLayout(cfg config.InitConfig, opts config.InitOpts) filesLayout {
	numLabels := uint64(opts.NumUnits) * cfg.LabelsPerUnit
	fileNumLabels := opts.MaxFileSize

	numFiles := uint(1)
	if fileNumLabels > 0 && numLabels > fileNumLabels {
		numFiles = uint((numLabels + fileNumLabels - 1) / fileNumLabels)
	}

	lastFileNumLabels := numLabels - uint64(numFiles-1)*fileNumLabels
	return filesLayout{
		NumFiles:          numFiles,
		FileNumLabels:     fileNumLabels,
		LastFileNumLabels: lastFileNumLabels,
	}
}
