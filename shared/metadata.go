package shared

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// MetadataFileName is the name of the JSON sidecar written alongside the
// label files.
const MetadataFileName = "postdata_metadata.json"

// PostMetadata is the JSON sidecar persisted once by the initializer and
// read-only afterwards. Field names are PascalCase on the wire; []byte
// fields base64-encode automatically under encoding/json.
type PostMetadata struct {
	NodeId          []byte `json:"NodeId"`
	CommitmentAtxId []byte `json:"CommitmentAtxId"`
	LabelsPerUnit   uint64 `json:"LabelsPerUnit"`
	NumUnits        uint32 `json:"NumUnits"`
	MaxFileSize     uint64 `json:"MaxFileSize"`
	Nonce           *uint64 `json:"Nonce,omitempty"`
	LastPosition    *uint64 `json:"LastPosition,omitempty"`
}

// NumLabels returns the total label count committed to by this metadata.
func (m *PostMetadata) NumLabels() uint64 {
	return uint64(m.NumUnits) * m.LabelsPerUnit
}

// ProofMetadata carries a PostMetadata's identity fields plus the
// challenge presented to the prover for one proving session.
type ProofMetadata struct {
	NodeId          []byte
	CommitmentAtxId []byte
	Challenge       []byte
	NumUnits        uint32
	LabelsPerUnit   uint64
}

// NumLabels returns the total label count this proof was generated over.
func (m *ProofMetadata) NumLabels() uint64 {
	return uint64(m.NumUnits) * m.LabelsPerUnit
}

// LoadMetadata reads and decodes the metadata sidecar from datadir.
func LoadMetadata(datadir string) (*PostMetadata, error) {
	path := filepath.Join(datadir, MetadataFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewInitIOError("reading metadata", err)
	}
	var m PostMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, NewInitIOError("decoding metadata", err)
	}
	return &m, nil
}

// SaveMetadata writes the metadata sidecar to datadir, overwriting any
// previous contents.
func SaveMetadata(datadir string, m *PostMetadata) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return NewInitIOError("encoding metadata", err)
	}
	path := filepath.Join(datadir, MetadataFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return NewInitIOError("writing metadata", err)
	}
	return nil
}

// InitFileName returns the name of the Nth label file.
func InitFileName(n int) string {
	return fmt.Sprintf("postdata_%d.bin", n)
}
