// Package initialization implements the initializer: splitting a label
// range into postdata_N.bin files, driving the label generator across
// each, optionally searching for a VRF nonce, and persisting the
// metadata sidecar.
package initialization

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/spacemeshos/post-core/config"
	"github.com/spacemeshos/post-core/oracle"
	"github.com/spacemeshos/post-core/persistence"
	"github.com/spacemeshos/post-core/shared"
)

// CPUProviderID is the provider ID selecting the CPU scrypt
// implementation, re-exported for convenience.
const CPUProviderID = config.CPUProviderID

var (
	// ErrAlreadyInitializing is returned by Initialize when another call
	// is already running on the same Initializer.
	ErrAlreadyInitializing = fmt.Errorf("already initializing")
	// ErrNonceNotFound is returned when a VRF difficulty was configured
	// but no label in the committed range fell below it.
	ErrNonceNotFound = fmt.Errorf("nonce not found")
)

type option struct {
	nodeID          []byte
	commitmentAtxID []byte
	cfg             *config.InitConfig
	opts            *config.InitOpts
	logger          shared.Logger
}

func (o *option) validate() error {
	if len(o.nodeID) != 32 {
		return shared.NewInvalidArgumentError("node id must be 32 bytes")
	}
	if len(o.commitmentAtxID) != 32 {
		return shared.NewInvalidArgumentError("commitment atx id must be 32 bytes")
	}
	if o.cfg == nil {
		return shared.NewInvalidArgumentError("no config provided")
	}
	if o.opts == nil {
		return shared.NewInvalidArgumentError("no init options provided")
	}
	return config.Validate(*o.cfg, *o.opts)
}

// Option configures an Initializer.
type Option func(*option)

// WithNodeID sets the 32-byte node identity labels are committed to.
func WithNodeID(id []byte) Option { return func(o *option) { o.nodeID = id } }

// WithCommitmentATXID sets the 32-byte commitment ATX id.
func WithCommitmentATXID(id []byte) Option { return func(o *option) { o.commitmentAtxID = id } }

// WithConfig sets the network-wide init config.
func WithConfig(cfg config.InitConfig) Option { return func(o *option) { o.cfg = &cfg } }

// WithInitOpts sets the per-node init options.
func WithInitOpts(opts config.InitOpts) Option { return func(o *option) { o.opts = &opts } }

// WithLogger sets the logger used for progress messages.
func WithLogger(logger shared.Logger) Option { return func(o *option) { o.logger = logger } }

// Initializer drives one data directory's label generation.
type Initializer struct {
	nodeID          []byte
	commitmentAtxID []byte
	commitment      []byte

	cfg  config.InitConfig
	opts config.InitOpts

	nonceValue   []byte
	nonce        atomic.Pointer[uint64]
	lastPosition atomic.Pointer[uint64]

	numLabelsWritten atomic.Uint64
	diskState        *persistence.DiskState
	mtx              sync.Mutex

	logger shared.Logger
}

// New builds an Initializer from options, loading and validating any
// metadata left behind by a previous, partial run over the same data
// directory.
func New(opts ...Option) (*Initializer, error) {
	o := &option{logger: shared.DisabledLogger()}
	for _, apply := range opts {
		apply(o)
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(o.opts.DataDir, 0o755); err != nil {
		return nil, shared.NewInitIOError("creating data directory", err)
	}

	init := &Initializer{
		nodeID:          o.nodeID,
		commitmentAtxID: o.commitmentAtxID,
		commitment:      oracle.CommitmentBytes(o.nodeID, o.commitmentAtxID),
		cfg:             *o.cfg,
		opts:            *o.opts,
		diskState:       persistence.NewDiskState(o.opts.DataDir),
		logger:          o.logger,
	}

	numLabelsWritten, err := init.diskState.NumLabelsWritten()
	if err != nil {
		return nil, shared.NewInitIOError("reading disk state", err)
	}
	if numLabelsWritten > 0 {
		m, err := shared.LoadMetadata(init.opts.DataDir)
		if err != nil {
			return nil, err
		}
		if err := init.verifyMetadata(m); err != nil {
			return nil, err
		}
		init.nonce.Store(m.Nonce)
		init.lastPosition.Store(m.LastPosition)
	}
	if err := init.saveMetadata(); err != nil {
		return nil, err
	}
	return init, nil
}

// Commitment returns the 32-byte commitment labels are derived from.
func (init *Initializer) Commitment() []byte { return init.commitment }

// NumLabelsWritten reports how many labels have been written so far,
// usable for progress reporting while Initialize runs concurrently.
func (init *Initializer) NumLabelsWritten() uint64 { return init.numLabelsWritten.Load() }

// Nonce returns the VRF nonce found so far, or nil.
func (init *Initializer) Nonce() *uint64 { return init.nonce.Load() }

// Initialize runs (or resumes) label generation to completion, writing
// postdata_N.bin files and the metadata sidecar. Only one Initialize call
// may run at a time per Initializer. Returns ErrNonceNotFound (alongside
// a valid, fully-written PostMetadata) when a VRF difficulty was
// configured but no qualifying label was found.
func (init *Initializer) Initialize(ctx context.Context) (*shared.PostMetadata, error) {
	if !init.mtx.TryLock() {
		return nil, ErrAlreadyInitializing
	}
	defer init.mtx.Unlock()

	layout := deriveFilesLayout(init.cfg, init.opts)
	init.logger.Info("initialization started")

	work, err := oracle.New(
		oracle.WithProviderID(uint(init.opts.ProviderID)),
		oracle.WithCommitment(init.commitment),
		oracle.WithVRFDifficulty(init.opts.VRFDifficulty),
		oracle.WithScryptParams(init.cfg.Scrypt),
		oracle.WithLogger(init.logger),
	)
	if err != nil {
		return nil, err
	}
	defer work.Close()

	batchSize := init.opts.ComputeBatchSize
	if batchSize == 0 {
		batchSize = persistence.DefaultBatchSize / 16
	}

	for i := uint(0); i < layout.NumFiles; i++ {
		fileOffset := uint64(i) * layout.FileNumLabels
		fileNumLabels := layout.FileNumLabels
		if i == layout.NumFiles-1 {
			fileNumLabels = layout.LastFileNumLabels
		}
		if err := init.initFile(ctx, work, int(i), batchSize, fileOffset, fileNumLabels); err != nil {
			return nil, err
		}
	}

	meta, err := init.metadata()
	if err != nil {
		return nil, err
	}
	if init.opts.VRFDifficulty != nil && init.nonce.Load() == nil {
		return meta, ErrNonceNotFound
	}
	return meta, nil
}

// initFile writes (or resumes) a single postdata_N.bin file, batch by
// batch, tracking the best VRF nonce candidate seen so far.
func (init *Initializer) initFile(ctx context.Context, work *oracle.WorkOracle, fileIndex int, batchSize uint64, fileOffset, fileNumLabels uint64) error {
	writer, err := persistence.NewLabelsWriter(init.opts.DataDir, fileIndex)
	if err != nil {
		return err
	}
	defer writer.Close()

	numLabelsWritten, err := writer.NumLabelsWritten()
	if err != nil {
		return err
	}

	switch {
	case numLabelsWritten == fileNumLabels:
		init.numLabelsWritten.Add(fileNumLabels)
		return nil
	case numLabelsWritten > fileNumLabels:
		// A previous run with different params left a longer file;
		// truncate it back to this run's boundary before resuming.
		if err := writer.Truncate(fileNumLabels); err != nil {
			return err
		}
		numLabelsWritten = fileNumLabels
		init.numLabelsWritten.Add(fileNumLabels)
		return nil
	}

	// Drop any partial trailing label a crashed run left behind, so new
	// labels are appended on a label boundary.
	if err := writer.Truncate(numLabelsWritten); err != nil {
		return err
	}

	for pos := numLabelsWritten; pos < fileNumLabels; pos += batchSize {
		select {
		case <-ctx.Done():
			_ = writer.Flush()
			return shared.ErrCancelled
		default:
		}

		count := batchSize
		if remaining := fileNumLabels - pos; remaining < count {
			count = remaining
		}
		start := fileOffset + pos
		end := start + count - 1

		res, err := work.Positions(start, end)
		if err != nil {
			return err
		}
		if res.Nonce != nil {
			candidate := res.Output[(*res.Nonce-start)*16 : (*res.Nonce-start)*16+16]
			if init.nonceValue == nil || bytes.Compare(candidate, init.nonceValue) < 0 {
				value := make([]byte, 16)
				copy(value, candidate)
				init.nonceValue = value
				nonce := *res.Nonce
				init.nonce.Store(&nonce)
				if err := init.saveMetadata(); err != nil {
					return err
				}
			}
		}
		if err := writer.Write(res.Output); err != nil {
			return err
		}
		init.numLabelsWritten.Add(count)
	}
	return writer.Flush()
}

func (init *Initializer) metadata() (*shared.PostMetadata, error) {
	m := &shared.PostMetadata{
		NodeId:          init.nodeID,
		CommitmentAtxId: init.commitmentAtxID,
		LabelsPerUnit:   init.cfg.LabelsPerUnit,
		NumUnits:        init.opts.NumUnits,
		MaxFileSize:     init.opts.MaxFileSize,
		Nonce:           init.nonce.Load(),
		LastPosition:    init.lastPosition.Load(),
	}
	if err := shared.SaveMetadata(init.opts.DataDir, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (init *Initializer) saveMetadata() error {
	_, err := init.metadata()
	return err
}

func (init *Initializer) verifyMetadata(m *shared.PostMetadata) error {
	if !bytes.Equal(init.nodeID, m.NodeId) {
		return shared.ConfigMismatchError{
			Param: "NodeId", Expected: fmt.Sprintf("%x", init.nodeID),
			Found: fmt.Sprintf("%x", m.NodeId), DataDir: init.opts.DataDir,
		}
	}
	if !bytes.Equal(init.commitmentAtxID, m.CommitmentAtxId) {
		return shared.ConfigMismatchError{
			Param: "CommitmentAtxId", Expected: fmt.Sprintf("%x", init.commitmentAtxID),
			Found: fmt.Sprintf("%x", m.CommitmentAtxId), DataDir: init.opts.DataDir,
		}
	}
	if init.cfg.LabelsPerUnit != m.LabelsPerUnit {
		return shared.ConfigMismatchError{
			Param: "LabelsPerUnit", Expected: fmt.Sprintf("%d", init.cfg.LabelsPerUnit),
			Found: fmt.Sprintf("%d", m.LabelsPerUnit), DataDir: init.opts.DataDir,
		}
	}
	if init.opts.MaxFileSize != m.MaxFileSize {
		return shared.ConfigMismatchError{
			Param: "MaxFileSize", Expected: fmt.Sprintf("%d", init.opts.MaxFileSize),
			Found: fmt.Sprintf("%d", m.MaxFileSize), DataDir: init.opts.DataDir,
		}
	}
	if init.opts.NumUnits != m.NumUnits {
		return shared.ConfigMismatchError{
			Param: "NumUnits", Expected: fmt.Sprintf("%d", init.opts.NumUnits),
			Found: fmt.Sprintf("%d", m.NumUnits), DataDir: init.opts.DataDir,
		}
	}
	return nil
}
