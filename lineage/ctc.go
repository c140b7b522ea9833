package lineage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExportManifest describes a finished CTC export.
type ExportManifest struct {
	RunID      uuid.UUID `json:"run_id"`
	OutputDir  string    `json:"output_dir"`
	TrackTable string    `json:"track_table"`
	// Mask files in frame order
	Masks      []string `json:"masks"`
	FrameCount int      `json:"frame_count"`
	TrackCount int      `json:"track_count"`
	// Objects present in the label store that no track refers to. They are written as background.
	UntrackedObjects int       `json:"untracked_objects"`
	CreatedAt        time.Time `json:"created_at"`
}

// CTCExporter writes the lineage graph as track table plus relabeled masks.
type CTCExporter struct {
	cfg    ExportConfig
	logger *zap.Logger
}

// ExporterOption configures CTCExporter
type ExporterOption func(*CTCExporter)

// WithLogger sets logger for export progress
func WithLogger(logger *zap.Logger) ExporterOption {
	return func(e *CTCExporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewCTCExporter creates new instance of CTCExporter
func NewCTCExporter(cfg ExportConfig, opts ...ExporterOption) *CTCExporter {
	if cfg.Workers < 1 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.MinPadWidth < 1 {
		cfg.MinPadWidth = 3
	}
	exporter := &CTCExporter{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(exporter)
	}
	return exporter
}

// Export validates the graph against the label store and writes man_track.txt and one
// mask per frame into outputDir. Nothing is left in outputDir when an error is returned.
func (e *CTCExporter) Export(ctx context.Context, graph *Graph, store LabelStore, outputDir string) (*ExportManifest, error) {
	if err := CheckConsistency(graph, store); err != nil {
		return nil, err
	}
	frameCount := store.FrameCount()
	padWidth := PadWidth(frameCount, e.cfg.MinPadWidth)

	session, err := acquireOutput(outputDir, e.logger)
	if err != nil {
		return nil, err
	}
	defer session.release()

	names := make([]string, 0, frameCount+1)
	if err := session.writeFile(TrackTableName, func(w io.Writer) error {
		return WriteTrackTable(w, graph)
	}); err != nil {
		return nil, err
	}
	names = append(names, TrackTableName)

	maskNames := make([]string, frameCount)
	untracked := make([]int, frameCount)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.cfg.Workers)
	for frame := 0; frame < frameCount; frame++ {
		maskNames[frame] = MaskFileName(frame, padWidth)
		frame := frame
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			relabeled, lost, err := RelabelFrame(graph, store, frame)
			if err != nil {
				return err
			}
			untracked[frame] = lost
			return session.writeFile(maskNames[frame], func(w io.Writer) error {
				return EncodeLabelImage(w, relabeled, e.cfg.Compress)
			})
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	names = append(names, maskNames...)

	if err := session.commit(names); err != nil {
		return nil, err
	}

	manifest := &ExportManifest{
		RunID:      uuid.New(),
		OutputDir:  outputDir,
		TrackTable: filepath.Join(outputDir, TrackTableName),
		Masks:      make([]string, frameCount),
		FrameCount: frameCount,
		TrackCount: graph.Len(),
		CreatedAt:  time.Now().UTC(),
	}
	for i, name := range maskNames {
		manifest.Masks[i] = filepath.Join(outputDir, name)
		manifest.UntrackedObjects += untracked[i]
	}
	e.logger.Info("CTC export committed",
		zap.String("dir", outputDir),
		zap.Int("frames", frameCount),
		zap.Int("tracks", manifest.TrackCount),
		zap.Int("untracked_objects", manifest.UntrackedObjects))
	return manifest, nil
}

// CheckConsistency verifies every detection of the graph lies inside the store's frame
// range and refers to a non-empty label. Track ids must also fit 16-bit masks.
func CheckConsistency(graph *Graph, store LabelStore) error {
	frameCount := store.FrameCount()
	for _, track := range graph.tracks {
		for offset, label := range track.Labels {
			frame := track.StartFrame + offset
			if frame >= frameCount {
				return &ConsistencyError{Frame: frame, SourceLabel: label, Reason: ReasonFrameOutOfRange}
			}
			img, err := store.Frame(frame)
			if err != nil {
				return &ConsistencyError{Frame: frame, SourceLabel: label, Reason: err.Error()}
			}
			if _, ok := img.Region(label); !ok {
				return &ConsistencyError{Frame: frame, SourceLabel: label, Reason: ReasonEmptyFootprint}
			}
			if track.ID > math.MaxUint16 {
				return &ConsistencyError{Frame: frame, SourceLabel: label, Reason: ReasonLabelOverflow}
			}
		}
	}
	return nil
}

// RelabelFrame returns copy of the frame where every tracked object carries its track id.
// Objects no track refers to become background; their number is returned as well.
func RelabelFrame(graph *Graph, store LabelStore, frame int) (*LabelImage, int, error) {
	img, err := store.Frame(frame)
	if err != nil {
		return nil, 0, err
	}
	lookup := make(map[uint32]uint32)
	for _, det := range graph.DetectionsInFrame(frame) {
		lookup[det.SourceLabel] = uint32(det.LineageID)
	}
	untracked := 0
	for _, label := range img.ObjectLabels() {
		if _, ok := lookup[label]; !ok {
			untracked++
		}
	}
	out := NewLabelImage(img.Width, img.Height)
	for i, label := range img.Labels {
		if label == 0 {
			continue
		}
		out.Labels[i] = lookup[label]
	}
	return out, untracked, nil
}

// WriteTrackTable writes one "track_id start_frame end_frame parent_track_id" line per track.
// Parent 0 means no parent.
func WriteTrackTable(w io.Writer, graph *Graph) error {
	bw := bufio.NewWriter(w)
	for _, track := range graph.tracks {
		parent := TrackID(0)
		if track.HasParent {
			parent = track.ParentID
		}
		if _, err := fmt.Fprintf(bw, "%d %d %d %d\n", track.ID, track.StartFrame, track.EndFrame, parent); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// PadWidth returns number of digits used in mask names for the frame count
func PadWidth(frameCount, minWidth int) int {
	width := len(strconv.Itoa(max(frameCount-1, 0)))
	return max(width, minWidth)
}

// MaskFileName returns relabeled mask name for the frame
func MaskFileName(frame, padWidth int) string {
	return fmt.Sprintf("%s%0*d%s", MaskPrefix, padWidth, frame, MaskExt)
}

// outputSession stages export files in a temporary directory next to the output
// directory and moves them in on commit. Anything moved before a failed commit
// is removed again and overwritten files are restored.
type outputSession struct {
	dir        string
	staging    string
	backup     string
	createdDir bool
	moved      []string
	backedUp   []string
	committed  bool
	logger     *zap.Logger
}

func acquireOutput(dir string, logger *zap.Logger) (*outputSession, error) {
	dir = filepath.Clean(dir)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, &IOError{Op: "create", Path: parent, Err: errors.Wrap(err, "Can't create parent of output directory")}
	}
	staging, err := os.MkdirTemp(parent, ".lineage-export-*")
	if err != nil {
		return nil, &IOError{Op: "create", Path: parent, Err: errors.Wrap(err, "Can't create staging directory")}
	}
	return &outputSession{
		dir:     dir,
		staging: staging,
		backup:  filepath.Join(staging, ".backup"),
		logger:  logger,
	}, nil
}

func (s *outputSession) writeFile(name string, write func(w io.Writer) error) error {
	path := filepath.Join(s.staging, name)
	f, err := os.Create(path)
	if err != nil {
		return &IOError{Op: "create", Path: path, Err: err}
	}
	bw := bufio.NewWriter(f)
	if err := write(bw); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: path, Err: errors.Wrapf(err, "Can't write %s", name)}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return &IOError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &IOError{Op: "close", Path: path, Err: err}
	}
	return nil
}

func (s *outputSession) commit(names []string) error {
	info, err := os.Stat(s.dir)
	switch {
	case os.IsNotExist(err):
		if err := os.Mkdir(s.dir, 0o755); err != nil {
			return &IOError{Op: "create", Path: s.dir, Err: err}
		}
		s.createdDir = true
	case err != nil:
		return &IOError{Op: "stat", Path: s.dir, Err: err}
	case !info.IsDir():
		return &IOError{Op: "create", Path: s.dir, Err: errors.New("output path exists and is not a directory")}
	}

	// Masks and res_track.txt of an earlier export that this one does not overwrite
	// are moved aside too.
	stale, err := s.staleFiles(names)
	if err != nil {
		return err
	}
	for _, name := range stale {
		if err := s.backupFile(name); err != nil {
			return err
		}
	}

	for _, name := range names {
		target := filepath.Join(s.dir, name)
		if _, err := os.Lstat(target); err == nil {
			if err := s.backupFile(name); err != nil {
				return err
			}
		}
		if err := os.Rename(filepath.Join(s.staging, name), target); err != nil {
			return &IOError{Op: "move", Path: target, Err: err}
		}
		s.moved = append(s.moved, name)
	}
	s.committed = true
	return nil
}

// staleFiles lists export artifacts in the output directory that are not part of names
func (s *outputSession) staleFiles(names []string) ([]string, error) {
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		keep[name] = true
	}
	matches, err := filepath.Glob(filepath.Join(s.dir, MaskPrefix+"*"+MaskExt))
	if err != nil {
		return nil, &IOError{Op: "list", Path: s.dir, Err: err}
	}
	if _, err := os.Lstat(filepath.Join(s.dir, ResultTrackTableName)); err == nil {
		matches = append(matches, filepath.Join(s.dir, ResultTrackTableName))
	}
	stale := make([]string, 0)
	for _, path := range matches {
		name := filepath.Base(path)
		if !keep[name] {
			stale = append(stale, name)
		}
	}
	sort.Strings(stale)
	return stale, nil
}

// backupFile moves existing output file into the backup directory. It is restored on rollback
// and removed together with the staging directory otherwise.
func (s *outputSession) backupFile(name string) error {
	if err := os.MkdirAll(s.backup, 0o755); err != nil {
		return &IOError{Op: "backup", Path: s.backup, Err: err}
	}
	target := filepath.Join(s.dir, name)
	if err := os.Rename(target, filepath.Join(s.backup, name)); err != nil {
		return &IOError{Op: "backup", Path: target, Err: err}
	}
	s.backedUp = append(s.backedUp, name)
	return nil
}

// release rolls back an uncommitted session and removes the staging directory
func (s *outputSession) release() {
	if !s.committed {
		for _, name := range s.moved {
			_ = os.Remove(filepath.Join(s.dir, name))
		}
		for _, name := range s.backedUp {
			_ = os.Rename(filepath.Join(s.backup, name), filepath.Join(s.dir, name))
		}
		if s.createdDir {
			_ = os.Remove(s.dir)
		}
		s.logger.Warn("CTC export rolled back", zap.String("dir", s.dir), zap.Int("files_removed", len(s.moved)))
	}
	if err := os.RemoveAll(s.staging); err != nil {
		s.logger.Warn("Can't remove staging directory", zap.String("dir", s.staging), zap.Error(err))
	}
}
