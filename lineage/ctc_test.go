package lineage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exportFixture(t *testing.T) (*Graph, *MemoryLabelStore, string, *ExportManifest) {
	t.Helper()
	store, detections := divisionFixture(t)
	graph := mustBuild(t, detections)
	dir := filepath.Join(t.TempDir(), "result")
	manifest, err := NewCTCExporter(ExportConfig{Workers: 2}).Export(context.Background(), graph, store, dir)
	require.NoError(t, err)
	return graph, store, dir, manifest
}

func TestWriteTrackTable(t *testing.T) {
	graph := mustBuild(t, []Detection{
		NewDetection(0, 1, 1),
		NewDetection(1, 1, 2).WithParent(1),
		NewDetection(1, 2, 3).WithParent(1),
		NewDetection(2, 1, 2),
	})
	var buf bytes.Buffer
	require.NoError(t, WriteTrackTable(&buf, graph))
	assert.Equal(t, "1 0 0 0\n2 1 2 1\n3 1 1 1\n", buf.String())
}

func TestCTCExportLayout(t *testing.T) {
	_, _, dir, manifest := exportFixture(t)

	assert.Equal(t, 4, manifest.FrameCount)
	assert.Equal(t, 5, manifest.TrackCount)
	assert.Equal(t, 0, manifest.UntrackedObjects)
	assert.Equal(t, filepath.Join(dir, TrackTableName), manifest.TrackTable)
	require.Len(t, manifest.Masks, 4)
	assert.Equal(t, filepath.Join(dir, "man_track000.tif"), manifest.Masks[0])
	assert.Equal(t, filepath.Join(dir, "man_track003.tif"), manifest.Masks[3])

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.ElementsMatch(t, []string{"man_track.txt", "man_track000.tif", "man_track001.tif", "man_track002.tif", "man_track003.tif"}, names)

	// no staging leftovers next to the output
	siblings, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, siblings, 1)
}

func TestCTCExportRelabelsMasks(t *testing.T) {
	store, _ := fixture(t, [][]obj{
		{{label: 7, track: 3}, {label: 9, track: 0}},
	})
	graph := mustBuild(t, []Detection{NewDetection(0, 7, 3)})
	dir := filepath.Join(t.TempDir(), "out")
	manifest, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, dir)
	require.NoError(t, err)
	assert.Equal(t, 1, manifest.UntrackedObjects)

	img, err := ReadLabelImage(manifest.Masks[0])
	require.NoError(t, err)
	x, y := squareOrigin(7)
	assert.Equal(t, uint32(3), img.At(x, y))
	assert.Equal(t, uint32(3), img.At(x+1, y+1))
	ux, uy := squareOrigin(9)
	assert.Equal(t, uint32(0), img.At(ux, uy))
	assert.Equal(t, []uint32{3}, img.ObjectLabels())
	assert.Equal(t, uint32(0), img.At(fixtureSize-1, fixtureSize-1))
}

func TestCTCRoundTrip(t *testing.T) {
	graph, _, dir, _ := exportFixture(t)

	records, err := ReadTrackTable(filepath.Join(dir, TrackTableName))
	require.NoError(t, err)
	if diff := cmp.Diff(TrackRecords(graph), records); diff != "" {
		t.Fatalf("track table mismatch (-want +got):\n%s", diff)
	}

	reloaded, store, err := LoadCTC(dir, MaskPrefix+"*"+MaskExt)
	require.NoError(t, err)
	assert.Equal(t, 4, store.FrameCount())
	assert.Equal(t, graph.TrackIDs(), reloaded.TrackIDs())
	assert.Equal(t, graph.Edges(), reloaded.Edges())
	if diff := cmp.Diff(TrackRecords(graph), TrackRecords(reloaded)); diff != "" {
		t.Fatalf("reloaded graph differs (-want +got):\n%s", diff)
	}
}

func TestLoadCTCPrefersResultTable(t *testing.T) {
	_, _, dir, _ := exportFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultTrackTableName), []byte("1 0 9 0\n"), 0o644))

	_, _, err := LoadCTC(dir, MaskPrefix+"*"+MaskExt)
	var consistency *ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, uint32(1), consistency.SourceLabel)
}

func TestLoadCTCResultFolderMasks(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultTrackTableName), []byte("1 0 1 0\n"), 0o644))
	for frame := 0; frame < 2; frame++ {
		f, err := os.Create(filepath.Join(dir, fmt.Sprintf("mask%03d.tif", frame)))
		require.NoError(t, err)
		require.NoError(t, EncodeLabelImage(f, countFrame(1), false))
		require.NoError(t, f.Close())
	}

	graph, store, err := LoadCTC(dir, "")
	require.NoError(t, err)
	assert.Equal(t, 2, store.FrameCount())
	track, ok := graph.Track(1)
	require.True(t, ok)
	assert.Equal(t, 1, track.EndFrame)

	assert.Equal(t, "mask*.tif", MaskPatternFor(filepath.Join(dir, ResultTrackTableName)))
	assert.Equal(t, "man_track*.tif", MaskPatternFor(filepath.Join(dir, TrackTableName)))
}

func TestCTCExportConsistencyFailureWritesNothing(t *testing.T) {
	store, _ := fixture(t, [][]obj{
		{{label: 1, track: 1}},
		{{label: 1, track: 1}},
	})
	graph := mustBuild(t, []Detection{
		NewDetection(0, 1, 1),
		NewDetection(1, 1, 1),
		NewDetection(1, 6, 2),
	})
	dir := filepath.Join(t.TempDir(), "result")
	manifest, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, dir)
	assert.Nil(t, manifest)
	var consistency *ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, 1, consistency.Frame)
	assert.Equal(t, uint32(6), consistency.SourceLabel)
	assert.Equal(t, ReasonEmptyFootprint, consistency.Reason)
	assert.NoDirExists(t, dir)
}

func TestCTCExportRejectsFramesOutsideStore(t *testing.T) {
	store := NewMemoryLabelStore(countFrame(20), countFrame(22), countFrame(18))
	graph := mustBuild(t, []Detection{
		NewDetection(2, 1, 1),
		NewDetection(3, 1, 1),
	})
	dir := filepath.Join(t.TempDir(), "result")
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, dir)
	var consistency *ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, 3, consistency.Frame)
	assert.Equal(t, ReasonFrameOutOfRange, consistency.Reason)
	assert.NoDirExists(t, dir)
}

func TestCTCExportKeepsPreviousResultOnFailure(t *testing.T) {
	dir := t.TempDir()
	previous := []byte("1 0 0 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, TrackTableName), previous, 0o644))

	store := NewMemoryLabelStore(countFrame(1))
	graph := mustBuild(t, []Detection{NewDetection(0, 2, 1)})
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, dir)
	require.Error(t, err)

	data, err := os.ReadFile(filepath.Join(dir, TrackTableName))
	require.NoError(t, err)
	assert.Equal(t, previous, data)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestCTCExportOverwritesPreviousResult(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, TrackTableName), []byte("9 0 0 0\n"), 0o644))

	store := NewMemoryLabelStore(countFrame(1))
	graph := mustBuild(t, []Detection{NewDetection(0, 1, 1)})
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, dir)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, TrackTableName))
	require.NoError(t, err)
	assert.Equal(t, "1 0 0 0\n", string(data))
}

func singleTrackExport(t *testing.T, dir string, frames int) {
	t.Helper()
	images := make([]*LabelImage, frames)
	detections := make([]Detection, frames)
	for f := range images {
		images[f] = countFrame(1)
		detections[f] = NewDetection(f, 1, 1)
	}
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), mustBuild(t, detections), NewMemoryLabelStore(images...), dir)
	require.NoError(t, err)
}

func TestCTCExportRemovesStaleMasks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "result")
	singleTrackExport(t, dir, 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ResultTrackTableName), []byte("1 0 4 0\n"), 0o644))

	singleTrackExport(t, dir, 3)

	masks, err := filepath.Glob(filepath.Join(dir, "man_track*.tif"))
	require.NoError(t, err)
	assert.Len(t, masks, 3)
	assert.NoFileExists(t, filepath.Join(dir, ResultTrackTableName))

	graph, store, err := LoadCTC(dir, "man_track*.tif")
	require.NoError(t, err)
	assert.Equal(t, 3, store.FrameCount())
	track, ok := graph.Track(1)
	require.True(t, ok)
	assert.Equal(t, 2, track.EndFrame)
}

func TestCTCExportCancelledKeepsPreviousMasks(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "result")
	singleTrackExport(t, dir, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := NewMemoryLabelStore(countFrame(1))
	_, err := NewCTCExporter(DefaultExportConfig()).Export(ctx, mustBuild(t, []Detection{NewDetection(0, 1, 1)}), store, dir)
	require.Error(t, err)

	masks, err := filepath.Glob(filepath.Join(dir, "man_track*.tif"))
	require.NoError(t, err)
	assert.Len(t, masks, 5)
}

func TestCTCExportIOError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	store := NewMemoryLabelStore(countFrame(1))
	graph := mustBuild(t, []Detection{NewDetection(0, 1, 1)})
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, filepath.Join(blocker, "nested", "out"))
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Contains(t, ioErr.Path, "blocker")
}

func TestCTCExportOutputIsFile(t *testing.T) {
	target := filepath.Join(t.TempDir(), "result")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	store := NewMemoryLabelStore(countFrame(1))
	graph := mustBuild(t, []Detection{NewDetection(0, 1, 1)})
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, target)
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, target, ioErr.Path)
	assert.FileExists(t, target)
	siblings, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, siblings, 1)
}

func TestCTCExportCancelled(t *testing.T) {
	store, detections := divisionFixture(t)
	graph := mustBuild(t, detections)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dir := filepath.Join(t.TempDir(), "result")
	_, err := NewCTCExporter(ExportConfig{Workers: 1}).Export(ctx, graph, store, dir)
	require.ErrorIs(t, err, context.Canceled)
	assert.NoDirExists(t, dir)
}

func TestCTCExportRejectsLargeTrackIDs(t *testing.T) {
	store := NewMemoryLabelStore(countFrame(1))
	graph := mustBuild(t, []Detection{NewDetection(0, 1, 70000)})
	_, err := NewCTCExporter(DefaultExportConfig()).Export(context.Background(), graph, store, filepath.Join(t.TempDir(), "out"))
	var consistency *ConsistencyError
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, ReasonLabelOverflow, consistency.Reason)
}

func TestPadWidth(t *testing.T) {
	assert.Equal(t, 3, PadWidth(0, 3))
	assert.Equal(t, 3, PadWidth(1000, 3))
	assert.Equal(t, 4, PadWidth(1001, 3))
	assert.Equal(t, 5, PadWidth(10, 5))
	assert.Equal(t, "man_track0042.tif", MaskFileName(42, 4))
}

func TestParseTrackTable(t *testing.T) {
	records, err := ParseTrackTable(bytes.NewBufferString("1 0 4 0\n\n  2 5 9 1  \n"))
	require.NoError(t, err)
	assert.Equal(t, []TrackRecord{
		{ID: 1, StartFrame: 0, EndFrame: 4, Parent: 0},
		{ID: 2, StartFrame: 5, EndFrame: 9, Parent: 1},
	}, records)

	_, err = ParseTrackTable(bytes.NewBufferString("1 0 4\n"))
	assert.Error(t, err)
	_, err = ParseTrackTable(bytes.NewBufferString("1 0 x 0\n"))
	assert.Error(t, err)
}
