package lineage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssignments(t *testing.T) {
	input := "frame,label,track_id,parent_id\n0,1,1,0\n1,2,2,1\n1,3,3,\n2,3,3\n"
	detections, err := ParseAssignments(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, detections, 4)
	assert.Equal(t, NewDetection(0, 1, 1), detections[0])
	assert.Equal(t, NewDetection(1, 2, 2).WithParent(1), detections[1])
	assert.Equal(t, NewDetection(1, 3, 3), detections[2])
	assert.Equal(t, NewDetection(2, 3, 3), detections[3])
}

func TestParseAssignmentsErrors(t *testing.T) {
	cases := map[string]string{
		"columns":   "0,1\n",
		"frame":     "x,1,1\n",
		"label":     "0,-1,1\n",
		"track":     "0,1,one\n",
		"parent_id": "0,1,1,p\n",
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseAssignments(strings.NewReader(input))
			assert.Error(t, err)
		})
	}
}

func TestWriteAssignmentsRoundTrip(t *testing.T) {
	_, detections := divisionFixture(t)
	var buf bytes.Buffer
	require.NoError(t, WriteAssignments(&buf, detections))
	parsed, err := ParseAssignments(&buf)
	require.NoError(t, err)
	assert.Equal(t, detections, parsed)
}

func TestCSVAssignments(t *testing.T) {
	store, detections := divisionFixture(t)
	path := filepath.Join(t.TempDir(), "assignments.csv")
	var buf bytes.Buffer
	require.NoError(t, WriteAssignments(&buf, detections))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	var oracle AssignmentOracle = CSVAssignments{Path: path}
	got, err := oracle.Assign(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, detections, got)

	graph := mustBuild(t, got)
	assert.Equal(t, 5, graph.Len())
}

func TestCSVAssignmentsMissing(t *testing.T) {
	oracle := CSVAssignments{Path: filepath.Join(t.TempDir(), "absent.csv")}
	_, err := oracle.Assign(context.Background(), NewMemoryLabelStore())
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
}

func TestCheckDetections(t *testing.T) {
	store := NewMemoryLabelStore(countFrame(2))
	require.NoError(t, CheckDetections([]Detection{NewDetection(0, 2, 1)}, store))

	var consistency *ConsistencyError
	err := CheckDetections([]Detection{NewDetection(1, 1, 1)}, store)
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, ReasonFrameOutOfRange, consistency.Reason)

	err = CheckDetections([]Detection{NewDetection(0, 7, 1)}, store)
	require.ErrorAs(t, err, &consistency)
	assert.Equal(t, ReasonEmptyFootprint, consistency.Reason)
}

func TestOracleFunc(t *testing.T) {
	want := []Detection{NewDetection(0, 1, 1)}
	oracle := OracleFunc(func(ctx context.Context, store LabelStore) ([]Detection, error) {
		return want, nil
	})
	got, err := oracle.Assign(context.Background(), NewMemoryLabelStore())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
