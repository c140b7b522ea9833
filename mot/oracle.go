package mot

import (
	"context"

	"github.com/LdDl/lineage-go/lineage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// CellOracle is lineage.AssignmentOracle linking label image regions with a Linker over CellBlob.
type CellOracle struct {
	Algorithm     MatchingAlgorithm
	MinScore      float64
	DivisionScore float64
	// Time step of Kalman filter between frames
	DT     float64
	Logger *zap.Logger
}

// NewDefaultCellOracle creates oracle with default linker parameters
func NewDefaultCellOracle() *CellOracle {
	return &CellOracle{
		Algorithm:     MatchingAlgorithmHungarian,
		MinScore:      DefaultMinScore,
		DivisionScore: DefaultDivisionScore,
		DT:            1.0,
		Logger:        zap.NewNop(),
	}
}

// Assign links every frame of the store in order
func (oracle *CellOracle) Assign(ctx context.Context, store lineage.LabelStore) ([]lineage.Detection, error) {
	linker := NewLinker[*CellBlob](oracle.Algorithm, oracle.MinScore, oracle.DivisionScore)
	linker.SetLogger(oracle.Logger)
	dt := oracle.DT
	if dt <= 0 {
		dt = 1.0
	}
	for frame := 0; frame < store.FrameCount(); frame++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		img, err := store.Frame(frame)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't read frame %d", frame)
		}
		labels := img.ObjectLabels()
		blobs := make([]*CellBlob, 0, len(labels))
		for _, label := range labels {
			region, _ := img.Region(label)
			blobs = append(blobs, NewCellBlobWithTime(region, frame, dt))
		}
		if err := linker.MatchObjects(frame, blobs); err != nil {
			return nil, err
		}
		linker.logger.Debug("frame linked",
			zap.Int("frame", frame),
			zap.Int("cells", len(blobs)),
			zap.Int("tracks", len(linker.Objects)),
		)
	}
	return linker.Detections(), nil
}
