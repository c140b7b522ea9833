package mot

import "github.com/LdDl/lineage-go/lineage"

// MatchScore is hybrid IoU + distance similarity between predicted box of a track and a detection box.
// Distance is measured in track diagonals so the score does not depend on cell size.
func MatchScore(predicted, detected lineage.Rectangle) float64 {
	iouValue := lineage.IoU(detected, predicted)
	distance := lineage.Distance(predicted.Center(), detected.Center())
	diagonal := predicted.Diagonal()
	if diagonal <= 0 {
		diagonal = 1
	}
	// Convert to 0-1 similarity
	distanceScore := 1.0 / (1.0 + distance/diagonal)
	// Favor IoU when available, fallback to distance
	if iouValue > 0.05 {
		return iouValue*0.8 + distanceScore*0.2
	}
	// Lower weight for pure distance matching
	return distanceScore * 0.5
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
