// Package lineage turns per-frame cell labels plus a frame-to-frame assignment into
// a lineage graph (tracks and division edges), writes it in CTC and napari encodings
// and scores it without ground truth.
//
// Typical flow:
//
//	detections, err := oracle.Assign(ctx, store)
//	graph, err := lineage.Build(detections)
//	manifest, err := lineage.NewCTCExporter(lineage.DefaultExportConfig()).Export(ctx, graph, store, dir)
//	report, err := lineage.Evaluate(graph, store, lineage.DefaultEvaluationConfig())
package lineage
