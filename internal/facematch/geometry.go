package facematch

// ComputeIoU calculates Intersection over Union between two bounding boxes.
// bbox1 and bbox2 are [x1, y1, x2, y2] in the same coordinate system.
func ComputeIoU(bbox1, bbox2 []float64) float64 {
	if len(bbox1) != 4 || len(bbox2) != 4 {
		return 0
	}

	// Calculate intersection.
	x1 := max(bbox1[0], bbox2[0])
	y1 := max(bbox1[1], bbox2[1])
	x2 := min(bbox1[2], bbox2[2])
	y2 := min(bbox1[3], bbox2[3])

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)

	// Calculate union.
	area1 := (bbox1[2] - bbox1[0]) * (bbox1[3] - bbox1[1])
	area2 := (bbox2[2] - bbox2[0]) * (bbox2[3] - bbox2[1])
	union := area1 + area2 - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ConvertPixelBBoxToRelative converts pixel bbox to relative (0-1) coordinates.
// Input bbox is [x1, y1, x2, y2] in pixels, output is [x1, y1, x2, y2] in relative coords.
func ConvertPixelBBoxToRelative(bbox []float64, width, height int) []float64 {
	if len(bbox) != 4 || width <= 0 || height <= 0 {
		return bbox
	}
	return []float64{
		bbox[0] / float64(width),
		bbox[1] / float64(height),
		bbox[2] / float64(width),
		bbox[3] / float64(height),
	}
}

// mergeOverlapping drops detections that overlap an already kept,
// higher-scored detection beyond overlapIoUThreshold. The face service
// occasionally reports the same face twice with slightly shifted boxes.
func mergeOverlapping(dets []Detection, iouThreshold float64) []Detection {
	if len(dets) <= 1 {
		return dets
	}

	// Highest detection score first so the better box wins.
	sorted := make([]Detection, len(dets))
	copy(sorted, dets)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].DetScore > sorted[j-1].DetScore; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	kept := make([]Detection, 0, len(sorted))
	for _, d := range sorted {
		dup := false
		for _, k := range kept {
			if ComputeIoU(d.BBox, k.BBox) >= iouThreshold {
				dup = true
				break
			}
		}
		if !dup {
			kept = append(kept, d)
		}
	}
	return kept
}
