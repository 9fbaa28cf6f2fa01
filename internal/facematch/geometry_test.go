package facematch

import (
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		bbox1    []float64
		bbox2    []float64
		expected float64
	}{
		{
			name:     "identical boxes",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{20, 20, 30, 30},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			bbox1:    []float64{0, 0, 10, 10},
			bbox2:    []float64{5, 5, 15, 15},
			expected: 25.0 / 175.0, // intersection=25, union=100+100-25=175
		},
		{
			name:     "one inside other",
			bbox1:    []float64{0, 0, 20, 20},
			bbox2:    []float64{5, 5, 15, 15},
			expected: 100.0 / 400.0, // intersection=100, union=400 (larger box)
		},
		{
			name:     "invalid bbox1",
			bbox1:    []float64{0, 0, 10},
			bbox2:    []float64{0, 0, 10, 10},
			expected: 0.0,
		},
		{
			name:     "empty bboxes",
			bbox1:    []float64{},
			bbox2:    []float64{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.bbox1, tt.bbox2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.bbox1, tt.bbox2, result, tt.expected)
			}
		})
	}
}

func TestConvertPixelBBoxToRelative(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		width    int
		height   int
		expected []float64
	}{
		{
			name:     "simple conversion",
			bbox:     []float64{100, 200, 300, 400},
			width:    1000,
			height:   1000,
			expected: []float64{0.1, 0.2, 0.3, 0.4},
		},
		{
			name:     "full image",
			bbox:     []float64{0, 0, 1920, 1080},
			width:    1920,
			height:   1080,
			expected: []float64{0, 0, 1, 1},
		},
		{
			name:     "invalid bbox",
			bbox:     []float64{100, 200},
			width:    1000,
			height:   1000,
			expected: []float64{100, 200},
		},
		{
			name:     "zero dimensions",
			bbox:     []float64{100, 200, 300, 400},
			width:    0,
			height:   1000,
			expected: []float64{100, 200, 300, 400},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertPixelBBoxToRelative(tt.bbox, tt.width, tt.height)
			if len(result) != len(tt.expected) {
				t.Errorf("ConvertPixelBBoxToRelative() length = %d, want %d", len(result), len(tt.expected))
				return
			}
			for i := range result {
				if math.Abs(result[i]-tt.expected[i]) > 0.0001 {
					t.Errorf("ConvertPixelBBoxToRelative()[%d] = %v, want %v", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestMergeOverlapping(t *testing.T) {
	tests := []struct {
		name     string
		dets     []Detection
		expected int
	}{
		{
			name:     "empty",
			dets:     nil,
			expected: 0,
		},
		{
			name: "single detection",
			dets: []Detection{
				{BBox: []float64{0, 0, 100, 100}, DetScore: 0.9},
			},
			expected: 1,
		},
		{
			name: "distinct faces kept",
			dets: []Detection{
				{BBox: []float64{0, 0, 100, 100}, DetScore: 0.9},
				{BBox: []float64{200, 0, 300, 100}, DetScore: 0.8},
			},
			expected: 2,
		},
		{
			name: "duplicate reports merged",
			dets: []Detection{
				{BBox: []float64{0, 0, 100, 100}, DetScore: 0.7},
				{BBox: []float64{2, 2, 102, 102}, DetScore: 0.9},
				{BBox: []float64{200, 0, 300, 100}, DetScore: 0.8},
			},
			expected: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := mergeOverlapping(tt.dets, overlapIoUThreshold)
			if len(result) != tt.expected {
				t.Fatalf("mergeOverlapping() kept %d detections, want %d", len(result), tt.expected)
			}
		})
	}
}

func TestMergeOverlappingKeepsHigherScore(t *testing.T) {
	dets := []Detection{
		{BBox: []float64{0, 0, 100, 100}, DetScore: 0.7},
		{BBox: []float64{2, 2, 102, 102}, DetScore: 0.9},
	}
	result := mergeOverlapping(dets, overlapIoUThreshold)
	if len(result) != 1 {
		t.Fatalf("expected 1 detection, got %d", len(result))
	}
	if result[0].DetScore != 0.9 {
		t.Errorf("kept detection score = %v, want 0.9", result[0].DetScore)
	}
}
