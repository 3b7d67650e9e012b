// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-intrusion/images"
)

// DefaultIoUThreshold is the overlap at or above which a lower-scoring box is suppressed.
const DefaultIoUThreshold float32 = 0.45

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold float32 // Overlap threshold for suppression.
	ClassAware   bool    // If true, suppress only within same class.
}

// DefaultNMSConfig returns the class-agnostic configuration used by the detectors.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{IoUThreshold: DefaultIoUThreshold}
}

// SortByConfidence sorts detections by descending confidence in place. Equal
// confidences keep their input order.
func SortByConfidence(detections []Detection) {
	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Confidence > detections[j].Confidence
	})
}

// ApplyNMS filters overlapping detections using greedy Non-Maximum Suppression.
// The input slice is not modified.
//
// Arguments:
//   - detections: Detections in any order.
//   - config: NMS configuration. A nil config uses DefaultNMSConfig.
//
// Returns:
//   - []Detection: The survivors in descending confidence order. Empty (never nil) when
//     no detections are provided.
func ApplyNMS(detections []Detection, config *NMSConfig) []Detection {
	sorted := make([]Detection, len(detections))
	copy(sorted, detections)
	SortByConfidence(sorted)
	return ApplyGreedyNMS(sorted, config)
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Each kept detection suppresses every later detection whose IoU with it is at
// least the threshold. Suppressed detections never suppress others.
//
// Arguments:
//   - detections: Slice of detections sorted by descending confidence.
//   - config: NMS configuration. A nil config uses DefaultNMSConfig.
//
// Returns:
//   - []Detection: Filtered slice of detections.
func ApplyGreedyNMS(detections []Detection, config *NMSConfig) []Detection {
	if config == nil {
		config = DefaultNMSConfig()
	}

	n := len(detections)
	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.ClassName != detections[j].ClassName {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
