// Package postprocess - Postprocessing utilities for detector outputs.
package postprocess

import (
	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/models"
)

// Detection represents a single detected object in original-image pixels.
type Detection struct {
	// The class name from the detector vocabulary.
	ClassName string `json:"class"`
	// The vocabulary index of the class, -1 when the detector reports names only.
	ClassID int `json:"class_id"`
	// The confidence score of the detection in [0, 1].
	Confidence float32 `json:"confidence"`
	// The bounding box of the detection.
	Box images.Rect `json:"bbox"`
	// The coarse category derived from ClassName.
	Label models.Category `json:"label"`
}

// NewDetection builds a Detection and derives its label from the class name.
func NewDetection(className string, classID int, confidence float32, box images.Rect) Detection {
	return Detection{
		ClassName:  className,
		ClassID:    classID,
		Confidence: confidence,
		Box:        box,
		Label:      models.MapToThreeClasses(className),
	}
}

// Labels returns the category of every detection, in order.
func Labels(detections []Detection) []models.Category {
	labels := make([]models.Category, len(detections))
	for i, d := range detections {
		labels[i] = d.Label
	}
	return labels
}

// FilterByConfidence returns the detections whose confidence is at least threshold.
func FilterByConfidence(detections []Detection, threshold float32) []Detection {
	filtered := make([]Detection, 0, len(detections))
	for _, d := range detections {
		if d.Confidence >= threshold {
			filtered = append(filtered, d)
		}
	}
	return filtered
}
