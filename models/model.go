// Package models - Definitions for model output class styles and sets.
package models

// ModelFamily is the family of models.
type ModelFamily string

const (
	// ModelFamilyCOCO is a general-purpose COCO detector that reports class names.
	ModelFamilyCOCO ModelFamily = "coco"
	// ModelFamilyYOLO is the YOLO model family (80 classes, no background).
	ModelFamilyYOLO ModelFamily = "yolo"
)
