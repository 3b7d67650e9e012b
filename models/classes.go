package models

import "github.com/pkg/errors"

// OutputClass represents one detection label.
type OutputClass struct {
	// The integer index returned by the model.
	Index int
	// The human-readable label.
	Name string
}

// OutputClassSet ties a model family to its ordered list of labels.
type OutputClassSet struct {
	// Class set identifier.
	Style ModelFamily
	// Classes that are supported and mappable.
	Classes []OutputClass
	// nameToIdx for fast lookup by name
	nameToIdx map[string]int
}

// NewOutputClassSet builds a class set from an ordered list of names. The
// position of each name is its model output index.
func NewOutputClassSet(style ModelFamily, names []string) *OutputClassSet {
	set := &OutputClassSet{
		Style:     style,
		Classes:   make([]OutputClass, len(names)),
		nameToIdx: make(map[string]int, len(names)),
	}
	for i, name := range names {
		set.Classes[i] = OutputClass{Index: i, Name: name}
		set.nameToIdx[name] = i
	}
	return set
}

// Len returns the number of classes in the set.
func (s *OutputClassSet) Len() int {
	return len(s.Classes)
}

// Name returns the class name at the given index.
//
// Arguments:
//   - idx: The zero-based output index.
//
// Returns:
//   - string: The class name.
//   - error: An error if the index is out of range.
func (s *OutputClassSet) Name(idx int) (string, error) {
	if idx < 0 || idx >= len(s.Classes) {
		return "", errors.Errorf("index %d out of range for style %q", idx, s.Style)
	}
	return s.Classes[idx].Name, nil
}

// Index returns the output index for a class name, or -1 when the name is not
// part of the set.
func (s *OutputClassSet) Index(name string) int {
	idx, ok := s.nameToIdx[name]
	if !ok {
		return -1
	}
	return idx
}

// Names returns a copy of the ordered class names.
func (s *OutputClassSet) Names() []string {
	names := make([]string, len(s.Classes))
	for i, c := range s.Classes {
		names[i] = c.Name
	}
	return names
}

// cocoNames is the 80 COCO category names in model output order.
var cocoNames = []string{
	"person",
	"bicycle",
	"car",
	"motorcycle",
	"airplane",
	"bus",
	"train",
	"truck",
	"boat",
	"traffic light",
	"fire hydrant",
	"stop sign",
	"parking meter",
	"bench",
	"bird",
	"cat",
	"dog",
	"horse",
	"sheep",
	"cow",
	"elephant",
	"bear",
	"zebra",
	"giraffe",
	"backpack",
	"umbrella",
	"handbag",
	"tie",
	"suitcase",
	"frisbee",
	"skis",
	"snowboard",
	"sports ball",
	"kite",
	"baseball bat",
	"baseball glove",
	"skateboard",
	"surfboard",
	"tennis racket",
	"bottle",
	"wine glass",
	"cup",
	"fork",
	"knife",
	"spoon",
	"bowl",
	"banana",
	"apple",
	"sandwich",
	"orange",
	"broccoli",
	"carrot",
	"hot dog",
	"pizza",
	"donut",
	"cake",
	"chair",
	"couch",
	"potted plant",
	"bed",
	"dining table",
	"toilet",
	"tv",
	"laptop",
	"mouse",
	"remote",
	"keyboard",
	"cell phone",
	"microwave",
	"oven",
	"toaster",
	"sink",
	"refrigerator",
	"book",
	"clock",
	"vase",
	"scissors",
	"teddy bear",
	"hair drier",
	"toothbrush",
}

// YOLOClasses is the 80 COCO classes (no background).
// YOLO models index directly into this zero-based list.
var YOLOClasses = NewOutputClassSet(ModelFamilyYOLO, cocoNames)

// COCOClasses is the same vocabulary as reported by general-purpose COCO
// detectors that identify classes by name rather than by index.
var COCOClasses = NewOutputClassSet(ModelFamilyCOCO, cocoNames)

// AllClassSets collects every OutputClassSet in one place.
var AllClassSets = []*OutputClassSet{
	YOLOClasses,
	COCOClasses,
}

// LookupName returns the class name for a given style and index.
// If the style is unknown or the index is out of range, it returns an empty string.
func LookupName(style ModelFamily, idx int) string {
	for _, set := range AllClassSets {
		if set.Style == style {
			name, err := set.Name(idx)
			if err != nil {
				return ""
			}
			return name
		}
	}
	return ""
}
