package models

// Category is the coarse three-way label attached to every detection.
type Category string

const (
	// CategoryHuman is assigned to people.
	CategoryHuman Category = "Human"
	// CategoryAnimal is assigned to the animal classes of the vocabulary.
	CategoryAnimal Category = "Animal"
	// CategoryObject is assigned to everything else.
	CategoryObject Category = "Object"
	// CategoryNone classifies a frame without any detection.
	CategoryNone Category = "None"
)

// HumanClass is the only class name mapped to CategoryHuman.
const HumanClass = "person"

// AnimalClasses is the set of class names mapped to CategoryAnimal.
var AnimalClasses = map[string]struct{}{
	"bird":     {},
	"cat":      {},
	"dog":      {},
	"horse":    {},
	"sheep":    {},
	"cow":      {},
	"elephant": {},
	"bear":     {},
	"zebra":    {},
	"giraffe":  {},
}

// MapToThreeClasses maps a vocabulary class name to Human, Animal or Object.
// It is total: unknown names map to Object.
//
// Arguments:
//   - name: The class name reported by a detector.
//
// Returns:
//   - Category: The coarse label.
func MapToThreeClasses(name string) Category {
	if name == HumanClass {
		return CategoryHuman
	}
	if _, ok := AnimalClasses[name]; ok {
		return CategoryAnimal
	}
	return CategoryObject
}

// Classify reduces the labels of a frame to one category with the priority
// Human > Animal > Object. An empty frame is CategoryNone.
func Classify(labels []Category) Category {
	result := CategoryNone
	for _, label := range labels {
		switch label {
		case CategoryHuman:
			return CategoryHuman
		case CategoryAnimal:
			result = CategoryAnimal
		default:
			if result == CategoryNone {
				result = CategoryObject
			}
		}
	}
	return result
}
