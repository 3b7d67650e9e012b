package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func det(class string, confidence float32, box images.Rect) Detection {
	return NewDetection(class, -1, confidence, box)
}

func TestApplyNMS_SuppressesOverlap(t *testing.T) {
	detections := []Detection{
		det("person", 0.8, images.Rect{X1: 10, Y1: 10, X2: 110, Y2: 110}),
		det("person", 0.9, images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}),
		det("dog", 0.7, images.Rect{X1: 300, Y1: 300, X2: 400, Y2: 400}),
	}

	kept := ApplyNMS(detections, DefaultNMSConfig())
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.InDelta(t, 0.7, kept[1].Confidence, 1e-6)

	// Input is left untouched.
	assert.InDelta(t, 0.8, detections[0].Confidence, 1e-6)
}

func TestApplyNMS_ClassAgnosticByDefault(t *testing.T) {
	box := images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}
	detections := []Detection{
		det("cat", 0.9, box),
		det("dog", 0.6, box),
	}

	kept := ApplyNMS(detections, nil)
	require.Len(t, kept, 1)
	assert.Equal(t, "cat", kept[0].ClassName)

	kept = ApplyNMS(detections, &NMSConfig{IoUThreshold: 0.45, ClassAware: true})
	assert.Len(t, kept, 2)
}

func TestApplyNMS_ThresholdIsInclusive(t *testing.T) {
	box := images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
	detections := []Detection{det("car", 0.9, box), det("car", 0.8, box)}

	kept := ApplyNMS(detections, &NMSConfig{IoUThreshold: 1.0})
	assert.Len(t, kept, 1)
}

func TestApplyNMS_LowOverlapKept(t *testing.T) {
	detections := []Detection{
		det("car", 0.9, images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}),
		det("car", 0.8, images.Rect{X1: 50, Y1: 50, X2: 150, Y2: 150}), // IoU 1/7
	}

	kept := ApplyNMS(detections, &NMSConfig{IoUThreshold: 0.45})
	assert.Len(t, kept, 2)
}

func TestApplyNMS_SuppressedBoxDoesNotSuppress(t *testing.T) {
	// B overlaps both A and C above the threshold while A and C overlap below it.
	// B is suppressed by A and therefore must not suppress C.
	detections := []Detection{
		det("person", 0.9, images.Rect{X1: 0, Y1: 0, X2: 100, Y2: 100}),
		det("person", 0.8, images.Rect{X1: 30, Y1: 0, X2: 130, Y2: 100}),
		det("person", 0.7, images.Rect{X1: 60, Y1: 0, X2: 160, Y2: 100}),
	}

	kept := ApplyNMS(detections, DefaultNMSConfig())
	require.Len(t, kept, 2)
	assert.InDelta(t, 0.9, kept[0].Confidence, 1e-6)
	assert.InDelta(t, 0.7, kept[1].Confidence, 1e-6)
}

func TestApplyNMS_StableOnEqualConfidence(t *testing.T) {
	detections := []Detection{
		det("first", 0.5, images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}),
		det("second", 0.5, images.Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}),
	}

	kept := ApplyNMS(detections, DefaultNMSConfig())
	require.Len(t, kept, 1)
	assert.Equal(t, "first", kept[0].ClassName)
}

func TestApplyNMS_Empty(t *testing.T) {
	kept := ApplyNMS(nil, DefaultNMSConfig())
	assert.NotNil(t, kept)
	assert.Empty(t, kept)
}

// TestApplyNMS_RandomizedProperties checks on seeded random inputs that the
// survivors are sorted, pairwise below the threshold, and that NMS is idempotent.
func TestApplyNMS_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for iter := 0; iter < 25; iter++ {
		detections := make([]Detection, 60)
		for i := range detections {
			x, y := rng.Float32()*500, rng.Float32()*500
			w, h := 10+rng.Float32()*120, 10+rng.Float32()*120
			detections[i] = det("person", rng.Float32(), images.RectFromXYWH(x, y, w, h))
		}

		config := DefaultNMSConfig()
		kept := ApplyNMS(detections, config)
		require.NotEmpty(t, kept)
		assert.LessOrEqual(t, len(kept), len(detections))

		for i := range kept {
			if i > 0 {
				assert.GreaterOrEqual(t, kept[i-1].Confidence, kept[i].Confidence)
			}
			for j := i + 1; j < len(kept); j++ {
				assert.Less(t, images.CalculateIoU(kept[i].Box, kept[j].Box), config.IoUThreshold)
			}
		}

		assert.Equal(t, kept, ApplyNMS(kept, config))
	}
}
