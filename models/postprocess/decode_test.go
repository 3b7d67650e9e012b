package postprocess

import (
	"math/rand"
	"testing"

	"github.com/nvr-ai/go-intrusion/images"
	"github.com/nvr-ai/go-intrusion/models"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// candidate is one synthetic row of a raw output buffer.
type candidate struct {
	cx, cy, w, h float32
	scores       map[int]float32
}

// buildOutput lays candidates out field-major the same way a YOLOv8 export does.
func buildOutput(cfg DecodeConfig, candidates []candidate) []float32 {
	n := cfg.NumCandidates
	out := make([]float32, cfg.OutputLen())
	for i, c := range candidates {
		out[i] = c.cx
		out[n+i] = c.cy
		out[2*n+i] = c.w
		out[3*n+i] = c.h
		for class, score := range c.scores {
			out[(4+class)*n+i] = score
		}
	}
	return out
}

func TestDecode_PersonScenario(t *testing.T) {
	cfg := DefaultDecodeConfig()
	output := buildOutput(cfg, []candidate{
		{cx: 320, cy: 320, w: 100, h: 200, scores: map[int]float32{0: 0.9}},
	})

	detections, err := Decode(output, cfg, 1280, 960, 0.3)
	require.NoError(t, err)
	require.Len(t, detections, 1)

	d := detections[0]
	assert.Equal(t, "person", d.ClassName)
	assert.Equal(t, 0, d.ClassID)
	assert.Equal(t, models.CategoryHuman, d.Label)
	assert.InDelta(t, 0.9, d.Confidence, 1e-6)
	assert.Equal(t, images.Rect{X1: 540, Y1: 330, X2: 740, Y2: 630}, d.Box)
}

func TestDecode_ConfidenceThreshold(t *testing.T) {
	cfg := DefaultDecodeConfig()
	output := buildOutput(cfg, []candidate{
		{cx: 100, cy: 100, w: 10, h: 10, scores: map[int]float32{16: 0.29}},
		{cx: 200, cy: 200, w: 10, h: 10, scores: map[int]float32{16: 0.30}},
		{cx: 300, cy: 300, w: 10, h: 10, scores: map[int]float32{2: 0.75}},
	})

	detections, err := Decode(output, cfg, 640, 640, 0.3)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, "dog", detections[0].ClassName)
	assert.Equal(t, models.CategoryAnimal, detections[0].Label)
	assert.Equal(t, "car", detections[1].ClassName)
	assert.Equal(t, models.CategoryObject, detections[1].Label)
}

func TestDecode_TieBreakPicksLowestIndex(t *testing.T) {
	cfg := DefaultDecodeConfig()
	output := buildOutput(cfg, []candidate{
		{cx: 10, cy: 10, w: 4, h: 4, scores: map[int]float32{15: 0.6, 16: 0.6, 70: 0.6}},
	})

	detections, err := Decode(output, cfg, 640, 640, 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 1)
	assert.Equal(t, "cat", detections[0].ClassName)
	assert.Equal(t, 15, detections[0].ClassID)
}

func TestDecode_NoSurvivors(t *testing.T) {
	cfg := DefaultDecodeConfig()
	output := buildOutput(cfg, nil)

	detections, err := Decode(output, cfg, 1920, 1080, 0.3)
	require.NoError(t, err)
	assert.NotNil(t, detections)
	assert.Empty(t, detections)
}

func TestDecode_MalformedOutput(t *testing.T) {
	cfg := DefaultDecodeConfig()

	tests := []struct {
		name   string
		length int
	}{
		{"empty", 0},
		{"one short", cfg.OutputLen() - 1},
		{"one long", cfg.OutputLen() + 1},
		{"transposed candidates", 85 * 8400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detections, err := Decode(make([]float32, tt.length), cfg, 640, 480, 0.3)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedOutput))
			assert.Nil(t, detections)
		})
	}
}

func TestDecode_InvalidConfig(t *testing.T) {
	_, err := Decode(nil, DecodeConfig{}, 640, 480, 0.3)
	assert.Error(t, err)
}

func TestDecode_SmallLayout(t *testing.T) {
	classes := models.NewOutputClassSet(models.ModelFamilyYOLO, []string{"person", "cat"})
	cfg := DecodeConfig{InputSize: 100, NumCandidates: 3, Classes: classes}

	// Fields: cx, cy, w, h, person, cat for 3 candidates, field-major.
	output := []float32{
		50, 10, 90, // cx
		50, 10, 90, // cy
		20, 4, 10, // w
		20, 4, 10, // h
		0.1, 0.8, 0.2, // person
		0.7, 0.1, 0.25, // cat
	}

	detections, err := Decode(output, cfg, 200, 50, 0.5)
	require.NoError(t, err)
	require.Len(t, detections, 2)

	assert.Equal(t, "cat", detections[0].ClassName)
	assert.Equal(t, images.Rect{X1: 80, Y1: 20, X2: 120, Y2: 30}, detections[0].Box)
	assert.Equal(t, "person", detections[1].ClassName)
	assert.Equal(t, images.Rect{X1: 16, Y1: 4, X2: 24, Y2: 6}, detections[1].Box)
}

// TestDecode_RandomizedProperties checks on seeded random buffers that every
// survivor clears the threshold, carries the label of its class, and that the
// survivor count matches a brute-force count.
func TestDecode_RandomizedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	classes := models.NewOutputClassSet(models.ModelFamilyYOLO, models.YOLOClasses.Names()[:12])
	cfg := DecodeConfig{InputSize: 64, NumCandidates: 50, Classes: classes}

	for iter := 0; iter < 20; iter++ {
		output := make([]float32, cfg.OutputLen())
		for i := range output {
			output[i] = rng.Float32()
		}
		for i := 0; i < 4*cfg.NumCandidates; i++ {
			output[i] *= 64
		}
		threshold := rng.Float32()

		expected := 0
		for i := 0; i < cfg.NumCandidates; i++ {
			var best float32
			for c := 0; c < classes.Len(); c++ {
				if s := output[(4+c)*cfg.NumCandidates+i]; s > best {
					best = s
				}
			}
			if best >= threshold {
				expected++
			}
		}

		detections, err := Decode(output, cfg, 320, 240, threshold)
		require.NoError(t, err)
		require.Len(t, detections, expected)

		for _, d := range detections {
			assert.GreaterOrEqual(t, d.Confidence, threshold)
			assert.Equal(t, models.MapToThreeClasses(d.ClassName), d.Label)
			assert.GreaterOrEqual(t, d.Box.X2, d.Box.X1)
			assert.GreaterOrEqual(t, d.Box.Y2, d.Box.Y1)
		}
	}
}
