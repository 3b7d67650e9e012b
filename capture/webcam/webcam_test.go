package webcam

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOpen_MissingStream(t *testing.T) {
	_, err := Open(Config{Device: filepath.Join(t.TempDir(), "missing.mp4")})
	assert.Error(t, err)
}

func TestSource_ClosedSource(t *testing.T) {
	s := &Source{}
	assert.NoError(t, s.Close())

	_, err := s.Next(context.Background())
	assert.Error(t, err)
}

func TestConfig_Size(t *testing.T) {
	w, h, err := Config{Width: 800, Height: 600}.Size()
	assert.NoError(t, err)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)

	w, h, err = Config{Width: 800, Height: 600, Resolution: "720p"}.Size()
	assert.NoError(t, err)
	assert.Equal(t, 1280, w)
	assert.Equal(t, 720, h)

	_, _, err = Config{Resolution: "huge"}.Size()
	assert.Error(t, err)

	_, err = Open(Config{Device: "0", Resolution: "huge"})
	assert.Error(t, err)
}
