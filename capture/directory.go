// Package capture - Frame sources for the detection loop.
package capture

import (
	"context"
	"image"
	_ "image/jpeg" // register decoders
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ImageFile represents an image file on disk.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name, or -1.
	Frame int
}

var frameNumber = regexp.MustCompile(`(\d+)$`)

// ListImageFiles lists the image files of a directory in frame order.
//
// Files named like "frame-12.jpg" are ordered by their trailing number; files
// without a number sort after numbered ones, by name.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The image files in replay order.
//   - error: Error if the directory cannot be read.
func ListImageFiles(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading frame directory %s", dir)
	}

	var files []ImageFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		switch ext {
		case ".jpg", ".jpeg", ".png":
			frame := -1
			if m := frameNumber.FindString(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))); m != "" {
				if n, err := strconv.Atoi(m); err == nil {
					frame = n
				}
			}
			files = append(files, ImageFile{
				Path:  filepath.Join(dir, entry.Name()),
				Frame: frame,
			})
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		a, b := files[i], files[j]
		if (a.Frame < 0) != (b.Frame < 0) {
			return a.Frame >= 0
		}
		if a.Frame != b.Frame {
			return a.Frame < b.Frame
		}
		return a.Path < b.Path
	})

	return files, nil
}

// LoadImage decodes an image file.
func LoadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening image")
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return img, nil
}

// DirectorySource replays the images of a directory as frames.
type DirectorySource struct {
	mu     sync.Mutex
	files  []ImageFile
	next   int
	repeat bool
	closed bool
}

// NewDirectorySource lists dir and prepares a replay.
//
// Arguments:
//   - dir: The directory holding the frames.
//   - repeat: Restart from the first frame instead of returning io.EOF.
//
// Returns:
//   - *DirectorySource: The source.
//   - error: An error if the directory holds no images.
func NewDirectorySource(dir string, repeat bool) (*DirectorySource, error) {
	files, err := ListImageFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no images in %s", dir)
	}
	return &DirectorySource{files: files, repeat: repeat}, nil
}

// Next decodes the next frame. It returns io.EOF after the last frame unless
// the source repeats.
func (s *DirectorySource) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New("directory source closed")
	}
	if s.next >= len(s.files) {
		if !s.repeat {
			s.mu.Unlock()
			return nil, io.EOF
		}
		s.next = 0
	}
	file := s.files[s.next]
	s.next++
	s.mu.Unlock()

	return LoadImage(file.Path)
}

// Len returns the number of frames in the directory.
func (s *DirectorySource) Len() int {
	return len(s.files)
}

// Close stops the replay.
func (s *DirectorySource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
