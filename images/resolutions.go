package images

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Resolution is a named camera capture size.
type Resolution struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MegaPixels returns the pixel count in millions, rounded to two decimals.
func (r Resolution) MegaPixels() float64 {
	if r.Width <= 0 || r.Height <= 0 {
		return 0
	}
	return math.Round(float64(r.Width*r.Height)/10_000) / 100
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%dx%d, %.2fMP)", r.Name, r.Width, r.Height, r.MegaPixels())
}

// Capture presets common on surveillance cameras.
var resolutions = map[string]Resolution{
	"360p":  {Name: "360p", Width: 640, Height: 360},
	"vga":   {Name: "vga", Width: 640, Height: 480},
	"480p":  {Name: "480p", Width: 854, Height: 480},
	"540p":  {Name: "540p", Width: 960, Height: 540},
	"720p":  {Name: "720p", Width: 1280, Height: 720},
	"1080p": {Name: "1080p", Width: 1920, Height: 1080},
	"3mp":   {Name: "3mp", Width: 2048, Height: 1536},
	"1440p": {Name: "1440p", Width: 2560, Height: 1440},
	"4k":    {Name: "4k", Width: 3840, Height: 2160},
}

// ParseResolution looks up a preset by name, case-insensitively.
func ParseResolution(name string) (Resolution, error) {
	res, ok := resolutions[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Resolution{}, errors.Errorf("unknown resolution %q", name)
	}
	return res, nil
}

// Resolutions returns every preset ordered by pixel count.
func Resolutions() []Resolution {
	all := make([]Resolution, 0, len(resolutions))
	for _, res := range resolutions {
		all = append(all, res)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Width*all[i].Height < all[j].Width*all[j].Height
	})
	return all
}

// HighestResolutionWithin returns the largest preset that fits in width x height.
func HighestResolutionWithin(width, height int) (Resolution, bool) {
	var best Resolution
	found := false
	for _, res := range resolutions {
		if res.Width > width || res.Height > height {
			continue
		}
		if !found || res.Width*res.Height > best.Width*best.Height {
			best = res
			found = true
		}
	}
	return best, found
}
