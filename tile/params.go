package tile

import "fmt"

// Mode selects how a tile turns source samples into displayed colors.
type Mode uint8

const (
	// ModeDirect stretches samples on the CPU and uploads RGBA8 pixels.
	ModeDirect Mode = iota
	// ModeShader uploads the selected channels as float RGB and
	// applies the min/max stretch when the tile is drawn.
	ModeShader
)

func (m Mode) String() string {
	switch m {
	case ModeDirect:
		return "direct"
	case ModeShader:
		return "shader"
	}
	return fmt.Sprintf("Mode(%d)", uint8(m))
}

// DisplayParams selects three source channels (red, green, blue) and the
// sample range mapped to [0, 1] for each of them.
type DisplayParams struct {
	Mode     Mode
	Channels [3]int
	Min      [3]float64
	Max      [3]float64
}

// DefaultParams shows the first three channels, or a grey image for
// datasets with fewer channels, stretching [0, 255].
func DefaultParams(channels int) DisplayParams {
	p := DisplayParams{
		Min: [3]float64{0, 0, 0},
		Max: [3]float64{255, 255, 255},
	}
	if channels >= 3 {
		p.Channels = [3]int{0, 1, 2}
	}
	return p
}

// Validate checks the channel indices against the dataset channel count.
func (p DisplayParams) Validate(channels int) error {
	for i, c := range p.Channels {
		if c < 0 || c >= channels {
			return fmt.Errorf("rasterview: channel %d index %d out of range [0, %d)", i, c, channels)
		}
	}
	return nil
}

// NeedsReload reports whether a tile loaded with p must be uploaded again
// to be displayed with q. In shader mode the stretch is applied at draw time,
// so only a change of mode or channel selection requires new pixels.
func (p DisplayParams) NeedsReload(q DisplayParams) bool {
	if p.Mode != q.Mode || p.Channels != q.Channels {
		return true
	}
	if p.Mode == ModeShader {
		return false
	}
	return p.Min != q.Min || p.Max != q.Max
}
