package recorder

import (
	"image"
	"image/color"
	"sort"
)

// samplingStep skips pixels when counting colours; screenshots are large and
// mostly flat
const samplingStep = 4

// buildPalette returns a 256-colour palette: transparent, then the most
// frequent sampled colours, padded with greys
func buildPalette(img image.Image) color.Palette {
	bounds := img.Bounds()
	counts := make(map[color.RGBA]int)

	for y := bounds.Min.Y; y < bounds.Max.Y; y += samplingStep {
		for x := bounds.Min.X; x < bounds.Max.X; x += samplingStep {
			r, g, b, a := img.At(x, y).RGBA()
			counts[color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}]++
		}
	}

	type colorCount struct {
		c     color.RGBA
		count int
	}
	ranked := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		ranked = append(ranked, colorCount{c, n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return rgbaKey(ranked[i].c) < rgbaKey(ranked[j].c)
	})

	palette := make(color.Palette, 0, 256)
	palette = append(palette, color.RGBA{0, 0, 0, 0})
	for _, cc := range ranked {
		if len(palette) == 256 {
			break
		}
		palette = append(palette, cc.c)
	}

	for len(palette) < 256 {
		gray := uint8(len(palette))
		palette = append(palette, color.RGBA{gray, gray, gray, 255})
	}
	return palette
}

func rgbaKey(c color.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}
