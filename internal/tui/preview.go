package tui

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/fishannotator/reel/internal/decoder"
)

// renderPreview draws img with upper-half blocks, two pixel rows per text
// row, scaled to width columns.
func renderPreview(img *image.RGBA, width int) string {
	if img == nil || width < 1 {
		return ""
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return ""
	}

	height := b.Dy() * width / b.Dx()
	// Terminal cells are about twice as tall as wide; two pixel rows per
	// cell keeps the aspect ratio.
	height = max(2, height-height%2)
	small := decoder.Scale(img, width, height)

	var sb strings.Builder
	for y := 0; y < height; y += 2 {
		for x := 0; x < width; x++ {
			top := small.RGBAAt(x, y)
			bottom := small.RGBAAt(x, y+1)
			sb.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color(hex(top.R, top.G, top.B))).
				Background(lipgloss.Color(hex(bottom.R, bottom.G, bottom.B))).
				Render("▀"))
		}
		if y+2 < height {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

func hex(r, g, b uint8) string {
	return fmt.Sprintf("#%02X%02X%02X", r, g, b)
}

// progressBar renders frame/last as a fixed-width bar.
func progressBar(frame, last int64, width int) string {
	if width < 1 {
		return ""
	}
	filled := 0
	if last > 0 {
		filled = int(frame * int64(width) / last)
	}
	filled = min(max(filled, 0), width)
	return lipgloss.NewStyle().Foreground(Primary).Render(strings.Repeat("━", filled)) +
		lipgloss.NewStyle().Foreground(BorderDark).Render(strings.Repeat("━", width-filled))
}
