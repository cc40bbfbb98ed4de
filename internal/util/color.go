package util

import (
	"fmt"
	"strings"
)

// parseHexColor parses a hex color string (#RRGGBB) into RGB components.
func parseHexColor(hex string) (r, g, b uint8, err error) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0, fmt.Errorf("invalid hex color length: %s", hex)
	}

	var ri, gi, bi int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &ri, &gi, &bi); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid hex color: %s", hex)
	}

	return uint8(ri), uint8(gi), uint8(bi), nil //nolint:gosec // Sscanf %02x yields 0-255
}

// ShadeColor moves a hex color towards black (negative percent) or white
// (positive percent). Invalid input is returned unchanged.
func ShadeColor(hex string, percent int) string {
	r, g, b, err := parseHexColor(hex)
	if err != nil {
		return hex
	}

	shade := func(c uint8) uint8 {
		p := float64(percent) / 100
		if p < 0 {
			return uint8(float64(c) * max(1+p, 0))
		}
		return uint8(float64(c) + (255-float64(c))*min(p, 1))
	}

	return fmt.Sprintf("#%02X%02X%02X", shade(r), shade(g), shade(b))
}

// ThemeCSS returns CSS custom properties for the accent color of the UI.
// The visualizer bars use --accent, idle bars use --accent-muted.
func ThemeCSS(colorLight, colorDark string) string {
	return fmt.Sprintf(
		":root{--accent:%s;--accent-hover:%s;--accent-muted:%s}"+
			"@media(prefers-color-scheme:dark){:root{--accent:%s;--accent-hover:%s;--accent-muted:%s}}",
		colorLight, ShadeColor(colorLight, -10), ShadeColor(colorLight, 60),
		colorDark, ShadeColor(colorDark, 10), ShadeColor(colorDark, -60),
	)
}
