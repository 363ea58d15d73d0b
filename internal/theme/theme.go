// Package theme resolves the app's color palette from the persisted
// theme selection and the local time of day.
package theme

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Theme is the user's theme selection.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system" // follows the host appearance
	ThemeAuto   Theme = "auto"   // follows local daylight hours
)

// Valid reports whether t is a known selection.
func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem, ThemeAuto:
		return true
	}
	return false
}

// Color is a 24-bit sRGB color.
type Color struct {
	R, G, B uint8
}

// ParseHex parses "#RRGGBB" or "RRGGBB". Malformed input returns an
// error; callers fall back to their default color.
func ParseHex(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("parse hex color %q: want 6 hex digits", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("parse hex color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// MustHex parses a hex color known to be well formed.
func MustHex(s string) Color {
	c, err := ParseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex renders the color as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// Palette is the full set of semantic colors the UI draws with.
type Palette struct {
	Background    Color `json:"background"`
	Surface       Color `json:"surface"`
	PrimaryText   Color `json:"primaryText"`
	SecondaryText Color `json:"secondaryText"`
	Accent        Color `json:"accent"`
	Success       Color `json:"success"`
	Warning       Color `json:"warning"`
	Danger        Color `json:"danger"`
	Separator     Color `json:"separator"`
}

var lightPalette = Palette{
	Background:    MustHex("#FFFFFF"),
	Surface:       MustHex("#F5F5F7"),
	PrimaryText:   MustHex("#1C1C1E"),
	SecondaryText: MustHex("#6E6E73"),
	Accent:        MustHex("#4A90D9"),
	Success:       MustHex("#34C759"),
	Warning:       MustHex("#FF9F0A"),
	Danger:        MustHex("#FF3B30"),
	Separator:     MustHex("#D1D1D6"),
}

var darkPalette = Palette{
	Background:    MustHex("#000000"),
	Surface:       MustHex("#1C1C1E"),
	PrimaryText:   MustHex("#F2F2F7"),
	SecondaryText: MustHex("#98989D"),
	Accent:        MustHex("#4A90D9"),
	Success:       MustHex("#30D158"),
	Warning:       MustHex("#FFD60A"),
	Danger:        MustHex("#FF453A"),
	Separator:     MustHex("#38383A"),
}

// Resolve reduces a selection to the effective light or dark theme.
// System follows the host's dark-mode flag; auto is light from 06:00
// through 17:59 local time.
func Resolve(t Theme, systemDark bool, now time.Time) Theme {
	switch t {
	case ThemeLight, ThemeDark:
		return t
	case ThemeSystem:
		if systemDark {
			return ThemeDark
		}
		return ThemeLight
	default:
		hour := now.Local().Hour()
		if hour >= 6 && hour < 18 {
			return ThemeLight
		}
		return ThemeDark
	}
}

// PaletteFor returns the palette for a selection at the given time,
// with the accent color applied.
func PaletteFor(t Theme, systemDark bool, accent Color, now time.Time) Palette {
	var p Palette
	if Resolve(t, systemDark, now) == ThemeDark {
		p = darkPalette
	} else {
		p = lightPalette
	}
	p.Accent = accent
	return p
}
