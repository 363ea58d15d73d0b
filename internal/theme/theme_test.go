package theme

import (
	"path/filepath"
	"testing"
	"time"

	"circled/internal/events"
	"circled/internal/store"
)

func TestParseHex(t *testing.T) {
	c, err := ParseHex("#4A90D9")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if c.R != 0x4A || c.G != 0x90 || c.B != 0xD9 {
		t.Errorf("color = %+v", c)
	}
	if c.Hex() != "#4A90D9" {
		t.Errorf("hex = %q", c.Hex())
	}

	if _, err := ParseHex("not-a-color"); err == nil {
		t.Error("malformed hex accepted")
	}
	if _, err := ParseHex("#FFF"); err == nil {
		t.Error("short hex accepted")
	}

	// Bare form without the hash.
	if _, err := ParseHex("4A90D9"); err != nil {
		t.Errorf("bare hex rejected: %v", err)
	}
}

func TestResolveAutoFollowsDaylight(t *testing.T) {
	cases := []struct {
		hour int
		want Theme
	}{
		{0, ThemeDark},
		{5, ThemeDark},
		{6, ThemeLight},
		{12, ThemeLight},
		{17, ThemeLight},
		{18, ThemeDark},
		{23, ThemeDark},
	}
	for _, tc := range cases {
		now := time.Date(2026, 3, 14, tc.hour, 30, 0, 0, time.Local)
		if got := Resolve(ThemeAuto, false, now); got != tc.want {
			t.Errorf("hour %d: resolve = %q, want %q", tc.hour, got, tc.want)
		}
	}

	// Explicit selections ignore the clock.
	midnight := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	if Resolve(ThemeLight, false, midnight) != ThemeLight {
		t.Error("explicit light overridden by clock")
	}
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	if Resolve(ThemeDark, false, noon) != ThemeDark {
		t.Error("explicit dark overridden by clock")
	}
}

func TestResolveSystemFollowsHostAppearance(t *testing.T) {
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	if Resolve(ThemeSystem, true, noon) != ThemeDark {
		t.Error("system selection ignored the dark-mode flag")
	}
	midnight := time.Date(2026, 3, 14, 0, 0, 0, 0, time.Local)
	if Resolve(ThemeSystem, false, midnight) != ThemeLight {
		t.Error("system selection followed the clock instead of the flag")
	}
}

func TestThemeEnumValues(t *testing.T) {
	for _, v := range []Theme{ThemeSystem, ThemeLight, ThemeDark, ThemeAuto} {
		if !v.Valid() {
			t.Errorf("%q rejected", v)
		}
	}
	if Theme("sepia").Valid() {
		t.Error("unknown value accepted")
	}
}

func newTestRegistry(t *testing.T, bus *events.Bus) (*Registry, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "circled.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewRegistry(st, bus, nil, nil, ThemeSystem, "#4A90D9"), st
}

func TestSetThemePersistsAndReloads(t *testing.T) {
	reg, st := newTestRegistry(t, nil)

	if err := reg.SetTheme(ThemeDark); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if reg.Current() != ThemeDark {
		t.Fatalf("current = %q", reg.Current())
	}

	// A fresh registry over the same store sees the selection.
	reloaded := NewRegistry(st, nil, nil, nil, ThemeSystem, "#4A90D9")
	if reloaded.Current() != ThemeDark {
		t.Errorf("reloaded current = %q, want dark", reloaded.Current())
	}
}

func TestSetThemeRoundTripRestoresPalette(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	before := reg.Palette(now)
	if err := reg.SetTheme(ThemeDark); err != nil {
		t.Fatalf("set dark: %v", err)
	}
	if reg.Palette(now) == before {
		t.Fatal("palette unchanged after switching to dark")
	}
	if err := reg.SetTheme(ThemeSystem); err != nil {
		t.Fatalf("set system: %v", err)
	}
	if reg.Palette(now) != before {
		t.Error("palette not restored after switching back")
	}
}

func TestSetThemeRejectsUnknown(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	if err := reg.SetTheme(Theme("sepia")); err == nil {
		t.Fatal("unknown theme accepted")
	}
}

func TestSetThemeAcceptsAuto(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	if err := reg.SetTheme(ThemeAuto); err != nil {
		t.Fatalf("set auto: %v", err)
	}
	if reg.Current() != ThemeAuto {
		t.Fatalf("current = %q", reg.Current())
	}

	// Auto tracks the clock regardless of the host appearance.
	reg.SetSystemDark(true)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)
	if reg.Palette(noon) != PaletteFor(ThemeAuto, true, reg.Accent(), noon) {
		t.Error("palette mismatch for auto selection")
	}
	if reg.Palette(noon).Background != lightPalette.Background {
		t.Error("auto at noon did not resolve light")
	}

	other, _ := newTestRegistry(t, nil)
	if err := other.Import([]byte(`{"theme":"auto","accent":"#34C759"}`)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if other.Current() != ThemeAuto {
		t.Errorf("imported = %q", other.Current())
	}
}

func TestSystemPaletteFollowsHostAppearance(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	noon := time.Date(2026, 3, 14, 12, 0, 0, 0, time.Local)

	if reg.Palette(noon).Background != lightPalette.Background {
		t.Fatal("system defaulted dark without a dark-mode report")
	}
	reg.SetSystemDark(true)
	if reg.Palette(noon).Background != darkPalette.Background {
		t.Error("system ignored the reported dark appearance")
	}
}

func TestSetAccentFallsBackOnMalformedHex(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)

	if err := reg.SetAccent("#FF9F0A"); err != nil {
		t.Fatalf("set accent: %v", err)
	}
	if reg.Accent().Hex() != "#FF9F0A" {
		t.Fatalf("accent = %q", reg.Accent().Hex())
	}

	if err := reg.SetAccent("zzz"); err != nil {
		t.Fatalf("malformed accent errored: %v", err)
	}
	if reg.Accent().Hex() != "#4A90D9" {
		t.Errorf("accent = %q, want default", reg.Accent().Hex())
	}
}

func TestSetThemePublishesBusEvent(t *testing.T) {
	bus := events.NewBus()
	reg, _ := newTestRegistry(t, bus)

	ch, cancel := bus.Subscribe(events.KindThemeChanged)
	defer cancel()

	if err := reg.SetTheme(ThemeLight); err != nil {
		t.Fatalf("set theme: %v", err)
	}

	select {
	case ev := <-ch:
		change, ok := ev.Payload.(ThemeChange)
		if !ok {
			t.Fatalf("payload type %T", ev.Payload)
		}
		if change.Theme != ThemeLight {
			t.Errorf("event theme = %q", change.Theme)
		}
	case <-time.After(time.Second):
		t.Fatal("no theme.changed event")
	}
}

func TestSetThemeIdempotent(t *testing.T) {
	bus := events.NewBus()
	reg, _ := newTestRegistry(t, bus)

	ch, cancel := bus.Subscribe(events.KindThemeChanged)
	defer cancel()

	if err := reg.SetTheme(ThemeSystem); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	select {
	case <-ch:
		t.Fatal("no-op selection published an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	if err := reg.SetTheme(ThemeDark); err != nil {
		t.Fatalf("set theme: %v", err)
	}
	if err := reg.SetAccent("#34C759"); err != nil {
		t.Fatalf("set accent: %v", err)
	}

	data, err := reg.Export()
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	other, _ := newTestRegistry(t, nil)
	if err := other.Import(data); err != nil {
		t.Fatalf("import: %v", err)
	}
	if other.Current() != ThemeDark || other.Accent().Hex() != "#34C759" {
		t.Errorf("imported = %q/%q", other.Current(), other.Accent().Hex())
	}
}

func TestImportMalformedAccentFallsBack(t *testing.T) {
	reg, _ := newTestRegistry(t, nil)
	if err := reg.Import([]byte(`{"theme":"light","accent":"##bad"}`)); err != nil {
		t.Fatalf("import: %v", err)
	}
	if reg.Current() != ThemeLight {
		t.Errorf("theme = %q", reg.Current())
	}
	if reg.Accent().Hex() != "#4A90D9" {
		t.Errorf("accent = %q, want default", reg.Accent().Hex())
	}
}
