package theme

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"circled/internal/analytics"
	"circled/internal/events"
	"circled/internal/store"
)

const (
	themeSetting  = "theme"
	accentSetting = "theme_accent"
)

// ThemeChange is the bus payload for a selection change.
type ThemeChange struct {
	Theme  Theme
	Accent Color
}

// Registry holds the persisted theme selection and accent color.
type Registry struct {
	st   *store.Store
	bus  *events.Bus
	sink *analytics.Sink
	log  *slog.Logger

	defaultTheme  Theme
	defaultAccent Color

	mu         sync.Mutex
	current    Theme
	accent     Color
	systemDark bool
}

// NewRegistry loads the persisted selection, falling back to the given
// defaults when nothing is stored or the stored values are malformed.
func NewRegistry(st *store.Store, bus *events.Bus, sink *analytics.Sink, log *slog.Logger, defaultTheme Theme, defaultAccentHex string) *Registry {
	if log == nil {
		log = slog.Default()
	}
	if !defaultTheme.Valid() {
		defaultTheme = ThemeSystem
	}
	defaultAccent, err := ParseHex(defaultAccentHex)
	if err != nil {
		defaultAccent = MustHex("#4A90D9")
	}

	r := &Registry{
		st:            st,
		bus:           bus,
		sink:          sink,
		log:           log,
		defaultTheme:  defaultTheme,
		defaultAccent: defaultAccent,
		current:       defaultTheme,
		accent:        defaultAccent,
	}
	r.load()
	return r
}

func (r *Registry) load() {
	if stored, err := r.st.GetSetting(themeSetting); err == nil && stored != "" {
		if t := Theme(stored); t.Valid() {
			r.current = t
		} else {
			r.log.Warn("ignoring invalid stored theme", "value", stored)
		}
	}
	if stored, err := r.st.GetSetting(accentSetting); err == nil && stored != "" {
		if c, err := ParseHex(stored); err == nil {
			r.accent = c
		} else {
			r.log.Warn("ignoring invalid stored accent", "value", stored)
		}
	}
}

// Current returns the active selection.
func (r *Registry) Current() Theme {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Accent returns the active accent color.
func (r *Registry) Accent() Color {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accent
}

// SetTheme persists a new selection and notifies subscribers. Setting
// the already-active theme is a no-op.
func (r *Registry) SetTheme(t Theme) error {
	if !t.Valid() {
		return fmt.Errorf("set theme: unknown theme %q", t)
	}

	r.mu.Lock()
	if r.current == t {
		r.mu.Unlock()
		return nil
	}
	r.current = t
	accent := r.accent
	r.mu.Unlock()

	if err := r.st.SetSetting(themeSetting, string(t)); err != nil {
		return fmt.Errorf("persist theme: %w", err)
	}
	r.notify(t, accent)
	return nil
}

// SetAccent persists a new accent color. A malformed hex string falls
// back to the configured default instead of failing.
func (r *Registry) SetAccent(hex string) error {
	c, err := ParseHex(hex)
	if err != nil {
		r.log.Warn("invalid accent color, using default", "value", hex)
		c = r.defaultAccent
	}

	r.mu.Lock()
	if r.accent == c {
		r.mu.Unlock()
		return nil
	}
	r.accent = c
	current := r.current
	r.mu.Unlock()

	if err := r.st.SetSetting(accentSetting, c.Hex()); err != nil {
		return fmt.Errorf("persist accent: %w", err)
	}
	r.notify(current, c)
	return nil
}

// SetSystemDark records the host's reported dark-mode appearance,
// consulted only by the system theme.
func (r *Registry) SetSystemDark(dark bool) {
	r.mu.Lock()
	r.systemDark = dark
	r.mu.Unlock()
}

// Palette returns the effective palette for the given time.
func (r *Registry) Palette(now time.Time) Palette {
	r.mu.Lock()
	current, accent, dark := r.current, r.accent, r.systemDark
	r.mu.Unlock()
	return PaletteFor(current, dark, accent, now)
}

// bundle is the JSON export form of a theme selection.
type bundle struct {
	Theme  string `json:"theme"`
	Accent string `json:"accent"`
}

// Export serializes the selection as a JSON bundle.
func (r *Registry) Export() ([]byte, error) {
	r.mu.Lock()
	b := bundle{Theme: string(r.current), Accent: r.accent.Hex()}
	r.mu.Unlock()

	data, err := json.MarshalIndent(&b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal theme bundle: %w", err)
	}
	return data, nil
}

// Import applies a JSON bundle. An unknown theme fails; a malformed
// accent falls back to the default.
func (r *Registry) Import(data []byte) error {
	var b bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("parse theme bundle: %w", err)
	}
	if err := r.SetTheme(Theme(b.Theme)); err != nil {
		return err
	}
	return r.SetAccent(b.Accent)
}

func (r *Registry) notify(t Theme, accent Color) {
	if r.bus != nil {
		r.bus.Publish(events.KindThemeChanged, ThemeChange{Theme: t, Accent: accent})
	}
	if r.sink != nil {
		r.sink.Emit("theme", analytics.EventThemeChanged, map[string]any{
			"theme":  string(t),
			"accent": accent.Hex(),
		})
	}
}
