// Package imaging holds the image sensor settings of the simulated device
package imaging

import (
	"sync"

	"github.com/juju/errors"
	"github.com/rs/zerolog"

	onvif "github.com/SridarDhandapani/onvif-simulator"
)

// Settings are the adjustable parameters of the video source
type Settings struct {
	Brightness  float64               `yaml:"brightness"`
	Contrast    float64               `yaml:"contrast"`
	Saturation  float64               `yaml:"saturation"`
	Sharpness   float64               `yaml:"sharpness"`
	IrCutFilter onvif.IrCutFilterMode `yaml:"ir_cut_filter"`
}

// Ranges bound every numeric setting
type Ranges struct {
	Brightness onvif.Range `yaml:"brightness"`
	Contrast   onvif.Range `yaml:"contrast"`
	Saturation onvif.Range `yaml:"saturation"`
	Sharpness  onvif.Range `yaml:"sharpness"`
}

// DefaultRanges returns [0,100] for every setting
func DefaultRanges() Ranges {
	r := onvif.Range{Min: 0, Max: 100}
	return Ranges{Brightness: r, Contrast: r, Saturation: r, Sharpness: r}
}

// DefaultSettings returns mid-scale values with the IR filter on automatic
func DefaultSettings() Settings {
	return Settings{
		Brightness:  50,
		Contrast:    50,
		Saturation:  50,
		Sharpness:   50,
		IrCutFilter: onvif.IrCutFilterAuto,
	}
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Brightness  *float64
	Contrast    *float64
	Saturation  *float64
	Sharpness   *float64
	IrCutFilter *onvif.IrCutFilterMode
}

// Options describes what SetImagingSettings accepts
type Options struct {
	Ranges       Ranges
	IrCutFilters []onvif.IrCutFilterMode
}

// Store guards the single settings instance
type Store struct {
	mu       sync.RWMutex
	settings Settings
	ranges   Ranges
	log      zerolog.Logger
}

// NewStore creates a store holding initial clamped into ranges
func NewStore(initial Settings, ranges Ranges, log zerolog.Logger) *Store {
	if !initial.IrCutFilter.Valid() {
		initial.IrCutFilter = onvif.IrCutFilterAuto
	}
	return &Store{
		settings: ranges.clamp(initial),
		ranges:   ranges,
		log:      log.With().Str("component", "imaging").Logger(),
	}
}

// Get returns a copy of the current settings
func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set applies p. Numbers are clamped into their ranges; an unknown IR cut
// filter mode is rejected and nothing is changed.
func (s *Store) Set(p Patch) (Settings, error) {
	if p.IrCutFilter != nil && !p.IrCutFilter.Valid() {
		return Settings{}, errors.Annotatef(onvif.ErrInvalidArgs, "IR cut filter mode %q", *p.IrCutFilter)
	}

	s.mu.Lock()
	next := s.settings
	if p.Brightness != nil {
		next.Brightness = *p.Brightness
	}
	if p.Contrast != nil {
		next.Contrast = *p.Contrast
	}
	if p.Saturation != nil {
		next.Saturation = *p.Saturation
	}
	if p.Sharpness != nil {
		next.Sharpness = *p.Sharpness
	}
	if p.IrCutFilter != nil {
		next.IrCutFilter = *p.IrCutFilter
	}
	next = s.ranges.clamp(next)
	s.settings = next
	s.mu.Unlock()

	s.log.Info().
		Float64("brightness", next.Brightness).
		Float64("contrast", next.Contrast).
		Float64("saturation", next.Saturation).
		Float64("sharpness", next.Sharpness).
		Str("ir_cut_filter", string(next.IrCutFilter)).
		Msg("imaging settings updated")
	return next, nil
}

// Options returns the accepted ranges and IR cut filter modes
func (s *Store) Options() Options {
	return Options{
		Ranges:       s.ranges,
		IrCutFilters: append([]onvif.IrCutFilterMode(nil), onvif.IrCutFilterModes...),
	}
}

func (r Ranges) clamp(s Settings) Settings {
	s.Brightness = r.Brightness.Clamp(s.Brightness)
	s.Contrast = r.Contrast.Clamp(s.Contrast)
	s.Saturation = r.Saturation.Clamp(s.Saturation)
	s.Sharpness = r.Sharpness.Clamp(s.Sharpness)
	return s
}
