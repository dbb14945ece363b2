package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rkm/fieldsat/internal/models"
)

// BandMapping names the provider bands that supply each reflectance band.
// SWIR bands are optional; providers without them leave the fields empty.
type BandMapping struct {
	Blue  string `yaml:"blue"`
	Green string `yaml:"green"`
	Red   string `yaml:"red"`
	NIR   string `yaml:"nir"`
	SWIR1 string `yaml:"swir1,omitempty"`
	SWIR2 string `yaml:"swir2,omitempty"`

	// Scale divides raw digital numbers into reflectance. 1 means the
	// provider already returns reflectance.
	Scale float64 `yaml:"scale"`
}

// HasSWIR reports whether both SWIR bands are mapped.
func (b BandMapping) HasSWIR() bool {
	return b.SWIR1 != "" && b.SWIR2 != ""
}

// Names returns the mapped band names in blue, green, red, nir, swir1, swir2
// order, omitting unmapped SWIR bands.
func (b BandMapping) Names() []string {
	names := []string{b.Blue, b.Green, b.Red, b.NIR}
	if b.HasSWIR() {
		names = append(names, b.SWIR1, b.SWIR2)
	}
	return names
}

// ProviderProfile describes the product a provider is queried for.
// Profiles are loaded from YAML files, one provider per file.
type ProviderProfile struct {
	Source     models.Source `yaml:"source"`
	Collection string        `yaml:"collection"`
	// Resolution is the ground sample distance in meters.
	Resolution float64     `yaml:"resolution"`
	Bands      BandMapping `yaml:"bands"`
}

// ProfileRegistry holds provider profiles indexed by source.
type ProfileRegistry struct {
	profiles map[models.Source]*ProviderProfile
}

// NewProfileRegistry creates a new empty profile registry.
func NewProfileRegistry() *ProfileRegistry {
	return &ProfileRegistry{
		profiles: make(map[models.Source]*ProviderProfile),
	}
}

// DefaultProfiles returns the built-in profile for every provider.
func DefaultProfiles() *ProfileRegistry {
	r := NewProfileRegistry()
	sentinel2 := BandMapping{Blue: "B02", Green: "B03", Red: "B04", NIR: "B08", SWIR1: "B11", SWIR2: "B12", Scale: 1}

	for _, p := range []*ProviderProfile{
		{
			Source:     models.SourcePlanet,
			Collection: "PSScene",
			Resolution: 3,
			Bands:      BandMapping{Blue: "blue", Green: "green", Red: "red", NIR: "nir", Scale: 10000},
		},
		{Source: models.SourceCopernicus, Collection: "sentinel-2-l2a", Resolution: 10, Bands: sentinel2},
		{Source: models.SourceSentinelHub, Collection: "sentinel-2-l2a", Resolution: 10, Bands: sentinel2},
		{
			Source:     models.SourceEarthEngine,
			Collection: "COPERNICUS/S2_SR_HARMONIZED",
			Resolution: 10,
			Bands:      BandMapping{Blue: "B2", Green: "B3", Red: "B4", NIR: "B8", SWIR1: "B11", SWIR2: "B12", Scale: 10000},
		},
	} {
		r.profiles[p.Source] = p
	}
	return r
}

// LoadProfiles loads provider profiles from YAML files in dir on top of the
// built-in defaults. Only files with a .yaml or .yml extension are processed.
func LoadProfiles(dir string) (*ProfileRegistry, error) {
	registry := DefaultProfiles()

	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to access profiles directory %q: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("profiles path %q is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory %q: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		profile, err := loadProfileFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load profile from %q: %w", path, err)
		}
		registry.Set(profile)
	}

	return registry, nil
}

func loadProfileFile(path string) (*ProviderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var profile ProviderProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateProfile(&profile); err != nil {
		return nil, fmt.Errorf("invalid profile: %w", err)
	}

	return &profile, nil
}

func validateProfile(p *ProviderProfile) error {
	if _, err := models.ParseSource(string(p.Source)); err != nil {
		return err
	}

	if p.Collection == "" {
		return fmt.Errorf("profile collection is required")
	}

	if p.Resolution <= 0 {
		return fmt.Errorf("profile resolution must be positive, got %g", p.Resolution)
	}

	b := p.Bands
	if b.Blue == "" || b.Green == "" || b.Red == "" || b.NIR == "" {
		return fmt.Errorf("profile must map blue, green, red and nir bands")
	}

	if (b.SWIR1 == "") != (b.SWIR2 == "") {
		return fmt.Errorf("profile must map both SWIR bands or neither")
	}

	if b.Scale <= 0 {
		return fmt.Errorf("band scale must be positive, got %g", b.Scale)
	}

	return nil
}

// Set adds or replaces the profile for p.Source.
func (r *ProfileRegistry) Set(p *ProviderProfile) {
	r.profiles[p.Source] = p
}

// Get returns the profile for a source, or nil if none is registered.
func (r *ProfileRegistry) Get(src models.Source) *ProviderProfile {
	return r.profiles[src]
}

// Count returns the number of registered profiles.
func (r *ProfileRegistry) Count() int {
	return len(r.profiles)
}
