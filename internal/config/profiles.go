package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EncodeProfile holds the codec flags for one use case. Preview and proxy
// profiles trade quality for speed; the export profile is configurable.
type EncodeProfile struct {
	VideoCodec   string   `yaml:"video_codec"`
	AudioCodec   string   `yaml:"audio_codec"`
	Preset       string   `yaml:"preset"`
	CRF          int      `yaml:"crf"`
	AudioBitrate string   `yaml:"audio_bitrate"`
	PixelFormat  string   `yaml:"pixel_format"`
	ExtraArgs    []string `yaml:"extra_args"`
}

// Profiles groups the three encode profiles the engine uses.
type Profiles struct {
	Preview EncodeProfile `yaml:"preview"`
	Proxy   EncodeProfile `yaml:"proxy"`
	Export  EncodeProfile `yaml:"export"`
}

// DefaultProfiles returns the built-in encode profiles.
func DefaultProfiles() *Profiles {
	return &Profiles{
		Preview: EncodeProfile{
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			Preset:       "ultrafast",
			CRF:          28,
			AudioBitrate: "128k",
			PixelFormat:  "yuv420p",
		},
		Proxy: EncodeProfile{
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			Preset:       "ultrafast",
			CRF:          30,
			AudioBitrate: "96k",
			PixelFormat:  "yuv420p",
		},
		Export: EncodeProfile{
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			Preset:       "medium",
			CRF:          18,
			AudioBitrate: "192k",
			PixelFormat:  "yuv420p",
		},
	}
}

// LoadProfiles loads encode profiles from a YAML file. Fields left unset in
// the file keep their default values.
func LoadProfiles(path string) (*Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles file: %w", err)
	}

	profiles := DefaultProfiles()
	if err := yaml.Unmarshal(data, profiles); err != nil {
		return nil, fmt.Errorf("failed to parse profiles file: %w", err)
	}

	if err := profiles.Validate(); err != nil {
		return nil, err
	}
	return profiles, nil
}

// FindProfilesFile searches for a profiles file in standard locations.
// Returns empty string if not found (non-fatal).
func FindProfilesFile(dataDir string) string {
	locations := []string{
		"./clipforge.yaml",
		"./clipforge.yml",
		filepath.Join(dataDir, "profiles.yaml"),
		filepath.Join(dataDir, "profiles.yml"),
	}

	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate checks every profile for obviously broken values.
func (p *Profiles) Validate() error {
	for name, prof := range map[string]EncodeProfile{
		"preview": p.Preview,
		"proxy":   p.Proxy,
		"export":  p.Export,
	} {
		if prof.VideoCodec == "" {
			return fmt.Errorf("profile %s: video_codec cannot be empty", name)
		}
		if prof.CRF < 0 || prof.CRF > 51 {
			return fmt.Errorf("profile %s: crf must be between 0 and 51", name)
		}
	}
	return nil
}
