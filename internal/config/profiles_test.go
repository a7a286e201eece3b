package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultProfiles_Valid(t *testing.T) {
	if err := DefaultProfiles().Validate(); err != nil {
		t.Fatalf("default profiles invalid: %v", err)
	}
}

func TestLoadProfiles_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	content := `
export:
  preset: slow
  crf: 16
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	profiles, err := LoadProfiles(path)
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}

	if profiles.Export.Preset != "slow" || profiles.Export.CRF != 16 {
		t.Errorf("export profile = %+v, want overridden preset and crf", profiles.Export)
	}
	// Untouched sections keep defaults.
	if profiles.Preview.Preset != "ultrafast" {
		t.Errorf("preview preset = %s, want default ultrafast", profiles.Preview.Preset)
	}
	if profiles.Export.VideoCodec != "libx264" {
		t.Errorf("unset fields must keep defaults, got %s", profiles.Export.VideoCodec)
	}
}

func TestLoadProfiles_InvalidCRF(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte("preview:\n  crf: 99\n"), 0644); err != nil {
		t.Fatalf("write profiles: %v", err)
	}

	if _, err := LoadProfiles(path); err == nil {
		t.Fatalf("crf out of range must fail validation")
	}
}

func TestLoadProfiles_MissingFile(t *testing.T) {
	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("missing file must error")
	}
}

func TestFindProfilesFile(t *testing.T) {
	dataDir := t.TempDir()

	if got := FindProfilesFile(dataDir); got != "" {
		t.Errorf("FindProfilesFile = %q, want empty with no file", got)
	}

	path := filepath.Join(dataDir, "profiles.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := FindProfilesFile(dataDir); got != path {
		t.Errorf("FindProfilesFile = %q, want %q", got, path)
	}
}
