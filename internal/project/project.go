// Package project loads and saves the project document the render engine
// operates on: the media table, the timeline tracks and the render settings.
// The editing model that mutates this document lives outside the engine.
package project

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/clipforge/internal/timeline"
)

// Project is the persisted project document.
type Project struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Media      []*timeline.MediaItem `json:"media"`
	Timeline   timeline.Timeline     `json:"timeline"`
	Settings   timeline.Settings     `json:"settings"`
	ModifiedAt time.Time             `json:"modified_at"`
}

// Load reads a project document from disk and validates its clips.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read project: %w", err)
	}

	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Save writes the project document to disk.
func (p *Project) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write project: %w", err)
	}
	return nil
}

// Validate checks the document at the model boundary so the compiler can
// assume well-formed shapes.
func (p *Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("project id cannot be empty")
	}
	if err := p.Settings.Validate(); err != nil {
		return fmt.Errorf("project %s: %w", p.ID, err)
	}
	for i := range p.Timeline.Tracks {
		for j := range p.Timeline.Tracks[i].Clips {
			if err := p.Timeline.Tracks[i].Clips[j].Validate(); err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
		}
	}
	return nil
}

// MediaTable returns the media items indexed by id.
func (p *Project) MediaTable() timeline.MediaTable {
	table := make(timeline.MediaTable, len(p.Media))
	for _, m := range p.Media {
		table[m.ID] = m
	}
	return table
}

// Hash returns a stable hash of the whole document, used as the manifest's
// project identity.
func (p *Project) Hash() string {
	data, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
