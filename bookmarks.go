package main

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
)

// Bookmark marks a frequency of interest. Config-provided bookmarks and
// user-saved ones share this shape.
type Bookmark struct {
	Name          string `yaml:"name" json:"name"`
	Frequency     uint64 `yaml:"frequency" json:"frequency"`
	Mode          string `yaml:"mode,omitempty" json:"mode,omitempty"`
	BandwidthLow  *int   `yaml:"bandwidth_low,omitempty" json:"bandwidth_low,omitempty"`
	BandwidthHigh *int   `yaml:"bandwidth_high,omitempty" json:"bandwidth_high,omitempty"`
}

// BookmarkManager holds the merged bookmark set: static entries from the
// config plus user-saved entries persisted as JSON next to the config.
type BookmarkManager struct {
	mu       sync.RWMutex
	static   []Bookmark
	local    []Bookmark
	filePath string
}

// NewBookmarkManager creates a manager. configDir may be empty, in which
// case user bookmarks are kept in memory only.
func NewBookmarkManager(static []Bookmark, configDir string) (*BookmarkManager, error) {
	m := &BookmarkManager{static: static}

	if configDir != "" {
		if err := os.MkdirAll(configDir, 0755); err != nil {
			return nil, fmt.Errorf("creating config directory: %w", err)
		}
		m.filePath = filepath.Join(configDir, "bookmarks.json")
		if err := m.load(); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("loading bookmarks: %w", err)
		}
	}

	return m, nil
}

func (m *BookmarkManager) load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		m.local = nil
		return nil
	}
	if err := json.Unmarshal(data, &m.local); err != nil {
		return fmt.Errorf("parsing bookmarks file: %w", err)
	}
	return nil
}

func (m *BookmarkManager) saveLocked() error {
	if m.filePath == "" {
		return nil
	}
	data, err := json.MarshalIndent(m.local, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling bookmarks: %w", err)
	}
	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("writing bookmarks file: %w", err)
	}
	return nil
}

// All returns the merged bookmark list as a copy.
func (m *BookmarkManager) All() []Bookmark {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Bookmark, 0, len(m.static)+len(m.local))
	out = append(out, m.static...)
	out = append(out, m.local...)
	return out
}

// Add saves a user bookmark, replacing any existing one with the same name.
func (m *BookmarkManager) Add(b Bookmark) error {
	if b.Name == "" {
		return fmt.Errorf("bookmark name is required")
	}
	if b.Frequency < UniverseLowHz || b.Frequency > UniverseHighHz {
		return fmt.Errorf("bookmark frequency %d Hz outside 0-30 MHz", b.Frequency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.local {
		if existing.Name == b.Name {
			m.local[i] = b
			return m.saveLocked()
		}
	}
	m.local = append(m.local, b)
	return m.saveLocked()
}

// Remove deletes a user bookmark by name. Config bookmarks cannot be
// removed at runtime.
func (m *BookmarkManager) Remove(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.local {
		if existing.Name == name {
			m.local = append(m.local[:i], m.local[i+1:]...)
			return m.saveLocked()
		}
	}
	return fmt.Errorf("no local bookmark named %q", name)
}

// BookmarkOverlay draws bookmark markers into the waterfall's frequency
// scale band. It implements OverlayRenderer: given the current view
// bounds it computes its own pixel positions, keeping the waterfall free
// of any bookmark knowledge.
type BookmarkOverlay struct {
	manager *BookmarkManager
}

// NewBookmarkOverlay wraps a manager as a scale-band overlay.
func NewBookmarkOverlay(manager *BookmarkManager) *BookmarkOverlay {
	return &BookmarkOverlay{manager: manager}
}

// DrawOverlay implements OverlayRenderer.
func (o *BookmarkOverlay) DrawOverlay(img *image.RGBA, band image.Rectangle, snap ViewSnapshot) {
	if snap.TotalBandwidth <= 0 {
		return
	}

	width := band.Dx()
	for _, b := range o.manager.All() {
		x, ok := freqToPixel(float64(b.Frequency), snap, width)
		if !ok {
			continue
		}
		drawVLine(img, band.Min.X+x, band.Max.Y-4, band.Max.Y, bookmarkColor)
	}
}
