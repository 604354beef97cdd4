package domain

import (
	"errors"
	"fmt"
	"strings"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is a named snapshot of the image-processing options.
type Profile struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Config PipelineConfig `json:"config"`
}

// Apply overlays the profile onto base. The output format travels with the
// profile; the flatten colour is a device setting and stays with base unless
// the profile sets one.
func (p Profile) Apply(base PipelineConfig) PipelineConfig {
	out := p.Config
	if strings.TrimSpace(out.FlattenColor) == "" {
		out.FlattenColor = base.FlattenColor
	}
	return out
}

// FindProfile matches by id first and then by case-insensitive name.
func FindProfile(profiles []Profile, key string) (Profile, error) {
	key = strings.TrimSpace(key)
	for _, p := range profiles {
		if p.ID == key {
			return p, nil
		}
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Name, key) {
			return p, nil
		}
	}
	return Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, key)
}
