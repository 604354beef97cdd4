package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dunamismax/cutout/internal/domain"
)

const maxConfigFileBytes = 1 << 20

// LoadPipelineFile reads a JSON pipeline config. Fields missing from the file
// keep their DefaultPipelineConfig value. An empty path returns the defaults.
func LoadPipelineFile(path string) (domain.PipelineConfig, error) {
	cfg := domain.DefaultPipelineConfig()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	raw, err := readConfigFile(path)
	if err != nil {
		return domain.PipelineConfig{}, err
	}
	if err := decodeStrict(raw, &cfg); err != nil {
		return domain.PipelineConfig{}, fmt.Errorf("parse pipeline file %s: %w", path, err)
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return domain.PipelineConfig{}, fmt.Errorf("pipeline file %s: %w", path, err)
	}
	return cfg, nil
}

type profileFile struct {
	Profiles []json.RawMessage `json:"profiles"`
}

// LoadProfiles reads {"profiles": [...]} in file order. Each profile's config
// is layered over the defaults the same way LoadPipelineFile does it.
func LoadProfiles(path string) ([]domain.Profile, error) {
	raw, err := readConfigFile(path)
	if err != nil {
		return nil, err
	}

	var file profileFile
	if err := decodeStrict(raw, &file); err != nil {
		return nil, fmt.Errorf("parse profile file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Profiles))
	profiles := make([]domain.Profile, 0, len(file.Profiles))
	for i, entry := range file.Profiles {
		p := domain.Profile{Config: domain.DefaultPipelineConfig()}
		if err := decodeStrict(entry, &p); err != nil {
			return nil, fmt.Errorf("profile %d: %w", i, err)
		}
		p.ID = strings.TrimSpace(p.ID)
		p.Name = strings.TrimSpace(p.Name)
		if p.ID == "" {
			return nil, fmt.Errorf("profile %d: id is required", i)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("profile %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = true
		p.Config = p.Config.Normalize()
		if err := p.Config.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(io.LimitReader(f, maxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(raw) > maxConfigFileBytes {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileBytes)
	}
	return raw, nil
}

func decodeStrict(raw []byte, into any) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return err
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("multiple JSON values are not allowed")
	}
	return nil
}
