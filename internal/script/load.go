package script

import (
	_ "embed"
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"
)

//go:embed sample_mission.toml
var sampleMission []byte

// Load reads and validates the script at path.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML script document.
func Parse(data []byte) (*Script, error) {
	var s Script
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Embedded returns the built-in sample mission.
func Embedded() (*Script, error) {
	return Parse(sampleMission)
}
