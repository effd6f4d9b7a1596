package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
)

// CalibrationProfileFile is the YAML shape of a calibration profile. It can
// pick the default level, override a level's numeric knobs, and extend the
// always-critical field floor (never shrink it).
//
//	level: strict
//	levels:
//	  strict:
//	    globalMinConfidence: 85
//	    criticalFieldMinConfidence: 95
//	    reviewThreshold: 70
//	    requireRoiForCriticalFields: true
//	additionalCritical: [serialNumber]
type CalibrationProfileFile struct {
	Level              string                                 `yaml:"level"`
	Levels             map[string]calibration.LevelThresholds `yaml:"levels"`
	AdditionalCritical []string                               `yaml:"additionalCritical"`
}

// LoadCalibrationProfile reads and parses a profile file.
func LoadCalibrationProfile(path string) (*CalibrationProfileFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load calibration profile: %w", err)
	}
	var f CalibrationProfileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("config: parse calibration profile: %w", err)
	}
	return &f, nil
}

// Resolve validates the file against an optional level from the
// environment (which wins over the file's own level) and returns the level
// plus the overrides to derive profiles with.
func (f *CalibrationProfileFile) Resolve(envLevel string) (calibration.ThresholdLevel, calibration.ProfileOverrides, error) {
	raw := envLevel
	if raw == "" {
		raw = f.Level
	}
	level, err := calibration.ParseLevel(raw)
	if err != nil {
		return "", calibration.ProfileOverrides{}, err
	}

	ov := calibration.ProfileOverrides{AdditionalCritical: f.AdditionalCritical}
	if th, ok := f.Levels[string(level)]; ok {
		ov.Thresholds = &th
	}
	return level, ov, nil
}

// ResolveCalibration combines the env-level configuration and the optional
// profile file into the level and overrides the pipeline derives its
// calibration profiles from.
func ResolveCalibration(cfg *Config) (calibration.ThresholdLevel, calibration.ProfileOverrides, error) {
	if cfg.CalibrationProfilePath == "" {
		level, err := calibration.ParseLevel(cfg.CalibrationLevel)
		return level, calibration.ProfileOverrides{}, err
	}
	file, err := LoadCalibrationProfile(cfg.CalibrationProfilePath)
	if err != nil {
		return "", calibration.ProfileOverrides{}, err
	}
	return file.Resolve(cfg.CalibrationLevel)
}
