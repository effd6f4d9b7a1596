package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/jobproof/pkg/calibration"
)

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadCalibrationProfile(t *testing.T) {
	path := writeProfile(t, `
level: strict
levels:
  strict:
    globalMinConfidence: 85
    criticalFieldMinConfidence: 95
    reviewThreshold: 70
    requireRoiForCriticalFields: true
additionalCritical: [serialNumber]
`)

	f, err := LoadCalibrationProfile(path)
	require.NoError(t, err)

	level, ov, err := f.Resolve("")
	require.NoError(t, err)
	assert.Equal(t, calibration.LevelStrict, level)
	require.NotNil(t, ov.Thresholds)
	assert.Equal(t, 85.0, ov.Thresholds.GlobalMinConfidence)
	assert.Equal(t, 95.0, ov.Thresholds.CriticalFieldMinConfidence)
	assert.Equal(t, []string{"serialNumber"}, ov.AdditionalCritical)
}

func TestResolveEnvLevelWinsOverFile(t *testing.T) {
	f := &CalibrationProfileFile{Level: "strict"}
	level, ov, err := f.Resolve("lenient")
	require.NoError(t, err)
	assert.Equal(t, calibration.LevelLenient, level)
	assert.Nil(t, ov.Thresholds, "no override block for the chosen level")
}

func TestResolveRejectsUnknownLevel(t *testing.T) {
	f := &CalibrationProfileFile{Level: "extreme"}
	_, _, err := f.Resolve("")
	assert.Error(t, err)
}

func TestLoadCalibrationProfileRejectsBadYAML(t *testing.T) {
	path := writeProfile(t, "levels: [not, a, map]")
	_, err := LoadCalibrationProfile(path)
	assert.Error(t, err)
}

func TestResolveCalibrationWithoutProfileFile(t *testing.T) {
	cfg := &Config{CalibrationLevel: "strict"}
	level, ov, err := ResolveCalibration(cfg)
	require.NoError(t, err)
	assert.Equal(t, calibration.LevelStrict, level)
	assert.Nil(t, ov.Thresholds)
	assert.Empty(t, ov.AdditionalCritical)
}

func TestResolveCalibrationMissingFileFails(t *testing.T) {
	cfg := &Config{CalibrationProfilePath: "/nonexistent/calibration.yaml"}
	_, _, err := ResolveCalibration(cfg)
	assert.Error(t, err)
}
