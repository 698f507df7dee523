package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-spiro/internal/models"
	"github.com/miradorstack/mirador-spiro/internal/spiro"
)

const recording = `subject,visit,trial,time,volume,flow
101,1,1,0,0,0
101,1,1,1,2,5
101,1,1,2,2.2,0.5
`

func writeRecording(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trial-1.csv")
	require.NoError(t, os.WriteFile(path, []byte(recording), 0o644))
	return path
}

func TestAnalyzeCommandJSON(t *testing.T) {
	path := writeRecording(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"analyze", "--json", path})
	require.NoError(t, root.Execute())

	var result models.AnalysisResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	assert.Equal(t, "trial-1.csv", result.Trial.ID)
	assert.Equal(t, 3, result.SampleCount)
	require.NotNil(t, result.Metrics.FVC)
	assert.InDelta(t, 2.2, *result.Metrics.FVC, 1e-12)
	assert.Equal(t, spiro.VerdictPass, result.Metrics.EVCheck)
}

func TestAnalyzeCommandTextReport(t *testing.T) {
	path := writeRecording(t)

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"analyze", path})
	require.NoError(t, root.Execute())

	report := out.String()
	assert.Contains(t, report, "FVC (L)")
	assert.Contains(t, report, "2.200")
	assert.Contains(t, report, "EV check")
	assert.True(t, strings.Contains(report, "pass"))
}

func TestAnalyzeCommandRejectsBadFlags(t *testing.T) {
	path := writeRecording(t)

	for _, args := range [][]string{
		{"analyze", "--time-unit", "hours", path},
		{"analyze", "--columns", "1,2", path},
		{"analyze", "--rules", filepath.Join(t.TempDir(), "missing.yaml"), path},
		{"analyze", filepath.Join(t.TempDir(), "missing.csv")},
		{"analyze"},
	} {
		root := newRootCmd()
		root.SetOut(&bytes.Buffer{})
		root.SetErr(&bytes.Buffer{})
		root.SetArgs(args)
		assert.Error(t, root.Execute(), strings.Join(args, " "))
	}
}

func TestOptionalFormatting(t *testing.T) {
	v := 1.23456
	assert.Equal(t, "1.235", optional(&v))
	assert.Equal(t, "n/a", optional(nil))
}
