package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/babelcloud/gbox/packages/sensorframe/config"
)

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	noColor := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = noColor })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

func resetStreamConfig(t *testing.T) {
	t.Cleanup(func() {
		config.Set("stream.format", "rgb24")
		config.Set("stream.width", 640)
		config.Set("stream.height", 480)
	})
}

func TestSynthThenReplay(t *testing.T) {
	resetStreamConfig(t)
	dir := t.TempDir()
	capturePath := filepath.Join(dir, "capture.sfc.zst")

	out := runCommand(t, "synth", capturePath,
		"--frames", "6", "--width", "8", "--height", "4", "--chunk-size", "10",
		"--short-every", "3", "--long-every", "5")
	assert.Contains(t, out, "6 frames at 8x4")
	assert.Contains(t, out, "2 short, 1 over-length")

	framesDir := filepath.Join(dir, "frames")
	out = runCommand(t, "replay", capturePath,
		"--width", "8", "--height", "4", "--format", "rgb24",
		"--out", framesDir, "--every", "2", "--trace")

	assert.Contains(t, out, "6 frames (rgb24 8x4)")
	assert.Contains(t, out, "full      3")
	assert.Contains(t, out, "partial   2")
	assert.Contains(t, out, "dropped   1")
	assert.Contains(t, out, "wrote 3 PNG files")
	assert.Contains(t, out, "BayerProcessor.Convert")

	entries, err := os.ReadDir(framesDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{
		"frame-000001-full.png",
		"frame-000003-partial.png",
		"frame-000005-dropped.png",
	}, names)
}

func TestReplayMissingFile(t *testing.T) {
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"replay", filepath.Join(t.TempDir(), "missing.sfc")})
	t.Cleanup(func() { rootCmd.SetArgs(nil) })

	assert.ErrorIs(t, rootCmd.Execute(), os.ErrNotExist)
}

func TestRootHelpOrder(t *testing.T) {
	var out bytes.Buffer
	printRootHelpOrdered(&out, rootCmd)
	help := out.String()

	serve := strings.Index(help, "  serve")
	streams := strings.Index(help, "  streams")
	replay := strings.Index(help, "  replay")
	synth := strings.Index(help, "  synth")
	require.True(t, serve >= 0 && streams >= 0 && replay >= 0 && synth >= 0, help)
	assert.Less(t, serve, streams)
	assert.Less(t, streams, replay)
	assert.Less(t, replay, synth)
}
