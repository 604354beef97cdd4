package main

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dunamismax/cutout/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func changedSet(names ...string) func(string) bool {
	return func(name string) bool {
		for _, n := range names {
			if n == name {
				return true
			}
		}
		return false
	}
}

func TestResolveConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"output_format":"png","flatten_color":"#000000"}`), 0o600))
	profilesPath := filepath.Join(dir, "profiles.json")
	require.NoError(t, os.WriteFile(profilesPath, []byte(`{"profiles":[
		{"id":"web","name":"Web","config":{"output_format":"webp","resize":{"enabled":true,"width":800,"keep_aspect_ratio":true}}}
	]}`), 0o600))

	cfg, err := resolveConfig(processOptions{
		ConfigPath:   cfgPath,
		ProfilesPath: profilesPath,
		Profile:      "web",
		Height:       300,
		Quality:      80,
		FlattenColor: "#112233",
	}, changedSet("height", "quality", "flatten-color"))
	require.NoError(t, err)

	assert.Equal(t, domain.OutputFormatWEBP, cfg.OutputFormat, "profile beats file")
	assert.Equal(t, "#112233", cfg.FlattenColor, "flags beat profile")
	assert.Equal(t, 0, cfg.Resize.Width, "flags replace both resize axes")
	assert.Equal(t, 300, cfg.Resize.Height)
	assert.Equal(t, domain.CompressConfig{Enabled: true, Quality: 80}, cfg.Compress)
}

func TestResolveConfig_FileOnly(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "pipeline.json")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`{"output_format":"jpeg","flatten_color":"#000000"}`), 0o600))

	cfg, err := resolveConfig(processOptions{ConfigPath: cfgPath}, changedSet())
	require.NoError(t, err)
	assert.Equal(t, domain.OutputFormatJPEG, cfg.OutputFormat)
	assert.Equal(t, "#000000", cfg.FlattenColor)
	assert.Equal(t, domain.DefaultPipelineConfig().Resize, cfg.Resize)
}

func TestResolveConfig_Rejects(t *testing.T) {
	_, err := resolveConfig(processOptions{Format: "bmp"}, changedSet("format"))
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = resolveConfig(processOptions{Profile: "web"}, changedSet())
	require.Error(t, err)

	_, err = resolveConfig(processOptions{Quality: 0}, changedSet("quality"))
	require.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = resolveConfig(processOptions{}, changedSet("width", "height"))
	require.ErrorIs(t, err, domain.ErrInvalidConfig)
}

func TestResolveConfig_Toggles(t *testing.T) {
	cfg, err := resolveConfig(processOptions{
		NoResize:    true,
		NoCompress:  true,
		RemoveBG:    true,
		NoMatting:   true,
		Margin:      4,
		Grayscale:   0,
		FakeCleanup: 15,
	}, changedSet("margin", "grayscale", "fake-cleanup"))
	require.NoError(t, err)

	assert.False(t, cfg.Resize.Enabled)
	assert.False(t, cfg.Compress.Enabled)
	assert.True(t, cfg.BackgroundRemoval.Enabled)
	assert.False(t, cfg.BackgroundRemoval.AlphaMatting)
	assert.Equal(t, domain.AutoCropConfig{Enabled: true, Margin: 4}, cfg.AutoCrop)
	assert.False(t, cfg.Grayscale.Enabled)
	assert.Equal(t, domain.ToleranceConfig{Enabled: true, Tolerance: 15}, cfg.FakeTransparencyCleanup)
}

func TestCollectInputs(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	paths, err := collectInputs([]string{dir, filepath.Join(dir, "notes.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.png"), filepath.Join(dir, "notes.txt")}, paths)

	_, err = collectInputs([]string{filepath.Join(dir, "missing.png")})
	require.Error(t, err)
}

func TestProcessCommand(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "results")
	writePNG(t, filepath.Join(in, "one.png"), 120, 60)
	writePNG(t, filepath.Join(in, "two.png"), 60, 120)

	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"process", in, "--out", out, "--width", "30", "--format", "png", "--no-progress"})
	require.NoError(t, root.Execute())

	for _, name := range []string{"one.png", "two.png"} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err, name)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err)
		assert.Equal(t, 30, cfg.Width, name)
	}
	assert.Contains(t, stdout.String(), "2 processed, 0 failed")
}

func TestProcessCommandReportsFailures(t *testing.T) {
	in := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(in, "bad.png"), []byte("nope"), 0o600))

	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"process", in, "--out", t.TempDir(), "--no-progress"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 images failed")
	assert.True(t, strings.Contains(stdout.String(), "bad.png"))
}

func TestProfilesCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"profiles":[{"id":"thumb","name":"Thumbnail","config":{"resize":{"enabled":true,"width":64,"keep_aspect_ratio":true}}}]}`), 0o600))

	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetArgs([]string{"profiles", "--profiles", path})
	require.NoError(t, root.Execute())

	assert.Contains(t, stdout.String(), "thumb")
	assert.Contains(t, stdout.String(), "64x*")
}
