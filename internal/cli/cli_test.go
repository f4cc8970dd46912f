package cli

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/aintyourcupoftea/PDF-Signer/internal/inspect"
	"github.com/aintyourcupoftea/PDF-Signer/internal/pdftest"
)

// fixtures writes a two-page PDF and a signature PNG into a fresh directory
// and points HOME there so no user config is picked up.
func fixtures(t *testing.T) (dir, pdf, img string) {
	t.Helper()
	dir = t.TempDir()
	t.Setenv("HOME", dir)

	pdf = filepath.Join(dir, "in.pdf")
	img = filepath.Join(dir, "sig.png")
	gt.NoError(t, os.WriteFile(pdf, pdftest.Pages(2), 0o600))
	gt.NoError(t, os.WriteFile(img, pdftest.PNG(pdftest.Fill(40, 20, color.NRGBA{B: 0xff, A: 0xff})), 0o600))
	return dir, pdf, img
}

func runArgs(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestSignCommand(t *testing.T) {
	dir, pdf, img := fixtures(t)
	out := filepath.Join(dir, "out.pdf")

	code, _, stderr := runArgs("sign", "--in", pdf, "--image", img, "--out", out, "--page", "1")
	gt.Equal(t, 0, code)
	gt.S(t, stderr).Contains("signed pdf written")

	_, err := os.Stat(out + ".tmp")
	gt.True(t, os.IsNotExist(err))

	f, err := os.Open(out)
	gt.NoError(t, err)
	defer f.Close()

	rep, err := inspect.Inspect(f)
	gt.NoError(t, err)
	gt.Equal(t, 0, len(rep.Pages[0].XObjects))
	gt.Equal(t, 1, len(rep.Pages[1].XObjects))
}

func TestSignCommandUsesConfigFile(t *testing.T) {
	dir, pdf, img := fixtures(t)
	out := filepath.Join(dir, "out.pdf")
	cfg := filepath.Join(dir, "pdfsign.toml")
	gt.NoError(t, os.WriteFile(cfg, []byte("page_index = 5\n"), 0o600))

	code, _, stderr := runArgs("sign", "--config", cfg, "--in", pdf, "--image", img, "--out", out)
	gt.Equal(t, 1, code)
	gt.S(t, stderr).Contains("page index")

	// An explicit flag wins over the file.
	code, _, _ = runArgs("sign", "--config", cfg, "--in", pdf, "--image", img, "--out", out, "--page", "0")
	gt.Equal(t, 0, code)
}

func TestSignCommandValidation(t *testing.T) {
	dir, pdf, img := fixtures(t)

	tests := []struct {
		name string
		args []string
	}{
		{"missing out", []string{"sign", "--in", pdf, "--image", img}},
		{"missing image", []string{"sign", "--in", pdf, "--out", filepath.Join(dir, "o.pdf")}},
		{"same in and out", []string{"sign", "--in", pdf, "--image", img, "--out", pdf}},
		{"missing input file", []string{"sign", "--in", filepath.Join(dir, "nope.pdf"), "--image", img, "--out", filepath.Join(dir, "o.pdf")}},
		{"bad scale", []string{"sign", "--in", pdf, "--image", img, "--out", filepath.Join(dir, "o.pdf"), "--scale", "0"}},
		{"bad log format", []string{"sign", "--log-format", "xml", "--in", pdf, "--image", img, "--out", filepath.Join(dir, "o.pdf")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, _ := runArgs(tt.args...)
			gt.Equal(t, 1, code)
		})
	}
}

func TestInspectCommand(t *testing.T) {
	_, pdf, _ := fixtures(t)

	code, stdout, _ := runArgs("inspect", pdf)
	gt.Equal(t, 0, code)
	gt.S(t, stdout).Contains("Pages: 2")
	gt.S(t, stdout).Contains("--- Page 2 ---")

	code, _, _ = runArgs("inspect")
	gt.Equal(t, 1, code)
}

func TestEnvOverridesFile(t *testing.T) {
	dir, pdf, img := fixtures(t)
	out := filepath.Join(dir, "out.pdf")
	cfg := filepath.Join(dir, "pdfsign.toml")
	gt.NoError(t, os.WriteFile(cfg, []byte("page_index = 5\n"), 0o600))
	t.Setenv("PDFSIGN_PAGE_INDEX", "1")

	code, _, _ := runArgs("sign", "--config", cfg, "--in", pdf, "--image", img, "--out", out)
	gt.Equal(t, 0, code)
}

func TestWriteFileAtomic(t *testing.T) {
	p := filepath.Join(t.TempDir(), "x.pdf")
	gt.NoError(t, writeFileAtomic(p, []byte("one")))
	gt.NoError(t, writeFileAtomic(p, []byte("two")))

	b, err := os.ReadFile(p)
	gt.NoError(t, err)
	gt.Equal(t, "two", string(b))

	gt.Error(t, writeFileAtomic(filepath.Join(t.TempDir(), "missing", "x.pdf"), []byte("x")))
}

func TestSweepInterval(t *testing.T) {
	gt.Equal(t, time.Second, sweepInterval(time.Second))
	gt.Equal(t, 5*time.Minute, sweepInterval(10*time.Minute))
}

func TestSignCommandRejectsOversizedImage(t *testing.T) {
	dir, pdf, img := fixtures(t)
	out := filepath.Join(dir, "out.pdf")

	code, _, stderr := runArgs("sign", "--in", pdf, "--image", img, "--out", out, "--max-image-pixels", "100")
	gt.Equal(t, 1, code)
	gt.S(t, stderr).Contains("stamp image too large")

	_, err := os.Stat(out)
	gt.True(t, os.IsNotExist(err))
}

func TestServeLogsStagingDir(t *testing.T) {
	dir, _, _ := fixtures(t)
	staged := filepath.Join(dir, "staged")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var stdout, stderr bytes.Buffer
	code := run(ctx, []string{"serve", "--addr", "127.0.0.1:0", "--staging-dir", staged}, &stdout, &stderr)
	gt.Equal(t, 0, code)
	gt.S(t, stderr.String()).Contains("staging ready")
	gt.S(t, stderr.String()).Contains(staged)
}

func TestServeRequiresValidConfig(t *testing.T) {
	fixtures(t)
	code, _, _ := runArgs("serve", "--staging-ttl", "0s")
	gt.Equal(t, 1, code)
}
