package scanning

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		slog.Warn("exec failed",
			"cmd", name,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
			"stderr", truncate(errb.String(), 4<<10),
		)
	} else {
		slog.Debug("exec ok", "cmd", name, "duration_ms", time.Since(start).Milliseconds(), "stdout_bytes", out.Len())
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

// Tesseract implements the Scanner interface with the local tesseract binary
type Tesseract struct {
	binary        string
	lang          string
	tempDir       string
	runner        Runner
	minTextLength int
}

// NewTesseract creates a Tesseract scanner. lang uses tesseract's codes, e.g. "spa+eng".
func NewTesseract(binary, lang string) *Tesseract {
	return NewTesseractWithRunner(binary, lang, execRunner{})
}

// NewTesseractWithRunner creates a Tesseract scanner with a custom command runner (for testing)
func NewTesseractWithRunner(binary, lang string, runner Runner) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if lang == "" {
		lang = "spa+eng"
	}
	return &Tesseract{
		binary:        binary,
		lang:          lang,
		tempDir:       os.TempDir(),
		runner:        runner,
		minTextLength: DefaultMinTextLength,
	}
}

// WithMinTextLength overrides the usable text threshold
func (t *Tesseract) WithMinTextLength(n int) *Tesseract {
	if n > 0 {
		t.minTextLength = n
	}
	return t
}

// WithTempDir sets where page images are written before tesseract reads them
func (t *Tesseract) WithTempDir(dir string) *Tesseract {
	t.tempDir = dir
	return t
}

func (t *Tesseract) Name() string       { return "tesseract" }
func (t *Tesseract) MinTextLength() int { return t.minTextLength }

// Scan runs `tesseract <file> stdout -l <lang>` on a PNG rendition of the image and
// estimates confidence from a second TSV pass.
func (t *Tesseract) Scan(ctx context.Context, img Image) (*Recognition, error) {
	pngData, err := preparePNG(img)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(t.tempDir, "albaran-*.png")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.Write(pngData); err != nil {
		f.Close()
		return nil, fmt.Errorf("writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing temp file: %w", err)
	}

	out, _, err := t.runner.Run(ctx, t.binary, path, "stdout", "-l", t.lang)
	if err != nil {
		return nil, fmt.Errorf("tesseract: %w", err)
	}

	rec := &Recognition{
		Text:     strings.TrimSpace(string(out)),
		Provider: t.Name(),
	}

	if tsv, _, err := t.runner.Run(ctx, t.binary, path, "stdout", "-l", t.lang, "tsv"); err == nil {
		if conf, ok := meanWordConfidence(tsv); ok {
			rec.Confidence = &conf
		}
	} else {
		slog.Debug("tesseract confidence unavailable", "document_id", img.ID, "error", err)
	}

	return rec, nil
}

// meanWordConfidence averages the conf column of tesseract TSV output into 0..1
func meanWordConfidence(tsv []byte) (float64, bool) {
	var sum, n float64
	for i, line := range strings.Split(string(tsv), "\n") {
		if i == 0 || line == "" {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil || v < 0 {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / n / 100, true
}

// Close is a no-op
func (t *Tesseract) Close() error {
	return nil
}
