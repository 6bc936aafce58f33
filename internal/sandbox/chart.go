package sandbox

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"

	"github.com/moduleforge/builder/internal/report"
)

// ChartArtifact is one chart a capability suite emitted for validation,
// per spec §4.5.
type ChartArtifact struct {
	DeclaredMIME string
	Bytes        []byte
	SeriesNames  []string
	// DeclaredSeries is what the test suite's own data summary claims;
	// checked against SeriesNames for consistency.
	DeclaredSeries []string
}

const (
	minPlausibleDimension = 8
	maxPlausibleDimension = 20000
)

// ValidateChartArtifact checks the declared MIME against the byte signature,
// that decoded dimensions are plausible, and that declared series names
// match the data summary, per spec §4.5.
func ValidateChartArtifact(a ChartArtifact, path string) []report.Finding {
	var findings []report.Finding
	addFinding := func(msg string) {
		findings = append(findings, report.Finding{
			Severity: report.SeverityError,
			Kind:     report.KindSchemaMismatch,
			Message:  msg,
			Location: &report.Location{Path: path},
		})
	}

	sniffed := http.DetectContentType(a.Bytes)
	if !mimeCompatible(sniffed, a.DeclaredMIME) {
		addFinding(fmt.Sprintf("chart %q declared MIME %q but byte signature indicates %q", path, a.DeclaredMIME, sniffed))
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(a.Bytes))
	if err != nil {
		addFinding(fmt.Sprintf("chart %q could not be decoded as an image: %v", path, err))
	} else if cfg.Width < minPlausibleDimension || cfg.Height < minPlausibleDimension ||
		cfg.Width > maxPlausibleDimension || cfg.Height > maxPlausibleDimension {
		addFinding(fmt.Sprintf("chart %q has implausible dimensions %dx%d", path, cfg.Width, cfg.Height))
	}

	if !seriesNamesMatch(a.SeriesNames, a.DeclaredSeries) {
		addFinding(fmt.Sprintf("chart %q series names %v do not match declared summary %v", path, a.SeriesNames, a.DeclaredSeries))
	}

	return findings
}

func mimeCompatible(sniffed, declared string) bool {
	if declared == "" {
		return false
	}
	return sniffed == declared
}

func seriesNamesMatch(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]int, len(a))
	for _, s := range a {
		set[s]++
	}
	for _, s := range b {
		if set[s] == 0 {
			return false
		}
		set[s]--
	}
	return true
}

// DeterministicImageHash computes a stable hash of decoded pixel content,
// used by the optional deterministic rendering mode (disabled by default,
// per spec §4.5) to compare a freshly rendered chart against a reference.
func DeterministicImageHash(b []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	bounds := img.Bounds()
	h := sha256.New()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, bl, al := img.At(x, y).RGBA()
			h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8), byte(al >> 8)})
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
