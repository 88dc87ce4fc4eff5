// Package document inspects lab report PDFs: encryption, text, tables, page
// images. Every call is stateless.
package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/labreports/internal/common"
)

// MinCharsPerPage is the average text density below which a PDF is treated as scanned.
const MinCharsPerPage = 100

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Pdfimages string // binary name or absolute path; if empty -> "pdfimages"

	MaxPages int // 0 = no limit when rendering
}

type Service struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdfimages == "" {
		cfg.Pdfimages = "pdfimages"
	}
	return &Service{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// CheckEncrypted reports whether the PDF needs a user password to open.
// Unreadable files report false; later steps reject them.
func (s *Service) CheckEncrypted(path string) bool {
	err := validatePDF(path, "")
	if err == nil {
		return false
	}
	if errors.Is(err, common.ErrEncryptionCredential) {
		return true
	}
	s.logger.Warn("document.check_encryption.unreadable", "path", path, "error", err)
	return false
}

// Decrypt verifies password against the PDF. A wrong or empty password returns
// false with an error wrapping common.ErrEncryptionCredential.
func (s *Service) Decrypt(path, password string) (bool, error) {
	if password == "" {
		return false, common.NewAppError("DECRYPT", "No password provided", common.ErrEncryptionCredential)
	}
	if err := validatePDF(path, password); err != nil {
		if errors.Is(err, common.ErrEncryptionCredential) {
			s.logger.Info("document.decrypt.wrong_password", "path", path)
			return false, common.NewAppError("DECRYPT", "Incorrect password", common.ErrEncryptionCredential)
		}
		return false, err
	}
	return true, nil
}

// DecryptToFile writes a decrypted copy of path to out.
func (s *Service) DecryptToFile(path, out, password string) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	if err := decryptPDF(path, out, password); err != nil {
		s.logger.Error("document.decrypt.write_failed", "path", path, "out", out, "error", err)
		return err
	}
	return nil
}

// PageCount returns the number of pages; missing or unreadable files are an error.
func (s *Service) PageCount(path, password string) (int, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, fmt.Errorf("%w: %v", common.ErrInvalidDocument, err)
	}
	return pdfPageCount(path, password)
}

// ExtractText runs pdftotext in layout mode and normalizes the result.
func (s *Service) ExtractText(ctx context.Context, path, password string) (string, error) {
	raw, err := s.layoutText(ctx, path, password)
	if err != nil {
		return "", fmt.Errorf("%w: pdftotext: %v", common.ErrExtractionFailure, err)
	}
	return Normalize(raw), nil
}

// ExtractTables returns tables derived from the layout text. Empty on any failure.
func (s *Service) ExtractTables(ctx context.Context, path, password string) [][][]string {
	raw, err := s.layoutText(ctx, path, password)
	if err != nil {
		s.logger.Warn("document.tables.failed", "path", path, "error", err)
		return [][][]string{}
	}
	tables := tablesFromLayout(raw)
	if tables == nil {
		return [][][]string{}
	}
	return tables
}

// Layout is what one pdftotext pass yields.
type Layout struct {
	Text        string
	Tables      [][][]string
	NeedsVision bool
}

// Analyze runs pdftotext once and derives the normalized text, the tables and
// the vision heuristic from that single pass. On failure NeedsVision is true.
func (s *Service) Analyze(ctx context.Context, path, password string) (Layout, error) {
	raw, err := s.layoutText(ctx, path, password)
	if err != nil {
		s.logger.Warn("document.analyze.failed", "path", path, "error", err)
		return Layout{Tables: [][][]string{}, NeedsVision: true},
			fmt.Errorf("%w: pdftotext: %v", common.ErrExtractionFailure, err)
	}
	l := Layout{Text: Normalize(raw), Tables: tablesFromLayout(raw)}
	if l.Tables == nil {
		l.Tables = [][][]string{}
	}
	l.NeedsVision = s.needsVision(ctx, path, password, l.Text)
	return l, nil
}

// NeedsVisionHeuristic is true when average text per page is under
// MinCharsPerPage or any page embeds a raster image. Errors count as true.
func (s *Service) NeedsVisionHeuristic(ctx context.Context, path, password string) bool {
	text, err := s.ExtractText(ctx, path, password)
	if err != nil {
		return true
	}
	return s.needsVision(ctx, path, password, text)
}

// needsVision applies the density and image checks to already extracted text.
// Density is measured in characters, not bytes.
func (s *Service) needsVision(ctx context.Context, path, password, text string) bool {
	pages, err := s.PageCount(path, password)
	if err != nil || pages == 0 {
		return true
	}
	if utf8.RuneCountInString(text)/pages < MinCharsPerPage {
		return true
	}
	has, err := s.HasImages(ctx, path, password)
	if err != nil {
		return true
	}
	return has
}

// HasImages lists embedded images with pdfimages and reports whether any is a raster image.
func (s *Service) HasImages(ctx context.Context, path, password string) (bool, error) {
	args := withPassword([]string{"-list"}, password)
	args = append(args, path)
	out, errb, err := s.runner.Run(ctx, s.cfg.Pdfimages, args...)
	if err != nil {
		return false, fmt.Errorf("pdfimages: %w: %s", err, clip(string(errb), 512))
	}
	return countRasterImages(string(out)) > 0, nil
}

var rePageFile = regexp.MustCompile(`-(\d+)\.png$`)

// RenderPagesToImages rasterizes every page to outDir/page_N.png at zoom × 72 DPI.
func (s *Service) RenderPagesToImages(ctx context.Context, path, outDir, password string, zoom float64) ([]string, error) {
	start := time.Now()
	if zoom <= 0 {
		zoom = 2.0
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}
	tmpDir, err := os.MkdirTemp(outDir, "render-*")
	if err != nil {
		return nil, err
	}
	defer func(path string) {
		if err := os.RemoveAll(path); err != nil {
			s.logger.Warn("document.render.cleanup_failed", "dir", path, "error", err)
		}
	}(tmpDir)

	dpi := int(72 * zoom)
	args := withPassword([]string{"-r", strconv.Itoa(dpi), "-png"}, password)
	if s.cfg.MaxPages > 0 {
		args = append(args, "-l", strconv.Itoa(s.cfg.MaxPages))
	}
	prefix := filepath.Join(tmpDir, "page")
	args = append(args, path, prefix)
	if _, errb, err := s.runner.Run(ctx, s.cfg.Pdftoppm, args...); err != nil {
		return nil, fmt.Errorf("%w: pdftoppm: %v: %s", common.ErrExtractionFailure, err, clip(string(errb), 512))
	}

	// pdftoppm zero-pads page numbers depending on page count; order numerically
	matches, _ := filepath.Glob(prefix + "-*.png")
	type page struct {
		n    int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		sm := rePageFile.FindStringSubmatch(m)
		if sm == nil {
			continue
		}
		n, _ := strconv.Atoi(sm[1])
		pages = append(pages, page{n: n, path: m})
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("%w: pdftoppm produced no images", common.ErrExtractionFailure)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, 0, len(pages))
	for _, p := range pages {
		dst := filepath.Join(outDir, fmt.Sprintf("page_%d.png", p.n))
		if err := os.Rename(p.path, dst); err != nil {
			return nil, fmt.Errorf("move rendered page: %w", err)
		}
		out = append(out, dst)
	}
	s.logger.Info("document.render.ok",
		"path", path,
		"pages", len(out),
		"dpi", dpi,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func (s *Service) layoutText(ctx context.Context, path, password string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix [-upw pw] <path> -
	args := withPassword([]string{"-layout", "-enc", "UTF-8", "-eol", "unix"}, password)
	args = append(args, path, "-")
	out, errb, err := s.runner.Run(ctx, s.cfg.Pdftotext, args...)
	if err != nil {
		return "", fmt.Errorf("%w: %s", err, clip(string(errb), 512))
	}
	return string(out), nil
}

func withPassword(args []string, password string) []string {
	if password == "" {
		return args
	}
	return append(args, "-upw", password)
}

// countRasterImages counts "image" rows in `pdfimages -list` output.
func countRasterImages(listing string) int {
	n := 0
	body := false
	for _, line := range strings.Split(listing, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "---") {
			body = true
			continue
		}
		if !body {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 && fields[2] == "image" {
			n++
		}
	}
	return n
}
