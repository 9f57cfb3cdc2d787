/*
Package convert is the batch text extractor: it walks an archive of
downloaded announcements and emits markdown files, one per document. PDFs go
through the external pdftotext utility, HTML pages through a DOM text
extraction. Per-file failures never abort the batch.
*/
package convert

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const extractionTimeout = 60 * time.Second

var (
	pageNumberLine = regexp.MustCompile(`^\s*\d+\s*$`)
	ruleLine       = regexp.MustCompile(`^[-─]{10,}$`)
)

// Result counts a batch conversion.
type Result struct {
	Converted int
	Failed    int
	Skipped   int
}

// Run converts every .pdf and .html file under srcDir into markdown files
// under outDir/markdown, preserving the relative directory layout.
func Run(ctx context.Context, srcDir, outDir string, logger *slog.Logger) (Result, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var res Result

	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".pdf" && ext != ".html" {
			res.Skipped++
			return nil
		}

		if err := convertFile(ctx, path, srcDir, outDir); err != nil {
			logger.Warn("conversion failed", "path", path, "error", err)
			res.Failed++
			return nil
		}
		logger.Info("converted", "path", path)
		res.Converted++
		return nil
	})
	if err != nil {
		return res, fmt.Errorf("failed to walk %s: %w", srcDir, err)
	}
	return res, nil
}

func convertFile(ctx context.Context, path, srcDir, outDir string) error {
	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		return err
	}

	var text string
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err = pdfText(ctx, path)
	} else {
		text, err = htmlText(path)
	}
	if err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("extracted empty text (image-only or protected document?)")
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	outPath := filepath.Join(outDir, "markdown", filepath.Dir(rel), stem+".md")
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}

	content := renderMarkdown(stem, rel, cleanText(text))
	return os.WriteFile(outPath, []byte(content), 0o644)
}

// pdfText extracts text with the external pdftotext utility, bounded by a
// per-file timeout.
func pdfText(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "pdftotext", "-raw", path, "-")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("pdftotext timed out after %s", extractionTimeout)
		}
		msg := strings.TrimSpace(stderr.String())
		if strings.Contains(err.Error(), "executable file not found") {
			return "", fmt.Errorf("pdftotext binary not found, install poppler-utils: %w", err)
		}
		return "", fmt.Errorf("pdftotext failed: %v (stderr: %s)", err, msg)
	}
	return out.String(), nil
}

// htmlText extracts the visible text of an archived HTML page.
func htmlText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		return doc.Text(), nil
	}
	return body.Text(), nil
}

// cleanText drops page-number-only lines, horizontal rules and runs of blank
// lines left behind by extraction.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if pageNumberLine.MatchString(trimmed) {
			continue
		}
		if ruleLine.MatchString(trimmed) {
			continue
		}
		if trimmed == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

func renderMarkdown(title, source, text string) string {
	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %s\n", title)
	fmt.Fprintf(&b, "source: %s\n", source)
	fmt.Fprintf(&b, "extracted_at: %s\n", time.Now().UTC().Format("2006-01-02 15:04:05"))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", title)
	b.WriteString(text)
	b.WriteString("\n")
	return b.String()
}
