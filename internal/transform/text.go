package transform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const minLineLength = 2

var (
	cidTokenPattern    = regexp.MustCompile(`\(cid:\d+\)`)
	inlineSpacePattern = regexp.MustCompile(`[ \t\f\r\v]+`)
	lineEdgePattern    = regexp.MustCompile(` *\n *`)
)

// ErrPDFToTextUnavailable is returned for PDF input when no extractor is configured.
var ErrPDFToTextUnavailable = errors.New("pdftotext not available")

// Page is the cleaned text of one document page.
type Page struct {
	Number      int      `json:"page_number"`
	CleanedText string   `json:"cleaned_text"`
	Lines       []string `json:"lines"`
}

// SanitizeText drops pdf glyph placeholders, applies NFKC and collapses whitespace.
func SanitizeText(text string) string {
	if text == "" {
		return ""
	}
	text = norm.NFKC.String(text)
	text = cidTokenPattern.ReplaceAllString(text, "")
	text = inlineSpacePattern.ReplaceAllString(text, " ")
	text = lineEdgePattern.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

func isPDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-"))
}

// extractPages returns the cleaned pages of src. Form feeds separate pages.
func (h *Heuristic) extractPages(ctx context.Context, src string) ([]Page, error) {
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	raw := string(data)
	if isPDF(data) {
		if h.pdfToText == "" {
			return nil, ErrPDFToTextUnavailable
		}
		raw, err = h.runPDFToText(ctx, src)
		if err != nil {
			return nil, err
		}
	}

	var pages []Page
	for i, chunk := range strings.Split(raw, "\f") {
		cleaned := SanitizeText(chunk)
		if cleaned == "" {
			continue
		}
		pages = append(pages, Page{
			Number:      i + 1,
			CleanedText: cleaned,
			Lines:       splitLines(cleaned),
		})
	}
	return pages, nil
}

func (h *Heuristic) runPDFToText(ctx context.Context, src string) (string, error) {
	cmd := exec.CommandContext(ctx, h.pdfToText, "-layout", "-enc", "UTF-8", src, "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("pdftotext: %w: %s", err, detail)
		}
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if len(line) >= minLineLength {
			lines = append(lines, line)
		}
	}
	return lines
}
