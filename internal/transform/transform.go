package transform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"tenderq/internal/config"
	"tenderq/internal/fileutil"
	"tenderq/internal/logging"
)

// Transformer converts the document at src into a structured result at dest.
// Running it twice on the same input produces identical output.
type Transformer interface {
	Transform(ctx context.Context, src, dest string) (Result, error)
}

// Result describes a successful transform.
type Result struct {
	ResultLocator string
	Fields        Fields
	Confidence    float64
}

// FieldsJSON encodes the structured fields for storage.
func (r Result) FieldsJSON() (string, error) {
	data, err := json.Marshal(r.Fields)
	if err != nil {
		return "", fmt.Errorf("encode fields: %w", err)
	}
	return string(data), nil
}

// LowConfidenceError is returned when extraction found too few key fields.
type LowConfidenceError struct {
	Confidence float64
	Minimum    float64
}

func (e *LowConfidenceError) Error() string {
	return fmt.Sprintf("confidence %.3f below minimum %.3f", e.Confidence, e.Minimum)
}

// Document is the JSON written for each processed bid.
type Document struct {
	SourceFile          string  `json:"source_file"`
	NumPages            int     `json:"num_pages"`
	Pages               []Page  `json:"pages"`
	CombinedCleanedText string  `json:"combined_cleaned_text"`
	Structured          Fields  `json:"structured"`
	Confidence          float64 `json:"confidence"`
}

// Heuristic is the regular-expression based bid field extractor.
type Heuristic struct {
	pdfToText     string
	minConfidence float64
	logger        *slog.Logger
}

// Options configures a Heuristic transformer.
type Options struct {
	// PDFToText is the text extractor binary used for PDF input. Empty
	// disables PDF support; text documents still work.
	PDFToText     string
	MinConfidence float64
}

// New returns a Heuristic transformer.
func New(opts Options, logger *slog.Logger) *Heuristic {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Heuristic{
		pdfToText:     strings.TrimSpace(opts.PDFToText),
		minConfidence: opts.MinConfidence,
		logger:        logging.NewComponentLogger(logger, "transform"),
	}
}

// SupportsPDF reports whether a text extractor binary is configured.
func (h *Heuristic) SupportsPDF() bool {
	return h.pdfToText != ""
}

// NewFromConfig builds a Heuristic from the [transform] section. A pdftotext
// binary that cannot be found on PATH disables PDF support.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *Heuristic {
	bin := strings.TrimSpace(cfg.Transform.PDFToText)
	if bin != "" {
		if resolved, err := exec.LookPath(bin); err == nil {
			bin = resolved
		} else {
			bin = ""
		}
	}
	return New(Options{
		PDFToText:     bin,
		MinConfidence: cfg.Transform.MinConfidence,
	}, logger)
}

// Transform extracts fields from src and writes the JSON document to dest.
func (h *Heuristic) Transform(ctx context.Context, src, dest string) (Result, error) {
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, fmt.Errorf("document missing: %s", src)
		}
		return Result{}, fmt.Errorf("stat document: %w", err)
	}

	pages, err := h.extractPages(ctx, src)
	if err != nil {
		return Result{}, err
	}
	if len(pages) == 0 {
		return Result{}, errors.New("document contains no text")
	}

	texts := make([]string, 0, len(pages))
	var lines []string
	for _, page := range pages {
		texts = append(texts, page.CleanedText)
		lines = append(lines, page.Lines...)
	}
	combined := strings.Join(texts, "\n\n")

	fields := ExtractFields(combined, lines)
	confidence := fields.Confidence()

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return Result{}, fmt.Errorf("encode fields: %w", err)
	}
	if err := ValidateFieldsJSON(fieldsJSON); err != nil {
		return Result{}, err
	}
	if confidence < h.minConfidence {
		return Result{}, &LowConfidenceError{Confidence: confidence, Minimum: h.minConfidence}
	}

	doc := Document{
		SourceFile:          filepath.Base(src),
		NumPages:            len(pages),
		Pages:               pages,
		CombinedCleanedText: combined,
		Structured:          fields,
		Confidence:          confidence,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Result{}, fmt.Errorf("encode document: %w", err)
	}
	if err := fileutil.WriteAtomic(dest, data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write document: %w", err)
	}

	h.logger.Debug("bid document transformed",
		logging.String("source", src),
		logging.String("output", dest),
		logging.Int("pages", len(pages)),
		logging.Float64("confidence", confidence),
	)
	return Result{ResultLocator: dest, Fields: fields, Confidence: confidence}, nil
}

var _ Transformer = (*Heuristic)(nil)
