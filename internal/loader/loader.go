// Package loader turns uploaded files into langchaingo documents, choosing a
// parser by file extension.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

// Metadata keys attached to loaded documents.
const (
	MetaSource = "source"
	MetaPage   = "page"
	MetaSlide  = "slide"
	MetaSheet  = "sheet"
)

var (
	// ErrUnsupportedFormat is returned for formats no parser handles.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyContent is returned when a file holds no extractable text.
	ErrEmptyContent = errors.New("document has no extractable text")
)

type parseFunc func(ctx context.Context, source string, data []byte) ([]schema.Document, error)

var parsers = map[string]parseFunc{
	".pdf":  loadPDF,
	".docx": loadDOCX,
	".pptx": loadPPTX,
	".xlsx": loadXLSX,
	".xlsm": loadXLSX,
	".doc":  legacy,
	".ppt":  legacy,
	".xls":  legacy,
}

// Load parses data according to the extension of filename. Unknown
// extensions are read as UTF-8 text. Every returned document carries the
// file name under MetaSource and has non-blank content.
func Load(ctx context.Context, filename string, data []byte) ([]schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := filepath.Base(filename)
	parse, ok := parsers[Ext(filename)]
	if !ok {
		parse = loadText
	}

	docs, err := parse(ctx, source, data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}

	out := docs[:0]
	for _, d := range docs {
		if strings.TrimSpace(d.PageContent) == "" {
			continue
		}
		if d.Metadata == nil {
			d.Metadata = map[string]any{}
		}
		d.Metadata[MetaSource] = source
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("load %s: %w", source, ErrEmptyContent)
	}
	return out, nil
}

// Ext returns the lower-cased extension of name, including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func legacy(_ context.Context, _ string, _ []byte) ([]schema.Document, error) {
	return nil, fmt.Errorf("legacy binary office format: %w", ErrUnsupportedFormat)
}
