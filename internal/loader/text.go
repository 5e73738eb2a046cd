package loader

import (
	"bytes"
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

func loadText(ctx context.Context, _ string, data []byte) ([]schema.Document, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("text is not valid UTF-8: %w", ErrUnsupportedFormat)
	}
	return documentloaders.NewText(bytes.NewReader(data)).Load(ctx)
}
