package loader

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/schema"
	"github.com/xuri/excelize/v2"
)

// loadXLSX renders every sheet as CSV, one document per sheet.
func loadXLSX(ctx context.Context, _ string, data []byte) ([]schema.Document, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	var docs []schema.Document
	for _, name := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(name)
		if err != nil {
			return nil, fmt.Errorf("read sheet %s: %w", name, err)
		}

		var sb strings.Builder
		w := csv.NewWriter(&sb)
		for _, row := range rows {
			if isBlankRow(row) {
				continue
			}
			if err := w.Write(row); err != nil {
				return nil, fmt.Errorf("render sheet %s: %w", name, err)
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, fmt.Errorf("render sheet %s: %w", name, err)
		}

		docs = append(docs, schema.Document{
			PageContent: sb.String(),
			Metadata:    map[string]any{MetaSheet: name},
		})
	}
	return docs, nil
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
