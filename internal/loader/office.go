package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/schema"
)

var slidePath = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

func openZip(data []byte) (*zip.Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open office archive: %w", err)
	}
	return zr, nil
}

// loadDOCX returns the whole document body as one document, one line per paragraph.
func loadDOCX(_ context.Context, _ string, data []byte) ([]schema.Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		text, err := extractXMLText(f)
		if err != nil {
			return nil, fmt.Errorf("read document body: %w", err)
		}
		return []schema.Document{{PageContent: text, Metadata: map[string]any{}}}, nil
	}
	return nil, errors.New("word/document.xml not found")
}

// loadPPTX returns one document per slide, in slide order.
func loadPPTX(ctx context.Context, _ string, data []byte) ([]schema.Document, error) {
	zr, err := openZip(data)
	if err != nil {
		return nil, err
	}

	type slide struct {
		n int
		f *zip.File
	}
	var slides []slide
	for _, f := range zr.File {
		m := slidePath.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{n: n, f: f})
	}
	if len(slides) == 0 {
		return nil, errors.New("presentation has no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].n < slides[j].n })

	docs := make([]schema.Document, 0, len(slides))
	for _, s := range slides {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractXMLText(s.f)
		if err != nil {
			return nil, fmt.Errorf("read slide %d: %w", s.n, err)
		}
		docs = append(docs, schema.Document{
			PageContent: text,
			Metadata:    map[string]any{MetaSlide: s.n},
		})
	}
	return docs, nil
}

// extractXMLText collects the character data of OOXML text runs (w:t, a:t),
// ending each paragraph with a newline.
func extractXMLText(f *zip.File) (string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	var (
		sb     strings.Builder
		inText bool
	)
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}
