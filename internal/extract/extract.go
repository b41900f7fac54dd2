package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"financial-reporter/internal/shared/storage/object"
)

// ExtractedSuffix is appended to a storage key to address its plain-text copy.
const ExtractedSuffix = ".extracted.txt"

// ErrNoText is returned when a document yields no text at all.
var ErrNoText = errors.New("no extractable text")

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// PDF extracts text page by page with github.com/ledongthuc/pdf.
type PDF struct{}

// Extract returns page texts joined by a blank line.
func (PDF) Extract(ctx context.Context, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, reader.NumPage())
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.TrimSpace(text))
	}

	out := strings.Join(pages, "\n\n")
	if strings.TrimSpace(out) == "" {
		return "", ErrNoText
	}
	return out, nil
}

// ExtractText pulls text from a stored object and persists a derived .extracted.txt copy.
func ExtractText(ctx context.Context, store object.ObjectStore, ex Extractor, fileKey string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if ex == nil {
		ex = PDF{}
	}

	body, err := store.Open(ctx, fileKey)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s: %w", fileKey, err)
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s: read: %w", fileKey, err)
	}

	text, err := ex.Extract(ctx, raw)
	if err != nil {
		return "", fmt.Errorf("extract text key=%s: %w", fileKey, err)
	}

	if _, err := store.SaveWithKey(ctx, ExtractedKey(fileKey), "text/plain; charset=utf-8", strings.NewReader(text)); err != nil {
		return "", fmt.Errorf("extract text key=%s: save: %w", fileKey, err)
	}
	return text, nil
}

// ExtractedKey returns the key of the plain-text copy of fileKey.
func ExtractedKey(fileKey string) string {
	return fileKey + ExtractedSuffix
}

// LoadText reads back a previously saved plain-text copy.
func LoadText(ctx context.Context, store object.ObjectStore, textKey string) (string, error) {
	body, err := store.Open(ctx, textKey)
	if err != nil {
		return "", fmt.Errorf("load text key=%s: %w", textKey, err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("load text key=%s: read: %w", textKey, err)
	}
	return string(raw), nil
}
