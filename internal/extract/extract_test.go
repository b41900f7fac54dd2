package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"financial-reporter/internal/extract/testpdf"
	"financial-reporter/internal/shared/storage/object/local"
)

func TestPDFExtractJoinsPages(t *testing.T) {
	data := testpdf.Build("Revenue grew 15 percent", "Margins (operating) improved")

	text, err := PDF{}.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, "Revenue grew 15 percent\n\nMargins (operating) improved", text)
}

func TestPDFExtractRejectsNonPDF(t *testing.T) {
	_, err := PDF{}.Extract(context.Background(), []byte("hello, not a pdf at all"))
	assert.Error(t, err)
}

func TestPDFExtractEmptyDocument(t *testing.T) {
	_, err := PDF{}.Extract(context.Background(), testpdf.Build(""))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtractTextSavesDerivedCopy(t *testing.T) {
	ctx := context.Background()
	store := local.New(t.TempDir())
	key, _, _, err := store.Save(ctx, "user-1", "q3.pdf", bytes.NewReader(testpdf.Build("Quarterly results")))
	require.NoError(t, err)

	text, err := ExtractText(ctx, store, nil, key)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly results", text)

	saved, err := LoadText(ctx, store, ExtractedKey(key))
	require.NoError(t, err)
	assert.Equal(t, text, saved)
}

func TestExtractTextWrapsExtractorErrors(t *testing.T) {
	ctx := context.Background()
	store := local.New(t.TempDir())
	key, _, _, err := store.Save(ctx, "user-1", "q3.pdf", strings.NewReader("%PDF-1.4\n"))
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = ExtractText(ctx, store, ExtractorFunc(func(context.Context, []byte) (string, error) {
		return "", boom
	}), key)
	assert.ErrorIs(t, err, boom)

	_, err = store.Open(ctx, ExtractedKey(key))
	assert.Error(t, err)
}

func TestBuildAtLeastSize(t *testing.T) {
	data := testpdf.BuildAtLeast(10*1024, "Earnings call transcript line")
	assert.GreaterOrEqual(t, len(data), 10*1024)

	text, err := PDF{}.Extract(context.Background(), data)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Earnings call transcript line\n\n"))
}
