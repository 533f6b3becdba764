package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

// buildPDF assembles a minimal single-font PDF with one text run per page.
func buildPDF(pages ...string) []byte {
	objs := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
	}
	kids := make([]string, 0, len(pages))
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	objs = append(objs,
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
				"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, body := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, body)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractTextReadsPagesInOrder(t *testing.T) {
	t.Parallel()

	raw := buildPDF("Council Meeting Minutes", "Property tax approved")
	text, err := New(Config{}).ExtractText(raw)
	require.NoError(t, err)

	first := strings.Index(text, "Council Meeting Minutes")
	second := strings.Index(text, "Property tax approved")
	require.GreaterOrEqual(t, first, 0, "text: %q", text)
	require.Greater(t, second, first, "text: %q", text)
}

func TestExtractTextCorruptDocument(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).ExtractText([]byte("%PDF-1.4\nthis is not really a pdf"))
	var parseErr *meeting.ParseError
	require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
	assert.Equal(t, meeting.StageParse, meeting.StageOf(err))
}

func TestExtractTextEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).ExtractText(nil)
	var parseErr *meeting.ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestExtractTextNoTextLayer(t *testing.T) {
	t.Parallel()

	e := &Extractor{pages: func([]byte) ([]string, error) {
		return []string{"   \n\n", "\t", "Page 1 of 2"}, nil
	}}
	_, err := e.ExtractText([]byte("%PDF"))
	require.ErrorIs(t, err, ErrNoText)
	var parseErr *meeting.ParseError
	require.True(t, errors.As(err, &parseErr))
}

func TestExtractTextTruncates(t *testing.T) {
	t.Parallel()

	e := &Extractor{
		cfg: Config{MaxChars: 10},
		pages: func([]byte) ([]string, error) {
			return []string{"Résumé of the council meeting"}, nil
		},
	}
	text, err := e.ExtractText([]byte("%PDF"))
	require.NoError(t, err)
	assert.Equal(t, "Résumé of "+TruncationMarker, text)
}

func TestClean(t *testing.T) {
	t.Parallel()

	in := "  Minutes\r\n\r\n\r\n\r\nItem 1:   Budget    approved\nPage 3 of 12\n\n\n\nAdjourned  "
	assert.Equal(t, "Minutes\n\nItem 1: Budget approved\n\nAdjourned", Clean(in))
}
