// Package pdf converts fetched meeting documents into linear text.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/JakeFAU/cityscope-ingest/internal/meeting"
)

// TruncationMarker is appended when text is cut to Config.MaxChars.
const TruncationMarker = "\n\n[Document truncated...]"

var (
	// ErrNoText means the document parsed but has no text layer (e.g. a scan).
	ErrNoText = errors.New("document has no extractable text")

	excessNewlines = regexp.MustCompile(`\n{3,}`)
	excessSpaces   = regexp.MustCompile(` {2,}`)
	pageFooter     = regexp.MustCompile(`Page \d+ of \d+`)
)

// Config tunes text preparation.
type Config struct {
	// MaxChars truncates the cleaned text; zero disables truncation.
	MaxChars int
}

type pageReader func(raw []byte) ([]string, error)

// Extractor implements meeting.TextExtractor for PDF documents.
type Extractor struct {
	cfg   Config
	pages pageReader
}

// New builds an Extractor backed by github.com/ledongthuc/pdf.
func New(cfg Config) *Extractor {
	return &Extractor{cfg: cfg, pages: readPages}
}

// ExtractText returns the cleaned text of every page in reading order, or a
// *meeting.ParseError when the document is unreadable or has no text.
func (e *Extractor) ExtractText(raw []byte) (string, error) {
	if len(raw) == 0 {
		return "", &meeting.ParseError{Err: errors.New("empty document")}
	}
	pages, err := e.pages(raw)
	if err != nil {
		return "", &meeting.ParseError{Err: err}
	}
	text := Clean(strings.Join(pages, "\n\n"))
	if strings.TrimSpace(text) == "" {
		return "", &meeting.ParseError{Err: ErrNoText}
	}
	return truncate(text, e.cfg.MaxChars), nil
}

// Clean collapses blank-line runs and repeated spaces, drops page footers, and trims.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = pageFooter.ReplaceAllString(text, "")
	text = excessSpaces.ReplaceAllString(text, " ")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func truncate(text string, maxChars int) string {
	if maxChars <= 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars]) + TruncationMarker
}

// readPages parses the PDF and returns each page's plain text. The parser panics on
// some corrupt streams, so panics are turned into errors.
func readPages(raw []byte) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("corrupt pdf stream: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	total := reader.NumPage()
	if total == 0 {
		return nil, errors.New("pdf has no pages")
	}
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("read page %d: %w", i, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}
