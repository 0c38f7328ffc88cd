package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxContentChars caps extracted content passed to generation.
	MaxContentChars = 6000
	// MinContentChars is the minimum viable content length after trimming.
	MinContentChars = 200
)

var (
	// ErrUnsupportedFormat indicates the artifact kind has no extraction rule.
	ErrUnsupportedFormat = errors.New("unsupported artifact format")
	// ErrEmptyContent indicates extraction produced too little text.
	ErrEmptyContent = errors.New("not enough text to generate test cases")
)

// Kind is the artifact classification, decided once at the upload boundary.
type Kind int

const (
	KindArchive Kind = iota
	KindDocument
	KindPlainText
)

// Artifact is one uploaded file with its detected kind. It lives only for
// the duration of a single extraction call.
type Artifact struct {
	Name string
	Kind Kind
	Data []byte
}

// Source-file extensions accepted inside archives.
var allowedSourceExts = map[string]struct{}{
	".py":   {},
	".js":   {},
	".ts":   {},
	".java": {},
	".cs":   {},
	".html": {},
	".css":  {},
	".sql":  {},
	".md":   {},
	".txt":  {},
}

// DetectKind classifies an upload by filename. Anything that is neither a
// zip archive nor a PDF is treated as plain text, matching upload handling
// elsewhere in the app.
func DetectKind(filename string) Kind {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".zip":
		return KindArchive
	case ".pdf":
		return KindDocument
	default:
		return KindPlainText
	}
}

// Extract normalizes an artifact into a single bounded text blob of at most
// MaxContentChars characters. It fails with ErrEmptyContent when the result
// has fewer than MinContentChars characters after trimming. Output is
// deterministic for identical artifact bytes.
func Extract(a Artifact) (string, error) {
	var text string
	var err error
	switch a.Kind {
	case KindArchive:
		text, err = extractArchive(a.Data)
	case KindDocument:
		text, err = extractDocument(a.Data)
	case KindPlainText:
		text = decodePermissive(a.Data)
	default:
		return "", fmt.Errorf("%w: kind %d", ErrUnsupportedFormat, a.Kind)
	}
	if err != nil {
		return "", err
	}
	text = truncateRunes(text, MaxContentChars)
	if len([]rune(strings.TrimSpace(text))) < MinContentChars {
		return "", ErrEmptyContent
	}
	return text, nil
}

// extractArchive concatenates allow-listed entries in physical container
// order as "### FILE" sections, short-circuiting once the cap is reached.
func extractArchive(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: invalid zip archive", ErrUnsupportedFormat)
	}
	var b strings.Builder
	total := 0
	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		if _, ok := allowedSourceExts[strings.ToLower(filepath.Ext(entry.Name))]; !ok {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			// One unreadable entry never fails the whole extraction.
			continue
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			continue
		}
		section := "\n\n### FILE: " + entry.Name + "\n" + decodePermissive(raw)
		b.WriteString(section)
		total += len([]rune(section))
		if total >= MaxContentChars {
			break
		}
	}
	return b.String(), nil
}

// extractDocument extracts text page by page, joining pages with newlines.
// Pages without extractable text are skipped.
func extractDocument(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: invalid pdf document", ErrUnsupportedFormat)
	}
	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil || text == "" {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String()), nil
}

// decodePermissive interprets bytes as UTF-8, replacing invalid sequences
// instead of failing.
func decodePermissive(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
