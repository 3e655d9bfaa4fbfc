// Package resume turns uploaded resume files into plain text.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// MaxFileSize is the largest accepted resume upload.
const MaxFileSize = 5 * 1024 * 1024

var (
	// ErrUnsupportedType is returned for files that are neither .pdf nor .txt.
	ErrUnsupportedType = errors.New("unsupported resume file type")

	// ErrUnreadable is returned when a PDF cannot be parsed.
	ErrUnreadable = errors.New("resume file could not be read")
)

// Kind is a supported resume file format.
type Kind string

// Supported kinds.
const (
	KindPDF  Kind = "pdf"
	KindText Kind = "txt"
)

// KindOf returns the kind for a file name, by extension.
func KindOf(filename string) (Kind, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	switch Kind(ext) {
	case KindPDF, KindText:
		return Kind(ext), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, filepath.Ext(filename))
	}
}

// ContentType returns the MIME type used when archiving a file of this kind.
func (k Kind) ContentType() string {
	if k == KindPDF {
		return "application/pdf"
	}
	return "text/plain; charset=utf-8"
}

// Extract returns the text of a resume file.
// PDF pages are concatenated; text files are read as UTF-8 with invalid bytes dropped.
func Extract(filename string, data []byte) (string, error) {
	kind, err := KindOf(filename)
	if err != nil {
		return "", err
	}
	if kind == KindPDF {
		return extractPDF(data)
	}
	return strings.ToValidUTF8(string(data), ""), nil
}

func extractPDF(data []byte) (text string, err error) {
	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: %v", ErrUnreadable, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	out, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnreadable, err)
	}
	return strings.ToValidUTF8(string(out), ""), nil
}
