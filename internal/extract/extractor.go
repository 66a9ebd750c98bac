// Package extract turns document files into plain text with paragraph breaks
// ("\n\n") where the source format has them.
package extract

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrUnsupported is returned for file extensions no extractor handles.
var ErrUnsupported = errors.New("unsupported file type")

// Extractor extracts plain text from document files.
type Extractor struct {
	// maxBytes bounds the size of a file Extract will read; 0 means no limit.
	maxBytes int64
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithMaxBytes rejects files larger than n bytes.
func WithMaxBytes(n int64) ExtractorOption {
	return func(e *Extractor) { e.maxBytes = n }
}

// NewExtractor returns a new Extractor.
func NewExtractor(opts ...ExtractorOption) *Extractor {
	e := &Extractor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Supported reports whether ext (with leading dot, any case) can be extracted.
func Supported(ext string) bool {
	switch strings.ToLower(ext) {
	case ".txt", ".md", ".markdown", ".rst", ".csv", ".pdf", ".docx", ".xlsx":
		return true
	}
	return false
}

// Extract reads the file at path and returns its text content.
func (e *Extractor) Extract(path string) (string, error) {
	if e.maxBytes > 0 {
		info, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat file: %w", err)
		}
		if info.Size() > e.maxBytes {
			return "", fmt.Errorf("file %s is %d bytes, limit is %d", filepath.Base(path), info.Size(), e.maxBytes)
		}
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(content, filepath.Ext(path))
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf"); an empty ext is read as plain text.
func (e *Extractor) ExtractBytes(content []byte, ext string) (string, error) {
	switch strings.ToLower(ext) {
	case ".pdf":
		return extractPDF(content)
	case ".docx":
		return extractDOCX(content)
	case ".xlsx":
		return extractExcel(content)
	case ".txt", ".md", ".markdown", ".rst", ".csv", "":
		return extractPlain(content), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}
