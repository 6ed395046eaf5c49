// Package document loads EPUB and PDF files into plain-text chapters and
// builds the pagination index used for progress estimates.
package document

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrUnsupported is returned for files that are neither EPUB nor PDF.
var ErrUnsupported = errors.New("document: unsupported file type")

// Type is the on-disk format of a document.
type Type string

const (
	TypeEPUB Type = "epub"
	TypePDF  Type = "pdf"
)

var (
	extraneousWhitespace = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankLines           = regexp.MustCompile(`\n{3,}`)
)

// Chapter is one navigable unit: an EPUB spine item or a PDF page.
type Chapter struct {
	Title string
	Text  string
}

// Document is a loaded, text-only book.
type Document struct {
	ID       string
	Title    string
	Author   string
	Path     string
	Source   string
	Type     Type
	CoverURL string
	Chapters []Chapter
}

// FullText joins every chapter, separated by blank lines.
func (d *Document) FullText() string {
	parts := make([]string, 0, len(d.Chapters))
	for _, ch := range d.Chapters {
		if text := strings.TrimSpace(ch.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Chapter returns chapter i, or false when out of range.
func (d *Document) Chapter(i int) (Chapter, bool) {
	if i < 0 || i >= len(d.Chapters) {
		return Chapter{}, false
	}
	return d.Chapters[i], true
}

// Length is the document length in runes.
func (d *Document) Length() int {
	total := 0
	for _, ch := range d.Chapters {
		total += utf8.RuneCountInString(ch.Text)
	}
	return total
}

// DetectType guesses the format from the file extension.
func DetectType(path string) (Type, error) {
	if u, err := url.Parse(path); err == nil && u.Scheme != "" && u.Host != "" {
		path = u.Path
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".epub":
		return TypeEPUB, nil
	case ".pdf":
		return TypePDF, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Ext(path))
	}
}

// SniffType identifies a document by its magic bytes: "%PDF-" for PDF, and
// a zip carrying META-INF/container.xml for EPUB.
func SniffType(path string) (Type, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	head := make([]byte, 64)
	n, _ := io.ReadFull(f, head)
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, []byte("%PDF-")):
		return TypePDF, nil
	case bytes.HasPrefix(head, []byte("PK\x03\x04")) && hasEPUBContainer(path):
		return TypeEPUB, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupported, filepath.Base(path))
	}
}

func hasEPUBContainer(path string) bool {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return false
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name == "META-INF/container.xml" {
			return true
		}
	}
	return false
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Open loads a local path or, through cache, a remote URL. The format comes
// from the extension, or from the file's leading bytes when the name has none.
func Open(ctx context.Context, source string, cache *Cache) (*Document, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, errors.New("document: empty path")
	}

	path := source
	if IsRemote(source) {
		if cache == nil {
			return nil, errors.New("document: remote documents need a cache")
		}
		var err error
		if path, err = cache.Fetch(ctx, source); err != nil {
			return nil, fmt.Errorf("download %s: %w", source, err)
		}
	} else if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}

	kind, err := DetectType(source)
	if errors.Is(err, ErrUnsupported) {
		if sniffed, sniffErr := SniffType(path); sniffErr == nil {
			kind, err = sniffed, nil
		}
	}
	if err != nil {
		return nil, err
	}

	var doc *Document
	switch kind {
	case TypeEPUB:
		doc, err = openEPUB(path)
	case TypePDF:
		doc, err = openPDF(path)
	}
	if err != nil {
		return nil, err
	}
	if len(doc.Chapters) == 0 {
		return nil, fmt.Errorf("document: %s has no readable text", filepath.Base(path))
	}

	identity := path
	if IsRemote(source) {
		identity = source
	}
	doc.ID = documentID(identity)
	doc.Path = path
	doc.Source = source
	doc.Type = kind
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return doc, nil
}

func documentID(identity string) string {
	sum := sha1.Sum([]byte(identity))
	return hex.EncodeToString(sum[:8])
}

func cleanText(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(extraneousWhitespace.ReplaceAllString(line, " "))
	}
	joined := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(joined)
}
