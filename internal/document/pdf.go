package document

import (
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// openPDF extracts one chapter per page. Pages without text are skipped but
// keep their page number in the title.
func openPDF(path string) (*Document, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer file.Close()

	doc := &Document{}
	if info := reader.Trailer().Key("Info"); !info.IsNull() {
		doc.Title = strings.TrimSpace(info.Key("Title").Text())
		doc.Author = strings.TrimSpace(info.Key("Author").Text())
	}

	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := page.Font(name)
				fonts[name] = &font
			}
		}
		text, err := page.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("failed to extract text from page %d: %w", i, err)
		}
		text = cleanText(text)
		if text == "" {
			continue
		}
		doc.Chapters = append(doc.Chapters, Chapter{Title: fmt.Sprintf("Page %d", i), Text: text})
	}
	return doc, nil
}
