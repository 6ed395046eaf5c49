package document

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type epubContainer struct {
	Rootfiles []struct {
		FullPath string `xml:"full-path,attr"`
	} `xml:"rootfiles>rootfile"`
}

type epubPackage struct {
	Metadata struct {
		Titles   []string `xml:"title"`
		Creators []string `xml:"creator"`
		Meta     []struct {
			Name    string `xml:"name,attr"`
			Content string `xml:"content,attr"`
		} `xml:"meta"`
	} `xml:"metadata"`
	Manifest []struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	} `xml:"manifest>item"`
	Spine []struct {
		IDRef  string `xml:"idref,attr"`
		Linear string `xml:"linear,attr"`
	} `xml:"spine>itemref"`
}

func openEPUB(filePath string) (*Document, error) {
	archive, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open epub: %w", err)
	}
	defer archive.Close()

	files := make(map[string]*zip.File, len(archive.File))
	for _, f := range archive.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeXML(files, "META-INF/container.xml", &container); err != nil {
		return nil, err
	}
	if len(container.Rootfiles) == 0 || container.Rootfiles[0].FullPath == "" {
		return nil, fmt.Errorf("epub: container lists no package document")
	}
	opfPath := container.Rootfiles[0].FullPath

	var pkg epubPackage
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return nil, err
	}
	base := path.Dir(opfPath)

	doc := &Document{}
	if len(pkg.Metadata.Titles) > 0 {
		doc.Title = strings.TrimSpace(pkg.Metadata.Titles[0])
	}
	if len(pkg.Metadata.Creators) > 0 {
		doc.Author = strings.TrimSpace(strings.Join(pkg.Metadata.Creators, ", "))
	}

	hrefs := make(map[string]string, len(pkg.Manifest))
	coverID := ""
	for _, meta := range pkg.Metadata.Meta {
		if meta.Name == "cover" {
			coverID = meta.Content
		}
	}
	for _, item := range pkg.Manifest {
		hrefs[item.ID] = resolveHref(base, item.Href)
		if strings.Contains(item.Properties, "cover-image") || (coverID != "" && item.ID == coverID) {
			doc.CoverURL = resolveHref(base, item.Href)
		}
	}

	for i, ref := range pkg.Spine {
		if ref.Linear == "no" {
			continue
		}
		name, ok := hrefs[ref.IDRef]
		if !ok {
			continue
		}
		f, ok := files[name]
		if !ok {
			continue
		}
		title, text, err := readXHTML(f)
		if err != nil {
			return nil, fmt.Errorf("epub: read %s: %w", name, err)
		}
		if text == "" {
			continue
		}
		if title == "" {
			title = fmt.Sprintf("Section %d", i+1)
		}
		doc.Chapters = append(doc.Chapters, Chapter{Title: title, Text: text})
	}
	return doc, nil
}

func resolveHref(base, href string) string {
	if i := strings.IndexByte(href, '#'); i >= 0 {
		href = href[:i]
	}
	if base == "." || base == "" {
		return path.Clean(href)
	}
	return path.Clean(path.Join(base, href))
}

func decodeXML(files map[string]*zip.File, name string, v any) error {
	f, ok := files[name]
	if !ok {
		return fmt.Errorf("epub: missing %s", name)
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	if err := xml.NewDecoder(rc).Decode(v); err != nil {
		return fmt.Errorf("epub: parse %s: %w", name, err)
	}
	return nil
}

func readXHTML(f *zip.File) (string, string, error) {
	rc, err := f.Open()
	if err != nil {
		return "", "", err
	}
	defer rc.Close()
	return extractXHTML(rc)
}

// extractXHTML returns the first heading (or <title>) and the body text with
// block elements separated by blank lines.
func extractXHTML(r io.Reader) (string, string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}
	var (
		b        strings.Builder
		heading  string
		docTitle string
	)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style:
				return
			case atom.Title:
				docTitle = strings.TrimSpace(nodeText(n))
				return
			case atom.H1, atom.H2, atom.H3:
				if heading == "" {
					heading = strings.Join(strings.Fields(nodeText(n)), " ")
				}
			case atom.Br:
				b.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && isBlock(n.DataAtom) {
			b.WriteString("\n\n")
		}
	}
	walk(root)

	title := heading
	if title == "" {
		title = docTitle
	}
	return title, cleanText(b.String()), nil
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Section, atom.Article, atom.Blockquote,
		atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Li, atom.Ul, atom.Ol, atom.Pre, atom.Tr, atom.Table, atom.Hr:
		return true
	default:
		return false
	}
}
