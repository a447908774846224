package corpus

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ledongthuc/pdf"
)

// Loader reads the plain text of a corpus file.
type Loader interface {
	Load(ctx context.Context, path string) (string, error)
	SupportedFormats() []string
}

// Registry maps file extensions to loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the built-in text, PDF and DOCX
// loaders.
func NewRegistry() *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range []Loader{&TextLoader{}, &PDFLoader{}, &DOCXLoader{}} {
		for _, f := range l.SupportedFormats() {
			r.loaders[f] = l
		}
	}
	return r
}

// Get returns the loader for format, an extension without the dot.
func (r *Registry) Get(format string) (Loader, error) {
	l, ok := r.loaders[format]
	if !ok {
		return nil, errors.Newf("no loader for format: %q", format)
	}
	return l, nil
}

// Register adds or replaces the loader for format.
func (r *Registry) Register(format string, l Loader) {
	r.loaders[format] = l
}

// TextLoader handles plain text and markdown files.
type TextLoader struct{}

func (l *TextLoader) SupportedFormats() []string { return []string{"txt", "md", ""} }

func (l *TextLoader) Load(_ context.Context, path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Wrap(err, "reading text file")
	}
	return string(data), nil
}

// PDFLoader extracts the plain text of every page.
type PDFLoader struct{}

func (l *PDFLoader) SupportedFormats() []string { return []string{"pdf"} }

func (l *PDFLoader) Load(ctx context.Context, path string) (string, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return "", errors.Wrap(err, "opening PDF")
	}
	defer f.Close()

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// Unreadable pages are skipped.
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// DOCXLoader reads the paragraphs of word/document.xml, one per line.
type DOCXLoader struct{}

func (l *DOCXLoader) SupportedFormats() []string { return []string{"docx"} }

func (l *DOCXLoader) Load(_ context.Context, path string) (string, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return "", errors.Wrap(err, "opening DOCX")
	}
	defer r.Close()

	for _, f := range r.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", errors.Wrap(err, "opening document.xml")
		}
		defer rc.Close()
		return docxText(rc)
	}
	return "", errors.New("word/document.xml not found in DOCX")
}

// docxText streams the document body, joining w:t runs within a paragraph
// and ending each paragraph with a newline.
func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		sb     strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", errors.Wrap(err, "parsing DOCX XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteString(" ")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}
	return sb.String(), nil
}
