package loader

import (
	"context"
	"strings"

	"github.com/tmc/langchaingo/documentloaders"
	"github.com/tmc/langchaingo/schema"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
)

// PDFLoader extracts the plain text of every page of a PDF.
type PDFLoader struct {
	password string
}

// PDFOption configures a PDFLoader.
type PDFOption func(*PDFLoader)

// WithPassword opens encrypted PDFs with the given password.
func WithPassword(password string) PDFOption {
	return func(l *PDFLoader) { l.password = password }
}

func NewPDFLoader(opts ...PDFOption) *PDFLoader {
	l := &PDFLoader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load returns one document per non-blank page, numbered from 1.
func (l *PDFLoader) Load(ctx context.Context, path string) ([]domain.Document, error) {
	f, info, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var opts []documentloaders.PDFOptions
	if l.password != "" {
		opts = append(opts, documentloaders.WithPassword(l.password))
	}
	pages, err := loadPages(ctx, documentloaders.NewPDF(f, info.Size(), opts...))
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeLoaderFailure, "reading pdf", errs.FieldPath(path))
	}

	id := DocumentID(path)
	docs := make([]domain.Document, 0, len(pages))
	for i, p := range pages {
		text := strings.TrimSpace(p.PageContent)
		if text == "" {
			continue
		}
		page := i + 1
		if n, ok := p.Metadata["page"].(int); ok {
			page = n
		}
		docs = append(docs, domain.Document{ID: id, Path: path, Page: page, Content: text})
	}
	return ensureText(path, docs)
}

// loadPages guards against panics inside the PDF parser on malformed input.
func loadPages(ctx context.Context, pdf documentloaders.PDF) (docs []schema.Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errs.Errorf(errs.CodeLoaderFailure, "malformed pdf: %v", r)
		}
	}()
	return pdf.Load(ctx)
}
