package loader

import (
	"context"
	"io"
	"strings"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
)

// TextLoader reads a plain text file as a single document.
type TextLoader struct{}

func NewTextLoader() *TextLoader { return &TextLoader{} }

func (l *TextLoader) Load(_ context.Context, path string) ([]domain.Document, error) {
	f, _, err := openFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, errs.Wrap(err, errs.CodeLoaderFailure, "reading file", errs.FieldPath(path))
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return ensureText(path, nil)
	}
	return []domain.Document{{ID: DocumentID(path), Path: path, Page: 1, Content: text}}, nil
}
