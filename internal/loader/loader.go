// Package loader turns files on disk into domain documents.
package loader

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"pdfqa/internal/domain"
	"pdfqa/internal/errs"
)

// ForPath picks a loader by file extension. PDF options apply to .pdf files only.
func ForPath(path string, pdfOpts ...PDFOption) (domain.Loader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return NewPDFLoader(pdfOpts...), nil
	case ".txt", ".md":
		return NewTextLoader(), nil
	default:
		return nil, errs.New(errs.CodeLoaderUnsupported, "unsupported file type, expected .pdf or .txt", errs.FieldPath(path))
	}
}

// Auto dispatches to the loader matching each path.
type Auto struct {
	// PDFPassword opens encrypted PDFs; empty for plain ones.
	PDFPassword string
}

func (a Auto) Load(ctx context.Context, path string) ([]domain.Document, error) {
	var opts []PDFOption
	if a.PDFPassword != "" {
		opts = append(opts, WithPassword(a.PDFPassword))
	}
	l, err := ForPath(path, opts...)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, path)
}

// DocumentID derives a stable identifier from a file path.
func DocumentID(path string) string {
	h := sha1.Sum([]byte(path))
	return hex.EncodeToString(h[:8])
}

func openFile(path string) (*os.File, os.FileInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, errs.New(errs.CodeLoaderNotFound, "file not found", errs.FieldPath(path))
		}
		return nil, nil, errs.Wrap(err, errs.CodeLoaderFailure, "opening file", errs.FieldPath(path))
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, errs.Wrap(err, errs.CodeLoaderFailure, "stat file", errs.FieldPath(path))
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, nil, errs.New(errs.CodeLoaderUnsupported, "path is a directory", errs.FieldPath(path))
	}
	return f, info, nil
}

func ensureText(path string, docs []domain.Document) ([]domain.Document, error) {
	if len(docs) == 0 {
		return nil, errs.New(errs.CodeLoaderEmpty, "document contains no extractable text", errs.FieldPath(path))
	}
	return docs, nil
}
