package server

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pdfqa/internal/errs"
)

var pdfMagic = []byte("%PDF-")

// handleUpload stores a multipart "file" field as a uniquely named PDF in
// the upload directory and returns its path for later /chat calls.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Allow for multipart framing on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, errs.New(errs.CodeServerTooLarge, "file too large",
				errs.Field("limit_bytes", s.cfg.MaxUploadBytes)))
			return
		}
		s.writeError(w, r, errs.Wrap(err, errs.CodeServerInvalidInput, "invalid multipart form"))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, errs.Wrap(err, errs.CodeServerInvalidInput, "missing file field"))
		return
	}
	defer file.Close()

	if header.Size > s.cfg.MaxUploadBytes {
		s.writeError(w, r, errs.New(errs.CodeServerTooLarge, "file too large",
			errs.Field("limit_bytes", s.cfg.MaxUploadBytes)))
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		s.writeError(w, r, errs.New(errs.CodeServerInvalidInput, "only .pdf files are accepted"))
		return
	}
	head := make([]byte, len(pdfMagic))
	if _, err := io.ReadFull(file, head); err != nil || !bytes.Equal(head, pdfMagic) {
		s.writeError(w, r, errs.New(errs.CodeServerInvalidInput, "file is not a pdf"))
		return
	}

	path, err := s.save(io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("upload stored",
		zap.String("file_name", header.Filename),
		zap.String("file_path", path),
		zap.Int64("bytes", header.Size))
	writeJSON(w, http.StatusOK, map[string]string{
		"file_path": path,
		"file_name": filepath.Base(header.Filename),
	})
}

func (s *Server) save(src io.Reader) (string, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", errs.Wrap(err, errs.CodeServerInternal, "creating upload dir")
	}
	path := filepath.Join(s.cfg.UploadDir, uuid.NewString()+".pdf")
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", errs.Wrap(err, errs.CodeServerInternal, "creating upload file")
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		_ = os.Remove(path)
		return "", errs.Wrap(err, errs.CodeServerInternal, "writing upload file")
	}
	if err := dst.Close(); err != nil {
		_ = os.Remove(path)
		return "", errs.Wrap(err, errs.CodeServerInternal, "closing upload file")
	}
	return path, nil
}
