package main

import (
	"errors"
	"net/http"

	"resolveit/evidence"
)

const (
	maxUploadBytes = evidence.MaxFiles * (10 << 20)
	proofField     = "proof"
)

func (s *Server) handleUploadProof(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	headers := r.MultipartForm.File[proofField]
	if len(headers) > evidence.MaxFiles {
		s.writeServiceError(w, r, evidence.ErrTooManyFiles)
		return
	}

	files := make([]evidence.File, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		defer f.Close()
		files = append(files, evidence.File{
			OriginalName: h.Filename,
			ContentType:  h.Header.Get("Content-Type"),
			Body:         f,
		})
	}

	refs, err := s.uploader.Upload(r.Context(), files)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, struct {
		Message string   `json:"message"`
		Files   []string `json:"files"`
	}{"Files uploaded!", refs})
}
