package devserver

import (
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
)

const maxUploadBytes = 10 << 20

func (s *Server) uploadFile(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "validation failed", map[string][]string{
			"file": {"file is required"},
		})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload", nil)
		return
	}
	name := filepath.Base(header.Filename)
	ct := header.Header.Get("Content-Type")
	if ct == "" {
		ct = "application/octet-stream"
	}

	s.mu.Lock()
	s.files[name] = storedFile{contentType: ct, data: data}
	s.mu.Unlock()

	writeData(w, http.StatusCreated, map[string]any{
		"filename": name,
		"size":     len(data),
		"fields":   r.MultipartForm.Value,
	}, "uploaded")
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	s.mu.RLock()
	f, ok := s.files[name]
	s.mu.RUnlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found", nil)
		return
	}

	w.Header().Set("Content-Type", f.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.data)
}
