package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/saviobatista/movement-logger/internal/uploads"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	headers := r.MultipartForm.File["dataFile"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}

	files := make([]uploads.File, 0, len(headers))
	for _, h := range headers {
		if h.Filename == "" {
			writeError(w, http.StatusBadRequest, "invalid file name")
			return
		}
		data, err := readPart(h)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read %s", h.Filename))
			return
		}
		files = append(files, uploads.File{Name: h.Filename, Data: data})
	}

	res, err := s.uploads.Preview(r.Context(), files)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func readPart(h *multipart.FileHeader) ([]byte, error) {
	f, err := h.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

type saveResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	DocumentID string `json:"documentId"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req uploads.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, uploads.ErrInvalidRecords.Error())
		return
	}

	upload, err := s.uploads.Save(r.Context(), userFrom(r.Context()), req)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, saveResponse{
		Success:    true,
		Message:    fmt.Sprintf("%d records saved", upload.RecordCount),
		DocumentID: upload.ID,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.uploads.List(r.Context(), userFrom(r.Context()))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	records, err := s.uploads.Records(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.uploads.Delete(r.Context(), userFrom(r.Context()), chi.URLParam(r, "id")); err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "upload deleted"})
}

// handleSummary answers ?from=YYYY-MM-DD&to=YYYY-MM-DD, both days inclusive
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := time.Parse(dateLayout, q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date, want YYYY-MM-DD")
		return
	}
	to, err := time.Parse(dateLayout, q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date, want YYYY-MM-DD")
		return
	}

	summaries, err := s.uploads.Summarize(r.Context(), userFrom(r.Context()), from, to.AddDate(0, 0, 1))
	if err != nil {
		s.serviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}
