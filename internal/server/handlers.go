package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	chimw "github.com/go-chi/chi/v5/middleware"

	"multi-platform-rpa/internal/logging"
	"multi-platform-rpa/internal/model"
	"multi-platform-rpa/internal/publishers"
	"multi-platform-rpa/internal/storage"
)

const maxBatch = 50

type handlers struct {
	deps Deps
	log  *logging.Logger
}

// fileBuffer serves raw video bytes under the storage root.
func (h *handlers) fileBuffer(w http.ResponseWriter, r *http.Request) {
	ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
	defer func() { h.deps.Metrics.ObserveFileRequest(ww.Status()) }()

	p := r.URL.Query().Get("path")
	full, err := storage.Resolve(h.deps.StorageDir, p)
	switch {
	case errors.Is(err, storage.ErrInvalidPath):
		writeError(ww, http.StatusBadRequest, "Invalid file path")
		return
	case errors.Is(err, storage.ErrOutsideRoot):
		h.log.Warnf("file-buffer: denied %q", p)
		writeError(ww, http.StatusForbidden, "Access denied")
		return
	case err != nil:
		h.log.Errorf("file-buffer: resolve %q: %v", p, err)
		writeError(ww, http.StatusInternalServerError, "Failed to read file")
		return
	}

	f, err := os.Open(full)
	if err != nil {
		h.log.Errorf("file-buffer: %v", err)
		writeError(ww, http.StatusInternalServerError, "Failed to read file")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		writeError(ww, http.StatusInternalServerError, "Failed to read file")
		return
	}

	ww.Header().Set("Content-Type", "application/octet-stream")
	http.ServeContent(ww, r, "", info.ModTime(), f)
}

func (h *handlers) platforms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.Dispatcher.Platforms())
}

const (
	defaultErrorLines = 50
	maxErrorLines     = 1000
)

// recentErrors returns the tail of the errors log.
func (h *handlers) recentErrors(w http.ResponseWriter, r *http.Request) {
	n := defaultErrorLines
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "n must be a positive integer")
			return
		}
		n = min(parsed, maxErrorLines)
	}
	lines, err := logging.Tail(h.deps.ErrorsLog, n)
	if err != nil {
		h.log.Errorf("errors tail: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to read errors log")
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"lines": lines})
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func normalize(req *model.PublishRequest) error {
	p, err := model.ParsePlatform(string(req.Platform))
	if err != nil {
		return err
	}
	req.Platform = p
	return nil
}

func (h *handlers) publish(w http.ResponseWriter, r *http.Request) {
	var req model.PublishRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := normalize(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.deps.Dispatcher.Dispatch(publishers.WithSource(r.Context(), publishers.SourceAPI), req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (h *handlers) publishBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []model.PublishRequest
	if err := decodeRequest(w, r, &reqs); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(reqs) == 0 || len(reqs) > maxBatch {
		writeError(w, http.StatusBadRequest, "batch must hold 1 to 50 requests")
		return
	}
	for i := range reqs {
		if err := normalize(&reqs[i]); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, h.deps.Dispatcher.DispatchBatch(r.Context(), reqs))
}
