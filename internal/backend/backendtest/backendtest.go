// Package backendtest provides an in-process download service speaking the
// backend HTTP contract, with scripted job progress.
package backendtest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"ytpanel/internal/entity"
)

// Call is one request received by the server.
type Call struct {
	Method string
	Path   string
	Body   string
}

// Server is a scripted backend. Each GET /progress/{id} advances the job one
// step through its script; the last step repeats forever.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	info       map[string]entity.VideoMetadata
	script     []entity.DownloadJob
	startError string
	failList   bool
	jobs       map[string]*job
	order      []string
	nextID     int
	calls      []Call
}

type job struct {
	req    entity.DownloadRequest
	script []entity.DownloadJob
	step   int
	state  entity.DownloadJob
}

// New starts a server that is closed when t finishes.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		info:   make(map[string]entity.VideoMetadata),
		jobs:   make(map[string]*job),
		nextID: 1700000000000,
		script: Simulate(10, "download.mp4"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /extract_info", s.extractInfo)
	mux.HandleFunc("POST /download", s.download)
	mux.HandleFunc("GET /progress/{id}", s.progress)
	mux.HandleFunc("GET /downloads", s.downloads)
	mux.HandleFunc("GET /download_file/{id}", s.downloadFile)

	s.Server = httptest.NewServer(s.record(mux))
	t.Cleanup(s.Close)

	return s
}

// Simulate returns a script climbing to 100% in steps and completing with filename.
func Simulate(steps int, filename string) []entity.DownloadJob {
	steps = max(steps, 1)
	script := make([]entity.DownloadJob, 0, steps+1)

	for i := range steps {
		script = append(script, entity.DownloadJob{
			Status:   entity.JobStatusDownloading,
			Progress: float64(i * 100 / steps),
		})
	}

	return append(script, entity.DownloadJob{Status: entity.JobStatusCompleted, Progress: 100, Filename: filename})
}

// SetInfo registers the metadata answered for rawURL. Unknown URLs get a 400.
func (s *Server) SetInfo(rawURL string, meta entity.VideoMetadata) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.info[rawURL] = meta
}

// SetScript sets the progress script used by jobs started afterwards.
func (s *Server) SetScript(steps ...entity.DownloadJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.script = steps
}

// FailStart makes POST /download answer 400 with msg. An empty msg sends no error field.
func (s *Server) FailStart(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.startError = msg
	if msg == "" {
		s.startError = "\x00"
	}
}

// FailList makes GET /downloads answer 500.
func (s *Server) FailList(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failList = fail
}

// Calls returns the received requests whose path starts with prefix.
func (s *Server) Calls(prefix string) []Call {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Call

	for _, c := range s.calls {
		if strings.HasPrefix(c.Path, prefix) {
			out = append(out, c)
		}
	}

	return out
}

// Requests returns the download requests received, in order.
func (s *Server) Requests() []entity.DownloadRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]entity.DownloadRequest, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.jobs[id].req)
	}

	return out
}

// FileContent is the body served for a completed job.
func FileContent(downloadID string) string {
	return "file-of-" + downloadID
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body []byte
		if r.Body != nil {
			body, _ = io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: string(body)})
		s.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

func (s *Server) extractInfo(w http.ResponseWriter, r *http.Request) {
	var in struct {
		URL string `json:"url"`
	}

	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.URL == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "URL is required"})

		return
	}

	s.mu.Lock()
	meta, ok := s.info[in.URL]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Could not extract video information"})

		return
	}

	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	var req entity.DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request data"})

		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.startError {
	case "":
	case "\x00":
		writeJSON(w, http.StatusBadRequest, map[string]string{})

		return
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": s.startError})

		return
	}

	id := strconv.Itoa(s.nextID)
	s.nextID++

	s.jobs[id] = &job{
		req:    req,
		script: append([]entity.DownloadJob(nil), s.script...),
		state:  entity.DownloadJob{DownloadID: id, Status: entity.JobStatusDownloading},
	}
	s.order = append(s.order, id)

	writeJSON(w, http.StatusOK, map[string]string{"download_id": id})
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	j, ok := s.jobs[id]

	if ok && len(j.script) > 0 {
		j.state = j.script[min(j.step, len(j.script)-1)]
		j.state.DownloadID = id
		j.step++
	}

	var out entity.DownloadJob
	if ok {
		out = j.state
	}
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"status": entity.JobStatusNotFound, "progress": 0})

		return
	}

	writeJSON(w, http.StatusOK, out)
}

func (s *Server) downloads(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failList {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "storage unavailable"})

		return
	}

	list := make([]entity.CompletedDownload, 0)

	for _, id := range s.order {
		j := s.jobs[id]
		if j.state.Status == entity.JobStatusCompleted {
			list = append(list, entity.CompletedDownload{DownloadID: id, Filename: j.state.Filename, Ready: true})
		}
	}

	writeJSON(w, http.StatusOK, list)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	completed := ok && j.state.Status == entity.JobStatusCompleted
	s.mu.Unlock()

	if !completed {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Download not found or not completed"})

		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", j.state.Filename))
	_, _ = w.Write([]byte(FileContent(id)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
