// Package portaltest runs an in-process stand-in for the SGX
// derivatives-historical portal.
//
// Identifiers registered with SetDay answer with a Content-Disposition
// filename carrying the day label; every other identifier answers 200 with
// no filename, the way the real portal treats unpublished identifiers.
package portaltest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

// Server is a fake portal. The zero value is not usable; call New.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	days     map[int]string
	failures map[string][]fault
	hits     map[string]int
	total    int
}

type fault struct {
	status int
	short  bool
}

// New starts a fake portal and stops it when the test ends.
func New(t testing.TB) *Server {
	t.Helper()
	s := &Server{
		days:     make(map[int]string),
		failures: make(map[string][]fault),
		hits:     make(map[string]int),
	}
	r := chi.NewRouter()
	r.Get("/{id}/{file}", s.serveFile)
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// LinkPattern returns a link template pointing at this server.
func (s *Server) LinkPattern() string {
	return s.URL + "/%d/%s"
}

// SetDay publishes a day label (YYYYMMDD) under an identifier.
func (s *Server) SetDay(id int, label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.days[id] = label
}

// SetDays publishes consecutive identifiers starting at first.
// An empty label leaves that identifier unpublished.
func (s *Server) SetDays(first int, labels ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, l := range labels {
		if l != "" {
			s.days[first+i] = l
		}
	}
}

// FailNext makes the next n requests for (id, file) answer with status.
func (s *Server) FailNext(id int, file string, status, n int) {
	s.queue(id, file, fault{status: status}, n)
}

// TruncateNext makes the next n requests for (id, file) declare a
// Content-Length larger than the body they send.
func (s *Server) TruncateNext(id int, file string, n int) {
	s.queue(id, file, fault{short: true}, n)
}

func (s *Server) queue(id int, file string, f fault, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(id, file)
	for range n {
		s.failures[k] = append(s.failures[k], f)
	}
}

// Hits returns how many requests (id, file) received.
func (s *Server) Hits(id int, file string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[key(id, file)]
}

// Total returns the number of requests served.
func (s *Server) Total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Body returns the content served for a published file.
func Body(label, file string) []byte {
	return []byte("sgx " + label + " " + file + "\n")
}

// Filename returns the name the server reports for a file on a day:
// the label is inserted before the extension, WEBPXTICK_DT-20230516.zip.
func Filename(label, file string) string {
	ext := path.Ext(file)
	return strings.TrimSuffix(file, ext) + "-" + label + ext
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "bad identifier", http.StatusBadRequest)
		return
	}
	file := chi.URLParam(r, "file")
	k := key(id, file)

	s.mu.Lock()
	s.total++
	s.hits[k]++
	var f *fault
	if q := s.failures[k]; len(q) > 0 {
		f = &q[0]
		s.failures[k] = q[1:]
	}
	label, ok := s.days[id]
	s.mu.Unlock()

	if f != nil && f.status != 0 {
		http.Error(w, http.StatusText(f.status), f.status)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusOK)
		return
	}

	body := Body(label, file)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", Filename(label, file)))
	w.Header().Set("Content-Type", "application/octet-stream")
	if f != nil && f.short {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)+100))
	} else {
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func key(id int, file string) string {
	return strconv.Itoa(id) + "/" + file
}
