package server

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/a-h/templ"
	"github.com/spf13/afero"

	"github.com/conneroisu/sitepipe/internal/livereload"
)

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.URL.Path)

	info, err := s.fs.Stat(name)
	if err == nil && info.IsDir() {
		if !strings.HasSuffix(r.URL.Path, "/") {
			http.Redirect(w, r, r.URL.Path+"/", http.StatusMovedPermanently)
			return
		}
		index := path.Join(name, "index.html")
		if idx, err := s.fs.Stat(index); err == nil && !idx.IsDir() {
			s.serveFile(w, r, index, idx)
			return
		}
		s.serveListing(w, r, name)
		return
	}

	if err != nil && os.IsNotExist(err) && path.Ext(name) == "" {
		// Pretty URLs: /about serves about.html.
		if alt, altErr := s.fs.Stat(name + ".html"); altErr == nil && !alt.IsDir() {
			s.serveFile(w, r, name+".html", alt)
			return
		}
	}

	if err != nil {
		if os.IsNotExist(err) {
			s.renderPage(w, r, http.StatusNotFound, notFoundPage(name))
			return
		}
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	s.serveFile(w, r, name, info)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, name string, info os.FileInfo) {
	f, err := s.fs.Open(name)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	if s.hub == nil || !isHTML(name) {
		http.ServeContent(w, r, name, info.ModTime(), f)
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data = livereload.Inject(data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(w, r, name, info.ModTime(), bytes.NewReader(data))
}

func (s *Server) serveListing(w http.ResponseWriter, r *http.Request, dir string) {
	infos, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	entries := make([]listingEntry, 0, len(infos))
	for _, fi := range infos {
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		name := fi.Name()
		if fi.IsDir() {
			name += "/"
		}
		entries = append(entries, listingEntry{Name: name, Dir: fi.IsDir(), Size: fi.Size()})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Dir != entries[j].Dir {
			return entries[i].Dir
		}
		return entries[i].Name < entries[j].Name
	})

	s.renderPage(w, r, http.StatusOK, listingPage(dir, entries))
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, status int, page templ.Component) {
	var buf bytes.Buffer
	if err := page.Render(r.Context(), &buf); err != nil {
		s.logger.Error(r.Context(), err, "Failed to render page", "path", r.URL.Path)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	data := buf.Bytes()
	if s.hub != nil {
		data = livereload.Inject(data)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(data)
	}
}

func isHTML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".html" || ext == ".htm" {
		return true
	}
	mt, _, _ := mime.ParseMediaType(mime.TypeByExtension(ext))
	return mt == "text/html"
}
