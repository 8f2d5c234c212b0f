package livereload

import (
	"bytes"
	"context"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/sitepipe/internal/pipeline"
)

// Notifier turns pipeline events into browser messages. Output paths are
// mapped onto URL paths relative to the served directory.
type Notifier struct {
	hub     *Hub
	baseDir string
}

// NewNotifier creates a notifier for outputs served from baseDir.
func NewNotifier(hub *Hub, baseDir string) *Notifier {
	return &Notifier{hub: hub, baseDir: filepath.Clean(baseDir)}
}

var _ pipeline.Notifier = (*Notifier)(nil)

// Notify implements pipeline.Notifier.
func (n *Notifier) Notify(_ context.Context, ev pipeline.Event) {
	if msg, ok := n.message(ev); ok {
		n.hub.Broadcast(msg)
	}
}

// message decides what browsers should do about ev. Failed runs show the
// error overlay; the next clean run of the same task clears it with a
// reload.
func (n *Notifier) message(ev pipeline.Event) (Message, bool) {
	if len(ev.Errors) > 0 {
		details := errorDetails(ev.Errors)
		n.hub.errMu.Lock()
		n.hub.failed[ev.Task] = details
		n.hub.errMu.Unlock()
		return Message{Type: TypeError, Task: ev.Task, Errors: details}, true
	}

	n.hub.errMu.Lock()
	_, hadErrors := n.hub.failed[ev.Task]
	delete(n.hub.failed, ev.Task)
	n.hub.errMu.Unlock()

	urls := n.URLs(ev.Paths)
	if len(urls) == 0 && !hadErrors {
		return Message{}, false
	}

	switch ev.Reload {
	case pipeline.ReloadInject:
		if len(urls) > 0 && allStylesheets(urls) {
			return Message{Type: TypeCSS, Task: ev.Task, Paths: urls}, true
		}
		return Message{Type: TypeReload, Task: ev.Task}, true
	case pipeline.ReloadFull:
		return Message{Type: TypeReload, Task: ev.Task}, true
	default:
		if hadErrors {
			return Message{Type: TypeReload, Task: ev.Task}, true
		}
		return Message{}, false
	}
}

// URLs maps output file paths to URL paths, dropping anything outside the
// served directory.
func (n *Notifier) URLs(paths []string) []string {
	var urls []string
	for _, p := range paths {
		rel, err := filepath.Rel(n.baseDir, filepath.Clean(p))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		urls = append(urls, "/"+filepath.ToSlash(rel))
	}
	sort.Strings(urls)
	return urls
}

func allStylesheets(urls []string) bool {
	for _, u := range urls {
		if !strings.EqualFold(path.Ext(u), ".css") {
			return false
		}
	}
	return true
}

var bodyClose = []byte("</body>")

// Inject adds the client script tag to an HTML page, before the closing body
// tag when there is one and at the end otherwise.
func Inject(page []byte) []byte {
	tag := []byte(`<script src="` + ScriptPath + `"></script>`)
	idx := lastIndexFold(page, bodyClose)
	if idx < 0 {
		return append(append([]byte(nil), page...), tag...)
	}
	out := make([]byte, 0, len(page)+len(tag))
	out = append(out, page[:idx]...)
	out = append(out, tag...)
	out = append(out, page[idx:]...)
	return out
}

// lastIndexFold is bytes.LastIndex with ASCII case folding.
func lastIndexFold(s, sep []byte) int {
	for i := len(s) - len(sep); i >= 0; i-- {
		if bytes.EqualFold(s[i:i+len(sep)], sep) {
			return i
		}
	}
	return -1
}
