package server

import (
	"fmt"
	"path"
	"strings"

	"github.com/a-h/templ"
)

//go:generate templ generate

type listingEntry struct {
	Name string
	Dir  bool
	Size int64
}

func (e listingEntry) href(dir string) string {
	href := path.Join(dir, e.Name)
	if e.Dir {
		href += "/"
	}
	return href
}

func (e listingEntry) size() string {
	if e.Dir {
		return ""
	}
	return formatSize(e.Size)
}

func listingPage(dir string, entries []listingEntry) templ.Component {
	if !strings.HasSuffix(dir, "/") {
		dir += "/"
	}
	return listing(dir, entries)
}

func notFoundPage(name string) templ.Component {
	return notFound(name)
}

func formatSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
