// Package workspace locates and reads Jenkinsfiles in a project tree.
package workspace

import (
	"strings"
	"time"
)

// File is metadata for a discovered Jenkinsfile, with its path relative to
// the workspace root.
type File struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Finder is the interface for Jenkinsfile lookup.
type Finder interface {
	// Discover returns metadata for every Jenkinsfile under dir (relative
	// to the workspace root).
	Discover(dir string) ([]File, error)
	// Read returns the raw bytes of the file at path (relative to the
	// workspace root).
	Read(path string) ([]byte, error)
}

// IsJenkinsfile reports whether a file name is a pipeline candidate: the
// conventional bare name or a .jenkinsfile / .Jenkinsfile extension.
func IsJenkinsfile(name string) bool {
	if name == "Jenkinsfile" {
		return true
	}
	return strings.HasSuffix(name, ".jenkinsfile") || strings.HasSuffix(name, ".Jenkinsfile")
}
