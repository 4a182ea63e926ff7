package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/rs/zerolog/log"

	"github.com/snowretail/docsearch/pkg/models"
)

// FileSystemWalker defines the interface for walking directories
type FileSystemWalker interface {
	Walk(root string, options *godirwalk.Options) error
}

// FileReader defines the interface for reading files
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
}

// DefaultFileSystemWalker implements FileSystemWalker using godirwalk
type DefaultFileSystemWalker struct{}

func (d *DefaultFileSystemWalker) Walk(root string, options *godirwalk.Options) error {
	return godirwalk.Walk(root, options)
}

// DefaultFileReader implements FileReader using os
type DefaultFileReader struct{}

func (d *DefaultFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// Loader reads documents from a directory tree. Markdown and plain-text
// files become documents: the title comes from the filename, the document
// type from the extension, and the department from the first path segment
// under the root.
type Loader struct {
	Root       string
	Walker     FileSystemWalker
	FileReader FileReader
}

// NewLoader creates a Loader over the given root directory.
func NewLoader(root string) *Loader {
	return &Loader{
		Root:       root,
		Walker:     &DefaultFileSystemWalker{},
		FileReader: &DefaultFileReader{},
	}
}

// Load walks the root and returns one document per eligible file.
func (l *Loader) Load() ([]models.Document, error) {
	var docs []models.Document
	err := l.Walker.Walk(l.Root, &godirwalk.Options{
		Unsorted: false,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de != nil && de.IsDir() {
				if shouldSkipDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			ext := strings.ToLower(filepath.Ext(path))
			if ext != ".md" && ext != ".txt" {
				return nil
			}
			b, err := l.FileReader.ReadFile(path)
			if err != nil {
				log.Warn().Err(err).Str("path", path).Msg("failed to read file")
				return nil
			}
			docs = append(docs, l.document(path, ext, string(b)))
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (l *Loader) document(path, ext, content string) models.Document {
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)

	department := ""
	if i := strings.IndexByte(rel, '/'); i > 0 {
		department = rel[:i]
	}

	base := filepath.Base(path)
	title := strings.TrimSuffix(base, ext)

	return models.Document{
		ID:           rel,
		Title:        title,
		Content:      content,
		DocumentType: strings.TrimPrefix(ext, "."),
		Department:   department,
		Version:      1,
	}
}

func shouldSkipDir(path string) bool {
	base := filepath.Base(path)
	return base != "." && strings.HasPrefix(base, ".")
}
