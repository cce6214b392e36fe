// Package store persists harvested articles as JSON files, one per
// article, keyed by a reversible encoding of the article's URL.
package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/pevans/newsreel/scrape"
)

// EncodeID derives a storage id from an article URL. The encoding is
// URL-safe, filesystem-safe, and reversible with DecodeID.
func EncodeID(articleURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(articleURL))
}

// DecodeID recovers the article URL a storage id was derived from.
func DecodeID(id string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("failed to decode article id: %w", err)
	}
	return string(raw), nil
}

// FileStore keeps articles in a directory, one JSON file per article.
type FileStore struct {
	dir string
	log *zap.Logger
}

// NewFileStore creates the storage directory if needed and returns a
// store over it. A nil logger disables logging.
func NewFileStore(dir string, log *zap.Logger) (*FileStore, error) {
	// 0700: owner-only access
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{dir: dir, log: log}, nil
}

// Put saves an article under the given id, overwriting any previous
// version.
func (s *FileStore) Put(id string, article scrape.Article) error {
	data, err := json.MarshalIndent(article, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal article: %w", err)
	}

	// 0600: owner-only read/write
	if err := os.WriteFile(s.filename(id), data, 0o600); err != nil {
		return fmt.Errorf("failed to write article: %w", err)
	}
	return nil
}

// Get retrieves an article by id. A missing article returns nil with
// no error.
func (s *FileStore) Get(id string) (*scrape.Article, error) {
	data, err := os.ReadFile(s.filename(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read article: %w", err)
	}

	var article scrape.Article
	if err := json.Unmarshal(data, &article); err != nil {
		return nil, fmt.Errorf("failed to unmarshal article: %w", err)
	}
	return &article, nil
}

// List returns every readable article in the store, in filename order.
// Corrupted or unreadable files are logged and skipped rather than
// failing the whole listing; a non-nil error means the directory
// itself could not be read.
func (s *FileStore) List() ([]scrape.Article, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var articles []scrape.Article
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.log.Warn("skipping unreadable article file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}

		var article scrape.Article
		if err := json.Unmarshal(data, &article); err != nil {
			s.log.Warn("skipping corrupted article file",
				zap.String("file", entry.Name()), zap.Error(err))
			continue
		}
		articles = append(articles, article)
	}
	return articles, nil
}

// Delete removes an article by id.
func (s *FileStore) Delete(id string) error {
	if err := os.Remove(s.filename(id)); err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return nil
}

func (s *FileStore) filename(id string) string {
	return filepath.Join(s.dir, id+".json")
}
