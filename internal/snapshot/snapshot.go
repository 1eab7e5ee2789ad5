// Package snapshot keeps the last observed document of every watched URL and
// persists it between runs through a Backend.
package snapshot

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/document"
	"github.com/JakeFAU/pagewatch/internal/rules"
)

// Backend persists the URL to markup association.
type Backend interface {
	Load(ctx context.Context) (map[string]string, error)
	Save(ctx context.Context, entries map[string]string) error
}

// Store maps normalized URLs to their last observed document. It is not safe
// for concurrent use.
type Store struct {
	backend Backend
	docs    map[string]*document.Document
}

// Load reads every entry from backend and parses it. Any failure is fatal for
// the run, so no partially loaded store is returned. When several stored keys
// normalize to the same URL, the entry stored under the normalized key wins,
// otherwise the first in sort order; the others are logged and dropped.
func Load(ctx context.Context, backend Backend, logger *zap.Logger) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("load snapshots: nil backend")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	s := &Store{backend: backend, docs: make(map[string]*document.Document, len(entries))}
	kept := make(map[string]string, len(entries))
	for _, raw := range SortedKeys(entries) {
		url := rules.NormalizeURL(raw)
		if prev, dup := kept[url]; dup {
			if prev == url || raw != url {
				logger.Warn("duplicate snapshot key dropped",
					zap.String("url", url), zap.String("kept", prev), zap.String("dropped", raw))
				continue
			}
			logger.Warn("duplicate snapshot key dropped",
				zap.String("url", url), zap.String("kept", raw), zap.String("dropped", prev))
		}
		doc, err := document.Parse(url, entries[raw])
		if err != nil {
			return nil, fmt.Errorf("parse snapshot for %s: %w", raw, err)
		}
		s.docs[url] = doc
		kept[url] = raw
	}
	return s, nil
}

// Get returns the previous document for url, if one was observed.
func (s *Store) Get(url string) (*document.Document, bool) {
	doc, ok := s.docs[url]
	return doc, ok
}

// Set replaces the document stored for url.
func (s *Store) Set(url string, doc *document.Document) {
	s.docs[url] = doc
}

// Len is the number of stored documents.
func (s *Store) Len() int {
	return len(s.docs)
}

// URLs returns the stored URLs sorted.
func (s *Store) URLs() []string {
	urls := make([]string, 0, len(s.docs))
	for url := range s.docs {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// Export returns the URL to markup association for persistence.
func (s *Store) Export() map[string]string {
	out := make(map[string]string, len(s.docs))
	for url, doc := range s.docs {
		out[url] = doc.Source()
	}
	return out
}

// Save replaces the persisted entries with the current contents of the store.
func (s *Store) Save(ctx context.Context) error {
	if err := s.backend.Save(ctx, s.Export()); err != nil {
		return fmt.Errorf("save snapshots: %w", err)
	}
	return nil
}

// SortedKeys returns the keys of entries in ascending order.
func SortedKeys(entries map[string]string) []string {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
