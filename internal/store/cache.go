package store

import (
	"sync"

	"dossier/api/internal/report"
)

// Cache memoizes documents by id so repeat reads return the same pointer.
// The zero value is not usable; use NewCache.
type Cache struct {
	mu   sync.RWMutex
	docs map[string]*report.Document
}

func NewCache() *Cache {
	return &Cache{docs: make(map[string]*report.Document)}
}

func (c *Cache) Get(id string) (*report.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	return doc, ok
}

// Put replaces the cached document for doc.ID.
func (c *Cache) Put(doc *report.Document) {
	c.mu.Lock()
	c.docs[doc.ID] = doc
	c.mu.Unlock()
}

// LoadOrStore returns the cached document for doc.ID when one exists and
// caches doc otherwise.
func (c *Cache) LoadOrStore(doc *report.Document) *report.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.docs[doc.ID]; ok {
		return existing
	}
	c.docs[doc.ID] = doc
	return doc
}

func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.docs, id)
	c.mu.Unlock()
}

func (c *Cache) Reset() {
	c.mu.Lock()
	c.docs = make(map[string]*report.Document)
	c.mu.Unlock()
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}
