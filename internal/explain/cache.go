package explain

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// Cache stores explanation text keyed by question fingerprint.
type Cache interface {
	Get(key string) (string, bool)
	Set(key, value string)
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]string)}
}

func (c *MemoryCache) Get(key string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *MemoryCache) Set(key, value string) {
	c.mu.Lock()
	c.m[key] = value
	c.mu.Unlock()
}

type fileCacheDoc struct {
	PlayerName   string            `json:"playerName,omitempty"`
	APIKey       string            `json:"apiKey,omitempty"`
	Explanations map[string]string `json:"explanations"`
}

// FileCache persists explanations, the player's display name and the API
// credential in one JSON file. Save failures are logged and otherwise
// ignored; the cache is a convenience, not a requirement.
type FileCache struct {
	path string
	mu   sync.Mutex
	doc  fileCacheDoc
}

// OpenFileCache loads the cache file at path, starting empty when the file
// is absent or unreadable.
func OpenFileCache(path string) *FileCache {
	c := &FileCache{path: path, doc: fileCacheDoc{Explanations: make(map[string]string)}}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("explain: read cache %s: %v", path, err)
		}
		return c
	}
	if err := json.Unmarshal(data, &c.doc); err != nil {
		log.Printf("explain: parse cache %s: %v", path, err)
		c.doc = fileCacheDoc{Explanations: make(map[string]string)}
	}
	if c.doc.Explanations == nil {
		c.doc.Explanations = make(map[string]string)
	}
	return c
}

func (c *FileCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.doc.Explanations[key]
	return v, ok
}

func (c *FileCache) Set(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.Explanations[key] = value
	c.saveLocked()
}

// PlayerName returns the remembered display name.
func (c *FileCache) PlayerName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.PlayerName
}

func (c *FileCache) SetPlayerName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.PlayerName = name
	c.saveLocked()
}

// APIKey returns the remembered generative API credential.
func (c *FileCache) APIKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.doc.APIKey
}

func (c *FileCache) SetAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.doc.APIKey = key
	c.saveLocked()
}

func (c *FileCache) saveLocked() {
	data, err := json.MarshalIndent(c.doc, "", "  ")
	if err != nil {
		log.Printf("explain: encode cache: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		log.Printf("explain: create cache dir: %v", err)
		return
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		log.Printf("explain: write cache %s: %v", c.path, err)
	}
}
