package assemble

import (
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type cachedFile struct {
	size    int64
	modTime time.Time
	text    string
}

// fileCache keeps recently read files. An entry is served only while the
// file's size and mtime are unchanged, so write-backs are always seen.
type fileCache struct {
	entries *lru.Cache[string, cachedFile]
}

func newFileCache(size int) (*fileCache, error) {
	if size <= 0 {
		return &fileCache{}, nil
	}
	entries, err := lru.New[string, cachedFile](size)
	if err != nil {
		return nil, err
	}
	return &fileCache{entries: entries}, nil
}

// read returns the text of path, from cache when still valid.
func (c *fileCache) read(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if c.entries != nil {
		if hit, ok := c.entries.Get(path); ok && hit.size == info.Size() && hit.modTime.Equal(info.ModTime()) {
			return hit.text, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)
	if c.entries != nil {
		c.entries.Add(path, cachedFile{size: info.Size(), modTime: info.ModTime(), text: text})
	}
	return text, nil
}

// forget drops path, used after the file is rewritten.
func (c *fileCache) forget(path string) {
	if c.entries != nil {
		c.entries.Remove(path)
	}
}

func (c *fileCache) len() int {
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}
