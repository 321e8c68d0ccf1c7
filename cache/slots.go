package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemorySlots is an in-process SlotStore. Contents do not survive a
// restart, which is fine for metadata (the cache is simply treated as
// absent on the next run) but defeats the point of an emergency backup.
type MemorySlots struct {
	mu    sync.RWMutex
	slots map[string][]byte
}

// NewMemorySlots creates an empty in-process slot store.
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{slots: make(map[string][]byte)}
}

// Get returns the bytes stored under name.
func (m *MemorySlots) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.slots[name]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Set stores value under name.
func (m *MemorySlots) Set(name string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[name] = append([]byte(nil), value...)
	return nil
}

// Delete removes the slot.
func (m *MemorySlots) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.slots, name)
}

// FileSlots is a SlotStore persisted as one file per slot under a
// directory. All slots are loaded at open so Get stays synchronous; writes
// go through a temp file and rename so a crash never leaves a torn slot.
type FileSlots struct {
	dir   string
	mu    sync.RWMutex
	slots map[string][]byte
}

const slotExt = ".slot"

var slotNameReplacer = strings.NewReplacer(":", "_", "/", "_", string(os.PathSeparator), "_")

// OpenFileSlots opens (creating if needed) a file-backed slot store rooted
// at dir.
func OpenFileSlots(dir string) (*FileSlots, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("slot directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create slot directory: %w", err)
	}
	fs := &FileSlots{dir: dir, slots: make(map[string][]byte)}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read slot directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), slotExt) {
			continue
		}
		value, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read slot %s: %w", entry.Name(), err)
		}
		fs.slots[strings.TrimSuffix(entry.Name(), slotExt)] = value
	}
	return fs, nil
}

func slotFileName(name string) string {
	return slotNameReplacer.Replace(name) + slotExt
}

// Get returns the bytes stored under name.
func (fs *FileSlots) Get(name string) ([]byte, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	value, ok := fs.slots[slotNameReplacer.Replace(name)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), value...), true
}

// Set stores value under name, persisting it atomically.
func (fs *FileSlots) Set(name string, value []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	path := filepath.Join(fs.dir, slotFileName(name))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("write slot %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit slot %s: %w", name, err)
	}
	fs.slots[slotNameReplacer.Replace(name)] = append([]byte(nil), value...)
	return nil
}

// Delete removes the slot and its file.
func (fs *FileSlots) Delete(name string) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.slots, slotNameReplacer.Replace(name))
	_ = os.Remove(filepath.Join(fs.dir, slotFileName(name)))
}
