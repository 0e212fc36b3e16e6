package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"drainage/table"
)

// Memory is an in-memory Store used by tests and fixtures. Listings are
// returned in key order.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memObject
	writes  int
}

type memObject struct {
	data     []byte
	etag     string
	modified time.Time
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memObject)}
}

// Put stores an object, deriving a fresh etag from the write count.
func (m *Memory) Put(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	m.objects[key] = memObject{
		data:     data,
		etag:     fmt.Sprintf("etag-%d", m.writes),
		modified: time.Now().UTC(),
	}
}

// Delete removes an object if present.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
}

func (m *Memory) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, table.WrapError(table.KindCancelled, prefix, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var objects []ObjectInfo
	for key, obj := range m.objects {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		objects = append(objects, ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
			ETag:         obj.etag,
		})
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func (m *Memory) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, table.WrapError(table.KindCancelled, key, err)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[key]
	if !ok {
		return nil, table.NewError(table.KindNotFound, key, "object not found")
	}
	return obj.data, nil
}
