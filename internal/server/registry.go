package server

import (
	"sort"
	"sync"

	"github.com/dchest/uniuri"
	"github.com/pkg/errors"
	"github.com/vishalkuo/bimap"
	"k8s.io/utils/keymutex"

	"github.com/babelcloud/gbox/packages/sensorframe/internal/sensor/stream"
	"github.com/babelcloud/gbox/packages/sensorframe/internal/server/handlers"
)

const streamIDLength = 8

var (
	ErrStreamExists   = errors.New("stream already registered")
	ErrStreamNotFound = errors.New("stream not found")
)

// Registry tracks live streams by generated id and by name.
type Registry struct {
	mu      sync.RWMutex
	names   *bimap.BiMap[string, string] // name -> id
	streams map[string]*stream.Stream   // id -> stream

	streamLock keymutex.KeyMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		names:      bimap.NewBiMap[string, string](),
		streams:    make(map[string]*stream.Stream),
		streamLock: keymutex.NewHashed(64),
	}
}

// Register adds s under a fresh id.
func (r *Registry) Register(s *stream.Stream) (string, error) {
	name := s.Name()
	r.streamLock.LockKey(name)
	defer r.streamLock.UnlockKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names.Exists(name) {
		return "", errors.Wrapf(ErrStreamExists, "%s", name)
	}
	id := uniuri.NewLen(streamIDLength)
	for r.streams[id] != nil {
		id = uniuri.NewLen(streamIDLength)
	}
	r.names.Insert(name, id)
	r.streams[id] = s
	return id, nil
}

// Remove unregisters a stream by id. It does not close the stream.
func (r *Registry) Remove(id string) (*stream.Stream, error) {
	r.mu.RLock()
	name, ok := r.names.GetInverse(id)
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrStreamNotFound, "%s", id)
	}

	r.streamLock.LockKey(name)
	defer r.streamLock.UnlockKey(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streams[id]
	if !ok {
		return nil, errors.Wrapf(ErrStreamNotFound, "%s", id)
	}
	delete(r.streams, id)
	r.names.Delete(name)
	return s, nil
}

// Get resolves an id, falling back to a stream name.
func (r *Registry) Get(key string) (*stream.Stream, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if s, ok := r.streams[key]; ok {
		return s, key, true
	}
	if id, ok := r.names.Get(key); ok {
		return r.streams[id], id, true
	}
	return nil, "", false
}

// Len returns the number of live streams.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}

// List returns every live stream, ordered by name.
func (r *Registry) List() []handlers.StreamInfo {
	r.mu.RLock()
	infos := make([]handlers.StreamInfo, 0, len(r.streams))
	for id, s := range r.streams {
		infos = append(infos, handlers.StreamInfo{ID: id, Stats: s.Stats()})
	}
	r.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
