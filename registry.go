package codec2

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry errors
var (
	ErrComponentNotFound = errors.New("component not registered")
)

// ComponentKind classifies what a component does.
type ComponentKind int

const (
	KindOther ComponentKind = iota
	KindDecoder
	KindEncoder
)

func (k ComponentKind) String() string {
	switch k {
	case KindDecoder:
		return "decoder"
	case KindEncoder:
		return "encoder"
	default:
		return "other"
	}
}

// Traits describe a registered component.
type Traits struct {
	Name      string        // Name the component is created under
	MediaType string        // MIME type the component handles
	Kind      ComponentKind // Decoder, encoder or other
}

// ComponentFactory builds one component instance.
type ComponentFactory func() (Component, error)

// Registry is a ComponentStore backed by named factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]ComponentFactory
	traits    map[string]Traits
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]ComponentFactory),
		traits:    make(map[string]Traits),
	}
}

// Register adds a factory under traits.Name, replacing any previous
// registration of that name.
func (r *Registry) Register(traits Traits, factory ComponentFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[traits.Name] = factory
	r.traits[traits.Name] = traits
}

// CreateComponent builds a fresh instance of the named component.
func (r *Registry) CreateComponent(name string) (Component, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrComponentNotFound, name)
	}
	return factory()
}

// Traits returns the traits registered under name.
func (r *Registry) Traits(name string) (Traits, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.traits[name]
	return t, ok
}

// FindDecoder returns the name of a registered decoder for the MIME
// type. With several candidates the first in name order wins.
func (r *Registry) FindDecoder(mediaType string) (string, bool) {
	return r.findKind(mediaType, KindDecoder)
}

// FindEncoder returns the name of a registered encoder for the MIME
// type. With several candidates the first in name order wins.
func (r *Registry) FindEncoder(mediaType string) (string, bool) {
	return r.findKind(mediaType, KindEncoder)
}

func (r *Registry) findKind(mediaType string, kind ComponentKind) (string, bool) {
	for _, t := range r.Components() {
		if t.Kind == kind && strings.EqualFold(t.MediaType, mediaType) {
			return t.Name, true
		}
	}
	return "", false
}

// Components lists the traits of every registered component, sorted by
// name.
func (r *Registry) Components() []Traits {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Traits, 0, len(r.traits))
	for _, t := range r.traits {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var defaultStore = NewRegistry()

// DefaultStore returns the process-wide registry used when Config.Store
// is nil.
func DefaultStore() *Registry {
	return defaultStore
}

// Register adds a component factory to the default store.
func Register(traits Traits, factory ComponentFactory) {
	defaultStore.Register(traits, factory)
}
