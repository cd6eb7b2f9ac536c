package node

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр реализаций node по объявленному имени.
//
// Строится один раз при старте процесса; поиск — чтение из map.
// Уникальность имён не проверяется: повторная регистрация
// перезаписывает предыдущую реализацию.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]Node),
	}
}

// Register регистрирует реализации.
func (r *Registry) Register(nodes ...Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range nodes {
		r.nodes[n.Meta().Name] = n
	}
}

// Get возвращает реализацию по имени.
// Возвращает ErrNodeNotFound, если реализация не найдена.
func (r *Registry) Get(name string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, name)
	}
	return n, nil
}

// Has проверяет, зарегистрирована ли реализация.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.nodes[name]
	return exists
}

// Metas возвращает метаданные всех реализаций, отсортированные по имени.
func (r *Registry) Metas() []Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	metas := make([]Meta, 0, len(r.nodes))
	for _, n := range r.nodes {
		metas = append(metas, n.Meta())
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Name < metas[j].Name })
	return metas
}

// Count возвращает количество зарегистрированных реализаций.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}
