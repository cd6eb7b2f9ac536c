package nodes

import "github.com/shaiso/Flowstack/internal/node"

// DefaultRegistry создаёт реестр со всеми встроенными node.
func DefaultRegistry() *node.Registry {
	r := node.NewRegistry()
	r.Register(NewDelay(), NewHTTPRequest(), NewTransform())
	return r
}
