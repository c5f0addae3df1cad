package collection

import "fmt"

// Registry holds one controller per configured collection.
type Registry struct {
	order       []string
	controllers map[string]*Controller
}

func NewRegistry(schemas []Schema, store RecordStore, blobs BlobStore, opts Options) (*Registry, error) {
	r := &Registry{controllers: make(map[string]*Controller, len(schemas))}
	for _, schema := range schemas {
		if err := schema.Check(); err != nil {
			return nil, err
		}
		if _, dup := r.controllers[schema.Key]; dup {
			return nil, fmt.Errorf("duplicate collection %q", schema.Key)
		}
		r.order = append(r.order, schema.Key)
		r.controllers[schema.Key] = NewController(schema, store, blobs, opts)
	}
	return r, nil
}

func (r *Registry) Get(key string) (*Controller, error) {
	c, ok := r.controllers[key]
	if !ok {
		return nil, fmt.Errorf("%q: %w", key, ErrUnknownKey)
	}
	return c, nil
}

// Schemas returns the collection schemas in configuration order.
func (r *Registry) Schemas() []Schema {
	out := make([]Schema, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.controllers[key].schema)
	}
	return out
}
