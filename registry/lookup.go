package registry

import (
	"github.com/gogpu/rendergraph/handle"
	"github.com/gogpu/rendergraph/usage"
)

// UsagesFor adapts TransientFixed to resolve.ResourceLookup.
func (r *TransientFixed[T]) UsagesFor(h handle.Handle) *usage.List { return r.Usages(h) }

// UsagesFor adapts TransientChunked to resolve.ResourceLookup.
func (r *TransientChunked[T]) UsagesFor(h handle.Handle) *usage.List { return r.Usages(h) }

// UsagesFor adapts Persistent to resolve.ResourceLookup, swallowing the
// stale-handle error since a stale handle simply has no usage list to
// append to.
func (r *Persistent[T]) UsagesFor(h handle.Handle) *usage.List {
	list, err := r.Usages(h)
	if err != nil {
		return nil
	}
	return list
}
