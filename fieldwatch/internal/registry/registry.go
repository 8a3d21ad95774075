// Package registry keeps the set of instrumented fields of one page in
// step with the document and the current settings.
package registry

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/lasen/correction"
	"github.com/hazyhaar/lasen/fieldwatch/internal/affordance"
	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// Field is a registered editable field.
type Field struct {
	ID      page.NodeID
	Kind    page.Kind
	Control page.ControlID
}

// Result summarises one scan.
type Result struct {
	Attached []page.NodeID
	Detached []page.NodeID
}

// Registry is authoritative for which fields are processed. It is not safe
// for concurrent use.
type Registry struct {
	page   page.Page
	arena  *affordance.Arena
	fields map[page.NodeID]*Field
	logger *slog.Logger
}

// New returns an empty registry attaching controls from arena.
func New(p page.Page, arena *affordance.Arena, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		page:   p,
		arena:  arena,
		fields: make(map[page.NodeID]*Field),
		logger: logger,
	}
}

// Enabled reports whether settings instrument fields of kind k.
func Enabled(s correction.Settings, k page.Kind) bool {
	switch k {
	case page.KindSingleLine:
		return s.ProcessInputs
	case page.KindMultiLine:
		return s.ProcessTextareas
	case page.KindRichEditable:
		return s.ProcessContentEditable
	}
	return false
}

// Scan reconciles the registry with the document under settings s:
// enabled, unprocessed candidates are marked and get a control; processed
// fields of a disabled kind are unmarked and lose theirs; fields gone from
// the document are dropped. Scanning twice with nothing changed attaches
// nothing. Per-field failures are logged and skipped; only a failed
// enumeration is returned as an error.
func (r *Registry) Scan(ctx context.Context, s correction.Settings) (Result, error) {
	var res Result

	nodes, err := r.page.Fields(ctx)
	if err != nil {
		return res, fmt.Errorf("registry: enumerate fields: %w", err)
	}

	present := make(map[page.NodeID]bool, len(nodes))
	for _, n := range nodes {
		present[n.ID] = true
		_, known := r.fields[n.ID]

		if !Enabled(s, n.Kind) {
			if n.Processed || known {
				r.detach(ctx, n.ID, n.Processed)
				res.Detached = append(res.Detached, n.ID)
			}
			continue
		}
		if known && n.Processed {
			continue
		}
		if err := r.attach(ctx, n); err != nil {
			r.logger.Warn("registry: attach field", "field", n.ID, "kind", n.Kind, "error", err)
			continue
		}
		res.Attached = append(res.Attached, n.ID)
	}

	for id := range r.fields {
		if !present[id] {
			r.detach(ctx, id, false)
			res.Detached = append(res.Detached, id)
		}
	}

	r.arena.Shrink(ctx)

	if len(res.Attached) > 0 || len(res.Detached) > 0 {
		r.logger.Debug("registry: scan",
			"attached", len(res.Attached),
			"detached", len(res.Detached),
			"registered", len(r.fields))
	}
	return res, nil
}

func (r *Registry) attach(ctx context.Context, n page.FieldNode) error {
	if !n.Processed {
		if err := r.page.Mark(ctx, n.ID); err != nil {
			return fmt.Errorf("mark: %w", err)
		}
	}
	c, err := r.arena.Attach(ctx, n.ID)
	if err != nil {
		if uerr := r.page.Unmark(ctx, n.ID); uerr != nil {
			r.logger.Debug("registry: unmark after failed attach", "field", n.ID, "error", uerr)
		}
		return err
	}
	r.fields[n.ID] = &Field{ID: n.ID, Kind: n.Kind, Control: c.ID}
	return nil
}

func (r *Registry) detach(ctx context.Context, id page.NodeID, unmark bool) {
	delete(r.fields, id)
	if err := r.arena.Release(ctx, id); err != nil {
		r.logger.Debug("registry: release control", "field", id, "error", err)
	}
	if unmark {
		if err := r.page.Unmark(ctx, id); err != nil {
			r.logger.Debug("registry: unmark", "field", id, "error", err)
		}
	}
}

// Lookup returns the registered field with id.
func (r *Registry) Lookup(id page.NodeID) (*Field, bool) {
	f, ok := r.fields[id]
	return f, ok
}

// Len is the number of registered fields.
func (r *Registry) Len() int { return len(r.fields) }

// IDs returns the registered field ids, in no particular order.
func (r *Registry) IDs() []page.NodeID {
	out := make([]page.NodeID, 0, len(r.fields))
	for id := range r.fields {
		out = append(out, id)
	}
	return out
}

// Reset deregisters and unmarks every field, releasing their controls.
func (r *Registry) Reset(ctx context.Context) []page.NodeID {
	ids := r.IDs()
	for _, id := range ids {
		r.detach(ctx, id, true)
	}
	return ids
}
