package validate

import (
	"time"

	"github.com/hazyhaar/lasen/fieldwatch/internal/page"
)

// Debouncer runs a trailing debounce per field. Touch and Cancel must be
// called from one goroutine. fire runs on a timer goroutine and should
// only hand the (field, generation) pair back to that goroutine, which
// checks Due before acting.
type Debouncer struct {
	wait   time.Duration
	fire   func(field page.NodeID, gen uint64)
	timers map[page.NodeID]*time.Timer
	gens   map[page.NodeID]uint64
}

// NewDebouncer returns a debouncer calling fire after wait of quiet.
func NewDebouncer(wait time.Duration, fire func(field page.NodeID, gen uint64)) *Debouncer {
	return &Debouncer{
		wait:   wait,
		fire:   fire,
		timers: make(map[page.NodeID]*time.Timer),
		gens:   make(map[page.NodeID]uint64),
	}
}

// Touch restarts the field's quiet period.
func (d *Debouncer) Touch(field page.NodeID) {
	d.gens[field]++
	gen := d.gens[field]
	if t, ok := d.timers[field]; ok {
		t.Stop()
	}
	d.timers[field] = time.AfterFunc(d.wait, func() { d.fire(field, gen) })
}

// Due reports whether a fired (field, gen) pair is still the latest touch.
// A due pair is consumed.
func (d *Debouncer) Due(field page.NodeID, gen uint64) bool {
	if d.gens[field] != gen {
		return false
	}
	delete(d.timers, field)
	d.gens[field]++
	return true
}

// Cancel drops the field's pending timer.
func (d *Debouncer) Cancel(field page.NodeID) {
	if t, ok := d.timers[field]; ok {
		t.Stop()
		delete(d.timers, field)
	}
	d.gens[field]++
}

// Pending reports whether field has a timer running.
func (d *Debouncer) Pending(field page.NodeID) bool {
	_, ok := d.timers[field]
	return ok
}

// Stop cancels every timer.
func (d *Debouncer) Stop() {
	for field, t := range d.timers {
		t.Stop()
		delete(d.timers, field)
		d.gens[field]++
	}
}
