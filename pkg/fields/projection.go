package fields

import (
	"sort"
)

// Projection is the flat field-to-slot assignment shared by every record
// read. It is immutable: schema mutations build a fresh one and swap it in
// wholesale, so no caller ever observes a partially updated table.
type Projection struct {
	slots  map[string]int
	labels []string
}

// BuildProjection assigns slots: built-ins keep their fixed constants,
// custom fields follow in ascending label order, and series-typed custom
// fields consume two consecutive slots (value, then index).
func BuildProjection(customs map[string]*Definition) *Projection {
	slots := make(map[string]int, len(builtinOrdinals)+2*len(customs))
	next := 0
	for label, slot := range builtinOrdinals {
		slots[label] = slot
		if slot >= next {
			next = slot + 1
		}
	}

	labels := make([]string, 0, len(customs))
	for label, def := range customs {
		if def.BuiltIn {
			continue
		}
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		slots[label] = next
		next++
		if customs[label].Datatype == DatatypeSeries {
			slots[label+"_index"] = next
			next++
		}
	}

	ordered := make([]string, next)
	for label, slot := range slots {
		ordered[slot] = label
	}

	return &Projection{slots: slots, labels: ordered}
}

// Slot resolves a field label to its ordinal. Callers must re-resolve
// after any schema mutation; slots for custom fields are not stable across
// reloads.
func (p *Projection) Slot(label string) (int, bool) {
	slot, ok := p.slots[label]
	return slot, ok
}

// Label is the inverse of Slot.
func (p *Projection) Label(slot int) (string, bool) {
	if slot < 0 || slot >= len(p.labels) {
		return "", false
	}
	return p.labels[slot], true
}

// Len is the total number of slots, custom series index slots included.
func (p *Projection) Len() int {
	return len(p.labels)
}
