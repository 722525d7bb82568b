package cloud

// DefaultCapacity is the number of entries per capability table.
const DefaultCapacity = 10

type entry[T any] struct {
	name  string
	value T
}

// table is a bounded, insertion-ordered map. Putting an existing name
// replaces its value in place.
type table[T any] struct {
	capacity int
	entries  []entry[T]
}

func newTable[T any](capacity int) table[T] {
	return table[T]{capacity: capacity, entries: make([]entry[T], 0, capacity)}
}

func (t *table[T]) put(name string, v T) bool {
	for i := range t.entries {
		if t.entries[i].name == name {
			t.entries[i].value = v
			return true
		}
	}
	if len(t.entries) >= t.capacity {
		return false
	}
	t.entries = append(t.entries, entry[T]{name: name, value: v})
	return true
}

func (t *table[T]) get(name string) (T, bool) {
	for _, e := range t.entries {
		if e.name == name {
			return e.value, true
		}
	}
	var zero T
	return zero, false
}

func (t *table[T]) remove(name string) bool {
	for i, e := range t.entries {
		if e.name == name {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
	}
	return false
}

func (t *table[T]) names() []string {
	names := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		names = append(names, e.name)
	}
	return names
}
