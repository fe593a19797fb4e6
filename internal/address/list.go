package address

// List is an ordered collection of confirmed addresses, newest first, that
// never holds two entries with the same key. The zero value is empty and ready
// to use. A List is a value: Merge returns a new List and never modifies the
// receiver's backing array.
type List struct {
	items []Confirmed
}

// NewList builds a List from items given newest first, dropping later
// duplicates.
func NewList(items ...Confirmed) List {
	return List{}.Merge(items...)
}

// Len returns the number of addresses.
func (l List) Len() int { return len(l.items) }

// Empty reports whether the list has no addresses.
func (l List) Empty() bool { return len(l.items) == 0 }

// Items returns a copy of the addresses, newest first.
func (l List) Items() []Confirmed {
	if len(l.items) == 0 {
		return nil
	}
	out := make([]Confirmed, len(l.items))
	copy(out, l.items)
	return out
}

// Contains reports whether an address with the given words is present.
func (l List) Contains(words string) bool {
	key := Key(words)
	for _, it := range l.items {
		if it.Key() == key {
			return true
		}
	}
	return false
}

// Merge prepends newest (ordered newest first) and removes duplicates, keeping
// the first occurrence. An address already present is moved to the front.
func (l List) Merge(newest ...Confirmed) List {
	if len(newest) == 0 {
		return l
	}
	seen := make(map[string]struct{}, len(newest)+len(l.items))
	out := make([]Confirmed, 0, len(newest)+len(l.items))
	for _, group := range [][]Confirmed{newest, l.items} {
		for _, it := range group {
			k := it.Key()
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, it)
		}
	}
	return List{items: out}
}
