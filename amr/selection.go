package amr

// ArraySelection tracks which named arrays of one category (material
// fractions, masses, averaged arrays, summed arrays) are enabled. Names are
// kept in the order they were first seen.
type ArraySelection struct {
	names  []string
	status map[string]bool
}

func NewArraySelection() *ArraySelection {
	return &ArraySelection{status: make(map[string]bool)}
}

// Select enables name, adding it when unknown
func (as *ArraySelection) Select(name string) {
	as.add(name)
	as.status[name] = true
}

// Unselect disables name, adding it when unknown
func (as *ArraySelection) Unselect(name string) {
	as.add(name)
	as.status[name] = false
}

// UnselectAll disables every known array
func (as *ArraySelection) UnselectAll() {
	for _, name := range as.names {
		as.status[name] = false
	}
}

func (as *ArraySelection) add(name string) {
	if as.status == nil {
		as.status = make(map[string]bool)
	}
	if _, ok := as.status[name]; !ok {
		as.names = append(as.names, name)
		as.status[name] = false
	}
}

func (as *ArraySelection) NumberOfArrays() int { return len(as.names) }

// ArrayName returns "" for an out of range index
func (as *ArraySelection) ArrayName(index int) string {
	if index < 0 || index >= len(as.names) {
		return ""
	}
	return as.names[index]
}

func (as *ArraySelection) ArrayStatus(name string) bool {
	return as.status[name]
}

func (as *ArraySelection) ArrayStatusByIndex(index int) bool {
	return as.ArrayStatus(as.ArrayName(index))
}

// Selected lists the enabled names in order
func (as *ArraySelection) Selected() (names []string) {
	for _, name := range as.names {
		if as.status[name] {
			names = append(names, name)
		}
	}
	return
}
