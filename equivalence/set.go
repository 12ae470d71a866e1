package equivalence

// Set is a union-find over dense ids. A class is always rooted at its
// smallest member, so following parents strictly decreases the id and the
// roots do not depend on the order equivalences were added in.
type Set struct {
	parent []int
}

func NewSet(n int) (s *Set) {
	s = &Set{parent: make([]int, n)}
	for i := range s.parent {
		s.parent[i] = i
	}
	return
}

func (s *Set) Len() int { return len(s.parent) }

// Add creates a singleton class and returns its id
func (s *Set) Add() (id int) {
	id = len(s.parent)
	s.parent = append(s.parent, id)
	return
}

// Find returns the root of id's class, compressing the path behind it.
// Compression only ever lowers a parent, which keeps parent[i] <= i.
func (s *Set) Find(id int) (root int) {
	root = id
	for s.parent[root] != root {
		root = s.parent[root]
	}
	for id != root {
		next := s.parent[id]
		s.parent[id] = root
		id = next
	}
	return
}

// AddEquivalence merges the classes of a and b under the smaller root
func (s *Set) AddEquivalence(a, b int) {
	ra, rb := s.Find(a), s.Find(b)
	switch {
	case ra < rb:
		s.parent[rb] = ra
	case rb < ra:
		s.parent[ra] = rb
	}
}

// Compress maps every id to the dense index of its class, classes numbered
// by ascending root, and returns the number of classes
func (s *Set) Compress() (rootIndex []int, n int) {
	rootIndex = make([]int, len(s.parent))
	for id := range s.parent {
		if root := s.Find(id); root == id {
			rootIndex[id] = n
			n++
		} else {
			// root < id, already numbered
			rootIndex[id] = rootIndex[root]
		}
	}
	return
}
