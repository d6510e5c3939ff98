package history

import "sort"

// Favorites is a set of pinned commands.
type Favorites struct {
	set map[string]struct{}
}

// NewFavorites returns an empty set.
func NewFavorites() *Favorites {
	return &Favorites{set: make(map[string]struct{})}
}

// Add pins cmd. Duplicates are ignored.
func (f *Favorites) Add(cmd string) {
	f.set[cmd] = struct{}{}
}

// Remove unpins cmd.
func (f *Favorites) Remove(cmd string) {
	delete(f.set, cmd)
}

// Toggle flips membership of cmd and reports whether it is now pinned.
func (f *Favorites) Toggle(cmd string) bool {
	if f.Contains(cmd) {
		f.Remove(cmd)
		return false
	}
	f.Add(cmd)
	return true
}

// Contains reports whether cmd is pinned.
func (f *Favorites) Contains(cmd string) bool {
	_, ok := f.set[cmd]
	return ok
}

// List returns the pinned commands sorted for stable display.
func (f *Favorites) List() []string {
	out := make([]string, 0, len(f.set))
	for cmd := range f.set {
		out = append(out, cmd)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of pinned commands.
func (f *Favorites) Len() int {
	return len(f.set)
}
