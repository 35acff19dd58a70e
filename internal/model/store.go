package model

import (
	"sort"
	"strings"
)

// Store is the arena that owns every entity of one resolution run. Entities
// refer to each other by ID; all cross-entity lookups go through the store.
// A Store is not safe for concurrent use.
type Store struct {
	arena []*Entity

	entities map[string]ID
	commands map[string]ID
	// excluded maps a lowercased full name to an optional entity. A zero ID
	// records a name that was filtered out.
	excluded      map[string]ID
	excludedNames map[string]string
}

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset empties every collection.
func (s *Store) Reset() {
	s.arena = nil
	s.entities = make(map[string]ID)
	s.commands = make(map[string]ID)
	s.excluded = make(map[string]ID)
	s.excludedNames = make(map[string]string)
}

func (s *Store) register(e *Entity) ID {
	if e.ID.Valid() && s.ByID(e.ID) == e {
		return e.ID
	}
	s.arena = append(s.arena, e)
	e.ID = ID(len(s.arena))
	for _, p := range e.properties {
		p.Entity = e.ID
	}
	for _, p := range e.Parameters {
		p.Entity = e.ID
	}
	if e.ReturnValue != nil {
		e.ReturnValue.Entity = e.ID
	}
	return e.ID
}

// Add registers e as an included entity. It returns false when an entity
// with the same full name is already included.
func (s *Store) Add(e *Entity) bool {
	if e == nil {
		return false
	}
	k := strings.ToLower(e.FullName)
	if _, ok := s.entities[k]; ok {
		return false
	}
	s.entities[k] = s.register(e)
	return true
}

// AddCommand registers a command entity as both an entity and a command.
func (s *Store) AddCommand(e *Entity) bool {
	if !s.Add(e) {
		return false
	}
	s.commands[strings.ToLower(e.FullName)] = e.ID
	return true
}

// Exclude records fullName as excluded. e may be nil when the object was
// filtered out entirely; a non-nil e stays addressable by ID. An existing
// record is only replaced to attach an entity to a bare name.
func (s *Store) Exclude(fullName string, e *Entity) {
	k := strings.ToLower(fullName)
	if id, ok := s.excluded[k]; ok && (id.Valid() || e == nil) {
		return
	}
	var id ID
	if e != nil {
		id = s.register(e)
	}
	s.excluded[k] = id
	s.excludedNames[k] = fullName
}

// Entity looks up an included entity by full name, case-insensitively.
func (s *Store) Entity(fullName string) *Entity {
	id, ok := s.entities[strings.ToLower(fullName)]
	if !ok {
		return nil
	}
	return s.ByID(id)
}

// Excluded looks up an excluded entity by full name. It returns nil for
// names recorded without an entity.
func (s *Store) Excluded(fullName string) *Entity {
	return s.ByID(s.excluded[strings.ToLower(fullName)])
}

// IsExcluded reports whether fullName was recorded as excluded.
func (s *Store) IsExcluded(fullName string) bool {
	_, ok := s.excluded[strings.ToLower(fullName)]
	return ok
}

// ExcludedNames returns every excluded full name, sorted.
func (s *Store) ExcludedNames() []string {
	names := make([]string, 0, len(s.excludedNames))
	for _, n := range s.excludedNames {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return lessFold(names[i], names[j]) })
	return names
}

// ByID resolves a handle. It returns nil for invalid handles.
func (s *Store) ByID(id ID) *Entity {
	if !id.Valid() || int(id) > len(s.arena) {
		return nil
	}
	return s.arena[id-1]
}

// Entities returns the included entities sorted by full name.
func (s *Store) Entities() []*Entity {
	return s.sorted(s.entities)
}

// ExcludedEntities returns the excluded entities that carry a model, sorted
// by full name.
func (s *Store) ExcludedEntities() []*Entity {
	return s.sorted(s.excluded)
}

// Commands returns the command entities sorted by full name.
func (s *Store) Commands() []*Entity {
	return s.sorted(s.commands)
}

// Len returns the number of included entities.
func (s *Store) Len() int {
	return len(s.entities)
}

// CommandsFor returns the commands for which match reports true.
func (s *Store) CommandsFor(match func(cmd *Entity) bool) []*Entity {
	var out []*Entity
	for _, cmd := range s.Commands() {
		if match(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

func (s *Store) sorted(ids map[string]ID) []*Entity {
	out := make([]*Entity, 0, len(ids))
	for _, id := range ids {
		if e := s.ByID(id); e != nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessFold(out[i].FullName, out[j].FullName) })
	return out
}

func lessFold(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}
