package models

import (
	"fmt"
)

// Atlas is one candidate segmentation source: a set of label volumes
// deformed onto the target image, keyed by structure name
type Atlas struct {
	ID     string
	Labels map[string]*Volume
}

// Label returns the label volume for a structure
func (a *Atlas) Label(structure string) (*Volume, error) {
	vol, ok := a.Labels[structure]
	if !ok || vol == nil {
		return nil, fmt.Errorf("atlas %s has no label for structure %q", a.ID, structure)
	}
	return vol, nil
}

// AtlasSet is an insertion-ordered pool of atlases. Removal never mutates a
// set; it produces a filtered copy.
type AtlasSet struct {
	ids     []string
	atlases map[string]*Atlas
}

// NewAtlasSet builds a set from atlases in the given order
func NewAtlasSet(atlases ...*Atlas) (*AtlasSet, error) {
	s := &AtlasSet{atlases: make(map[string]*Atlas, len(atlases))}
	for _, a := range atlases {
		if err := s.Add(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends an atlas to the set
func (s *AtlasSet) Add(a *Atlas) error {
	if a == nil {
		return fmt.Errorf("nil atlas")
	}
	if s.atlases == nil {
		s.atlases = make(map[string]*Atlas)
	}
	if _, dup := s.atlases[a.ID]; dup {
		return fmt.Errorf("duplicate atlas id %q", a.ID)
	}
	s.ids = append(s.ids, a.ID)
	s.atlases[a.ID] = a
	return nil
}

// Len returns the number of atlases
func (s *AtlasSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.ids)
}

// IDs returns the atlas identifiers in pool order
func (s *AtlasSet) IDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// Get looks up an atlas by id
func (s *AtlasSet) Get(id string) (*Atlas, bool) {
	a, ok := s.atlases[id]
	return a, ok
}

// Filter returns a new set with the atlases for which keep returns true
func (s *AtlasSet) Filter(keep func(*Atlas) bool) *AtlasSet {
	out := &AtlasSet{atlases: make(map[string]*Atlas, len(s.ids))}
	for _, id := range s.ids {
		a := s.atlases[id]
		if keep(a) {
			out.ids = append(out.ids, id)
			out.atlases[id] = a
		}
	}
	return out
}

// Without returns a new set excluding the given ids
func (s *AtlasSet) Without(ids ...string) *AtlasSet {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	return s.Filter(func(a *Atlas) bool { return !drop[a.ID] })
}

// Labels returns the label volumes of a structure in pool order. All labels
// must share one geometry.
func (s *AtlasSet) Labels(structure string) ([]*Volume, error) {
	out := make([]*Volume, 0, len(s.ids))
	for _, id := range s.ids {
		vol, err := s.atlases[id].Label(structure)
		if err != nil {
			return nil, err
		}
		if len(out) > 0 && !out[0].SameGeometry(vol) {
			return nil, fmt.Errorf("atlas %s: %s label geometry differs from atlas %s", id, structure, s.ids[0])
		}
		out = append(out, vol)
	}
	return out, nil
}
