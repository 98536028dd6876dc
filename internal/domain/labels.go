package domain

import (
	"encoding/json"
	"sort"
	"strings"
)

// LabelSet is an unordered, deduplicated set of ticket tags.
type LabelSet map[string]struct{}

// NewLabelSet builds a set from labels, trimming blanks and dropping duplicates.
func NewLabelSet(labels ...string) LabelSet {
	set := make(LabelSet, len(labels))
	for _, label := range labels {
		set.Add(label)
	}
	return set
}

// Add inserts label and reports whether the set changed.
func (s LabelSet) Add(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" || s.Has(label) {
		return false
	}
	s[label] = struct{}{}
	return true
}

// Remove deletes label and reports whether the set changed.
func (s LabelSet) Remove(label string) bool {
	label = strings.TrimSpace(label)
	if !s.Has(label) {
		return false
	}
	delete(s, label)
	return true
}

// Has reports membership.
func (s LabelSet) Has(label string) bool {
	_, ok := s[strings.TrimSpace(label)]
	return ok
}

// Len returns the number of labels.
func (s LabelSet) Len() int {
	return len(s)
}

// Slice returns the labels sorted for stable storage and output.
func (s LabelSet) Slice() []string {
	out := make([]string, 0, len(s))
	for label := range s {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Clone copies the set.
func (s LabelSet) Clone() LabelSet {
	out := make(LabelSet, len(s))
	for label := range s {
		out[label] = struct{}{}
	}
	return out
}

// MarshalJSON encodes the set as a sorted array.
func (s LabelSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON decodes an array, deduplicating entries.
func (s *LabelSet) UnmarshalJSON(data []byte) error {
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return err
	}
	*s = NewLabelSet(labels...)
	return nil
}
