/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
	"strings"
)

// MinParticipants is the smallest selection that may be spun.
const MinParticipants = 2

// Selection is an ordered set of participant names. Order is the order in
// which names were added, and is the order of the wheel segments.
type Selection struct {
	names []string
}

// Toggle adds name if it is absent and removes it if it is present.
func (s *Selection) Toggle(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}

	if i := slices.Index(s.names, name); i >= 0 {
		s.names = slices.Delete(s.names, i, i+1)

		return
	}

	s.names = append(s.names, name)
}

func (s *Selection) Has(name string) bool {
	return slices.Contains(s.names, strings.TrimSpace(name))
}

func (s *Selection) Len() int {
	return len(s.names)
}

// Names returns a copy of the selection in insertion order.
func (s *Selection) Names() []string {
	return slices.Clone(s.names)
}

func (s *Selection) CanProceed() bool {
	return len(s.names) >= MinParticipants
}

func (s *Selection) Clear() {
	s.names = nil
}
