/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"slices"
	"strings"
)

var defaultRoster = []string{
	"ภูมิ", "เปรม", "เจ็ต", "ท็อป", "เบส",
	"ซี", "บะจ่าง", "เปปเป้อ", "อชิ", "นาโน",
}

// MaxRosterSize caps the names offered in one game.
const MaxRosterSize = 50

// Roster is the list of names offered for selection. It starts from the
// configured roster and grows with free-form entries.
type Roster struct {
	names []string
}

func newRoster(names []string) *Roster {
	r := &Roster{}
	for _, name := range names {
		r.Add(name)
	}

	return r
}

// Add appends name unless it is empty, already present or the roster is
// full, and reports whether the roster changed.
func (r *Roster) Add(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || slices.Contains(r.names, name) || len(r.names) >= MaxRosterSize {
		return false
	}

	r.names = append(r.names, name)

	return true
}

func (r *Roster) Names() []string {
	return slices.Clone(r.names)
}

func (r *Roster) Has(name string) bool {
	return slices.Contains(r.names, name)
}
