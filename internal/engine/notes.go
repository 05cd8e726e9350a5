package engine

import "strings"

// DefaultNoteJoiner separates merged note units.
const DefaultNoteJoiner = ", "

// NoteMerger deduplicates the note text of one month.
//
// Separator splits a single cell into several units; when empty each cell is
// one unit. Units are compared case-insensitively with whitespace collapsed,
// keep their first spelling, and are emitted in first-seen order with every
// income unit ahead of every savings unit.
type NoteMerger struct {
	Separator string
	Joiner    string
}

// DefaultNoteMerger treats each row's note as a unit.
func DefaultNoteMerger() NoteMerger {
	return NoteMerger{Joiner: DefaultNoteJoiner}
}

// Merge combines the notes of the income and savings rows of one month.
func (m NoteMerger) Merge(income, savings []string) string {
	seen := map[string]struct{}{}
	var units []string
	add := func(notes []string) {
		for _, note := range notes {
			for _, unit := range m.split(note) {
				unit = strings.TrimSpace(unit)
				key := noteKey(unit)
				if key == "" {
					continue
				}
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				units = append(units, unit)
			}
		}
	}
	add(income)
	add(savings)

	joiner := m.Joiner
	if joiner == "" {
		joiner = DefaultNoteJoiner
	}
	return strings.Join(units, joiner)
}

func (m NoteMerger) split(note string) []string {
	if m.Separator == "" {
		return []string{note}
	}
	return strings.Split(note, m.Separator)
}

func noteKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
