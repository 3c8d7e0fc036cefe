package location

import "strings"

// Collapser folds duplicate roster identities that share a configured name
// into a single entry. Some participants end up with two rows, one joined by
// phone and one created out of band, and both render as the same person.
type Collapser struct {
	names map[string]struct{}
}

// NewCollapser builds a collapser from a comma separated name list, nil when
// the list is empty.
func NewCollapser(csv string) *Collapser {
	names := map[string]struct{}{}
	for _, name := range strings.Split(csv, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" {
			names[name] = struct{}{}
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &Collapser{names: names}
}

// Collapse reduces each configured name group to one canonical entry.
// Preference order: the viewer's own row, then a row with a phone identity,
// then the most recently seen row (highest id on ties). Input order is
// preserved for the survivors. A nil Collapser passes entries through.
func (c *Collapser) Collapse(entries []RosterEntry, viewerID int64) []RosterEntry {
	if c == nil {
		return entries
	}

	canonical := map[string]int{}
	for i, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if _, collapsible := c.names[key]; !collapsible {
			continue
		}
		j, seen := canonical[key]
		if !seen || c.better(e, entries[j], viewerID) {
			canonical[key] = i
		}
	}

	out := entries[:0]
	for i, e := range entries {
		key := strings.ToLower(strings.TrimSpace(e.Name))
		if j, collapsed := canonical[key]; collapsed && j != i {
			continue
		}
		out = append(out, e)
	}
	return out
}

func (c *Collapser) better(a, b RosterEntry, viewerID int64) bool {
	if (a.ParticipantID == viewerID) != (b.ParticipantID == viewerID) {
		return a.ParticipantID == viewerID
	}
	if (a.phoneE164 != "") != (b.phoneE164 != "") {
		return a.phoneE164 != ""
	}
	switch {
	case a.lastSeenAt == nil && b.lastSeenAt == nil:
	case a.lastSeenAt == nil:
		return false
	case b.lastSeenAt == nil:
		return true
	case !a.lastSeenAt.Equal(*b.lastSeenAt):
		return a.lastSeenAt.After(*b.lastSeenAt)
	}
	return a.ParticipantID > b.ParticipantID
}
