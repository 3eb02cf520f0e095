// Package diff compares the watchpoint sets of two consecutive snapshots.
package diff

import "github.com/ticketguy/Keepshot/lib/models"

// Candidate is a provisional field change awaiting significance analysis.
// Kind is ChangeAdded for fields absent from the old set, ChangeModified
// otherwise; the analyzer may refine modified into increase/decrease.
type Candidate struct {
	Watchpoint *models.Watchpoint // new side of the comparison
	OldValue   string
	Kind       models.ChangeKind
}

// Fields diffs the old watchpoint set against the new one. Equal values emit
// nothing, so identical content never produces noise. Fields present only in
// the old set are not reported: extraction field-sets legitimately vary
// between runs, and a field's disappearance is not evidence of removal.
// Output order follows the new set's extraction order.
func Fields(oldFields, newFields []models.Watchpoint) []Candidate {
	oldByName := make(map[string]*models.Watchpoint, len(oldFields))
	for i := range oldFields {
		oldByName[oldFields[i].FieldName] = &oldFields[i]
	}

	candidates := make([]Candidate, 0)
	for i := range newFields {
		wp := &newFields[i]
		old, ok := oldByName[wp.FieldName]
		switch {
		case !ok:
			candidates = append(candidates, Candidate{Watchpoint: wp, Kind: models.ChangeAdded})
		case old.FieldValue != wp.FieldValue:
			candidates = append(candidates, Candidate{Watchpoint: wp, OldValue: old.FieldValue, Kind: models.ChangeModified})
		}
	}
	return candidates
}
