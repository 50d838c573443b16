package usecase

import "StudyScanner/internal/domain"

// Reconcile returns the studies of next whose ID is absent from prev, in the
// order they appear in next. Removals are never reported. A duplicate ID in
// next is reported once, at its first occurrence.
func Reconcile(prev, next domain.Snapshot) domain.Delta {
	known := prev.IDs()
	added := make(domain.Delta, 0)
	for _, study := range next {
		if _, ok := known[study.ID]; ok {
			continue
		}
		known[study.ID] = struct{}{}
		added = append(added, study)
	}
	return added
}
