package engine

import (
	"sort"

	"savingsrate/internal/core"
)

// MergeReference aligns an external reference series with the self series.
//
// Points are sorted by month; a month given twice keeps its last value.
// Points outside the self series' first..last range are kept and flagged
// ReferenceOnly. With no self records every point is reference-only.
func MergeReference(label string, points []core.ReferencePoint, self core.ProfileSeries) core.Overlay {
	overlay := core.Overlay{Label: label, Points: []core.OverlayPoint{}}
	if len(points) == 0 {
		return overlay
	}

	byMonth := make(map[core.MonthKey]float64, len(points))
	for _, p := range points {
		byMonth[p.Month] = p.Value
	}
	months := make([]core.MonthKey, 0, len(byMonth))
	for k := range byMonth {
		months = append(months, k)
	}
	sort.Slice(months, func(i, j int) bool { return months[i].Before(months[j]) })

	first, last, ok := self.Range()
	for _, k := range months {
		overlay.Points = append(overlay.Points, core.OverlayPoint{
			Month:         k,
			Value:         byMonth[k],
			ReferenceOnly: !ok || k.Before(first) || k.After(last),
		})
	}
	return overlay
}
