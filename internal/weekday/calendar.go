package weekday

import "time"

// Week is one calendar row, indexed by Weekday. Days outside the month are 0.
type Week [7]int

// MonthCalendar returns the Monday-first grid of weeks for the given month.
// The first and last rows may be partial.
func MonthCalendar(year int, month time.Month) []Week {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := daysIn(year, month)
	lead := int(Of(first))

	rows := make([]Week, 0, 6)
	var w Week
	col := lead
	for d := 1; d <= days; d++ {
		w[col] = d
		col++
		if col == 7 {
			rows = append(rows, w)
			w = Week{}
			col = 0
		}
	}
	if col > 0 {
		rows = append(rows, w)
	}
	return rows
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
