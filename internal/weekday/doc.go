// Package weekday decides whether a date is the Nth weekday of its month.
//
// The month is viewed as a Monday-first calendar grid (see MonthCalendar)
// whose first and last rows are often partial. Ordinals are signed row
// positions: 1..5 select a row from the top, -1..-5 a row from the bottom.
// A bottom-counted row without the requested weekday falls back to the row
// above it, so -1 on a Friday still finds the last Friday when the month
// ends on a Thursday. Positions outside the grid never match.
package weekday
