package attendance

import "strings"

// Counts summarizes a day's records by status.
type Counts struct {
	Total      int `json:"total"`
	Present    int `json:"present"`
	Absent     int `json:"absent"`
	Late       int `json:"late"`
	OD         int `json:"od"`
	ODInternal int `json:"odInternal"`
	ODExternal int `json:"odExternal"`
}

// CountsOf tallies records.
func CountsOf(records []Record) Counts {
	c := Counts{Total: len(records)}
	for _, r := range records {
		switch r.Status {
		case StatusPresent:
			c.Present++
		case StatusAbsent:
			c.Absent++
		case StatusLate:
			c.Late++
		case StatusOD:
			c.OD++
			switch r.ODType {
			case ODInternal:
				c.ODInternal++
			case ODExternal:
				c.ODExternal++
			}
		}
	}
	return c
}

// Percent returns n as a whole percentage of the total, or 0 for an empty day.
func (c Counts) Percent(n int) int {
	if c.Total == 0 {
		return 0
	}
	return (n*100 + c.Total/2) / c.Total
}

// Filter keeps records matching status (empty matches all) whose name or
// roll number contains query, case-insensitively. Order is preserved.
func Filter(records []Record, status Status, query string) []Record {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if status != "" && r.Status != status {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(r.Name), q) &&
			!strings.Contains(strings.ToLower(r.RollNo), q) {
			continue
		}
		out = append(out, r)
	}
	return out
}
