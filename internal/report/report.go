// Package report renders the plain-text attendance summary shared with the
// class after marking.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/roach88/rollcall/internal/attendance"
	"github.com/roach88/rollcall/internal/roster"
)

// Bullet prefixes each itemized student line.
const Bullet = "  \u2022 "

// Report is the projection of one day's records used for export.
// Every list is in roster order.
type Report struct {
	Date       string            `json:"date"`
	ClassLabel string            `json:"classLabel"`
	Counts     attendance.Counts `json:"counts"`
	Present    []roster.Student  `json:"present"`
	Absent     []roster.Student  `json:"absent"`
	Late       []roster.Student  `json:"late"`
	ODInternal []roster.Student  `json:"odInternal"`
	ODExternal []roster.Student  `json:"odExternal"`
	ODOther    []roster.Student  `json:"odOther"`
}

// Options controls Render.
type Options struct {
	// ListPresent adds an itemized list of present students.
	ListPresent bool
}

// Build projects records onto the roster. A roster member without a record
// counts as absent.
func Build(date, classLabel string, r *roster.Roster, records attendance.RecordMap) Report {
	rep := Report{
		Date:       date,
		ClassLabel: classLabel,
		Present:    []roster.Student{},
		Absent:     []roster.Student{},
		Late:       []roster.Student{},
		ODInternal: []roster.Student{},
		ODExternal: []roster.Student{},
		ODOther:    []roster.Student{},
	}

	all := make([]attendance.Record, 0, r.Len())
	for _, s := range r.Students() {
		rec, ok := records[s.RollNo]
		if !ok {
			rec = attendance.DefaultRecord(s, date)
		}
		all = append(all, rec)

		switch rec.Status {
		case attendance.StatusPresent:
			rep.Present = append(rep.Present, s)
		case attendance.StatusAbsent:
			rep.Absent = append(rep.Absent, s)
		case attendance.StatusLate:
			rep.Late = append(rep.Late, s)
		case attendance.StatusOD:
			switch rec.ODType {
			case attendance.ODInternal:
				rep.ODInternal = append(rep.ODInternal, s)
			case attendance.ODExternal:
				rep.ODExternal = append(rep.ODExternal, s)
			default:
				rep.ODOther = append(rep.ODOther, s)
			}
		}
	}
	rep.Counts = attendance.CountsOf(all)
	return rep
}

// Render writes the summary text. Sections with no students are omitted.
func Render(w io.Writer, rep Report, opts Options) error {
	_, err := io.WriteString(w, Text(rep, opts))
	return err
}

// Text returns the summary as a string, without a trailing newline.
func Text(rep Report, opts Options) string {
	c := rep.Counts
	lines := []string{
		"ATTENDANCE UPDATE",
		strings.Repeat("=", 20),
		"Date: " + rep.Date,
		"Class: " + rep.ClassLabel,
		"",
		fmt.Sprintf("Total Students: %d", c.Total),
		countLine("Present", c.Present, c),
		countLine("Absent", c.Absent, c),
		countLine("Late", c.Late, c),
		countLine("On Duty", c.OD, c),
	}

	section := func(title string, students []roster.Student) {
		if len(students) == 0 {
			return
		}
		lines = append(lines, "", title+":")
		for _, s := range students {
			lines = append(lines, fmt.Sprintf("%s%s - %s", Bullet, s.RollNo, s.Name))
		}
	}

	if opts.ListPresent {
		section("Present", rep.Present)
	}
	section("Absentees", rep.Absent)
	section("Late Arrivals", rep.Late)
	section("Internal OD", rep.ODInternal)
	section("External OD", rep.ODExternal)
	section("On Duty (unspecified)", rep.ODOther)

	return strings.Join(lines, "\n")
}

func countLine(label string, n int, c attendance.Counts) string {
	return fmt.Sprintf("%s: %d (%d%%)", label, n, c.Percent(n))
}
