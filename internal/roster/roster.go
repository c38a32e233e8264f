// Package roster loads the ordered list of students for a class.
//
// A Roster is immutable once built. Order is the file order and is preserved
// by snapshots and reports.
package roster

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Student is one roster entry.
type Student struct {
	RollNo string `yaml:"roll_no" json:"rollNo"`
	Name   string `yaml:"name" json:"name"`
}

// Roster is an ordered, immutable set of students keyed by roll number.
type Roster struct {
	students []Student
	index    map[string]int
}

type file struct {
	Students []Student `yaml:"students"`
}

// New builds a roster, rejecting empty or duplicate roll numbers.
func New(students []Student) (*Roster, error) {
	r := &Roster{
		students: make([]Student, 0, len(students)),
		index:    make(map[string]int, len(students)),
	}
	for i, s := range students {
		s.RollNo = strings.TrimSpace(s.RollNo)
		s.Name = strings.TrimSpace(s.Name)
		if s.RollNo == "" {
			return nil, fmt.Errorf("student %d: roll_no is required", i)
		}
		if _, dup := r.index[s.RollNo]; dup {
			return nil, fmt.Errorf("student %d: duplicate roll_no %q", i, s.RollNo)
		}
		r.index[s.RollNo] = len(r.students)
		r.students = append(r.students, s)
	}
	return r, nil
}

// MustNew is New for fixtures; it panics on error.
func MustNew(students ...Student) *Roster {
	r, err := New(students)
	if err != nil {
		panic(err)
	}
	return r
}

// Parse decodes a YAML roster document. Unknown fields are rejected.
func Parse(data []byte) (*Roster, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse roster: %w", err)
	}
	if len(f.Students) == 0 {
		return nil, errors.New("parse roster: no students")
	}
	return New(f.Students)
}

// Load reads and parses a roster file.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

// Len returns the number of students.
func (r *Roster) Len() int {
	return len(r.students)
}

// Students returns a copy of the students in roster order.
func (r *Roster) Students() []Student {
	out := make([]Student, len(r.students))
	copy(out, r.students)
	return out
}

// Lookup finds a student by roll number.
func (r *Roster) Lookup(rollNo string) (Student, bool) {
	i, ok := r.index[rollNo]
	if !ok {
		return Student{}, false
	}
	return r.students[i], true
}

// Contains reports whether rollNo is on the roster.
func (r *Roster) Contains(rollNo string) bool {
	_, ok := r.index[rollNo]
	return ok
}

// RollNos returns the roll numbers in roster order.
func (r *Roster) RollNos() []string {
	out := make([]string, len(r.students))
	for i, s := range r.students {
		out[i] = s.RollNo
	}
	return out
}
