// Package cohort holds the subject table shared by the balancer and the
// inference runner. A Cohort is immutable: removals return a new snapshot.
package cohort

import (
	"errors"
	"fmt"
)

// ErrSubjectNotFound is returned when a participant is not in the cohort.
var ErrSubjectNotFound = errors.New("cohort: subject not found")

// Subject is one joined participant/imaging row.
type Subject struct {
	ParticipantID string
	ImageID       string
	Age           float64
	Gender        int
	Diagnosis     int
	// ICV is the estimated total intracranial volume.
	ICV float64
	// Features are raw region volumes in the order of the loader's feature list.
	Features []float64
}

// Cohort is an ordered set of subjects unique by participant ID.
type Cohort struct {
	subjects []Subject
	index    map[string]int
}

// New builds a cohort, rejecting duplicate participant IDs. Feature slices
// are copied.
func New(subjects []Subject) (*Cohort, error) {
	c := &Cohort{subjects: make([]Subject, 0, len(subjects)), index: make(map[string]int, len(subjects))}
	for _, s := range subjects {
		if s.ParticipantID == "" {
			return nil, fmt.Errorf("cohort: empty participant id (image %q)", s.ImageID)
		}
		if _, dup := c.index[s.ParticipantID]; dup {
			return nil, fmt.Errorf("cohort: duplicate participant id %q", s.ParticipantID)
		}
		s.Features = append([]float64(nil), s.Features...)
		c.index[s.ParticipantID] = len(c.subjects)
		c.subjects = append(c.subjects, s)
	}
	return c, nil
}

// Len returns the number of subjects.
func (c *Cohort) Len() int { return len(c.subjects) }

// Subjects returns the subjects in cohort order. Callers must not modify
// the Features slices.
func (c *Cohort) Subjects() []Subject {
	return append([]Subject(nil), c.subjects...)
}

// Lookup returns the subject with participant id.
func (c *Cohort) Lookup(id string) (Subject, bool) {
	i, ok := c.index[id]
	if !ok {
		return Subject{}, false
	}
	return c.subjects[i], true
}

// Without returns a new cohort without participant id. The receiver is left
// untouched; removing an absent subject fails with ErrSubjectNotFound.
func (c *Cohort) Without(id string) (*Cohort, error) {
	pos, ok := c.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSubjectNotFound, id)
	}
	next := &Cohort{subjects: make([]Subject, 0, len(c.subjects)-1), index: make(map[string]int, len(c.subjects)-1)}
	for i, s := range c.subjects {
		if i == pos {
			continue
		}
		next.index[s.ParticipantID] = len(next.subjects)
		next.subjects = append(next.subjects, s)
	}
	return next, nil
}

// Filter returns the subjects matching keep as a new cohort.
func (c *Cohort) Filter(keep func(Subject) bool) *Cohort {
	next := &Cohort{index: make(map[string]int)}
	for _, s := range c.subjects {
		if keep(s) {
			next.index[s.ParticipantID] = len(next.subjects)
			next.subjects = append(next.subjects, s)
		}
	}
	return next
}

// Group returns members with diagnosis code in cohort order.
func (c *Cohort) Group(code int) []Subject {
	var out []Subject
	for _, s := range c.subjects {
		if s.Diagnosis == code {
			out = append(out, s)
		}
	}
	return out
}

// Ages returns the ages of group code in cohort order.
func (c *Cohort) Ages(code int) []float64 {
	var out []float64
	for _, s := range c.subjects {
		if s.Diagnosis == code {
			out = append(out, s.Age)
		}
	}
	return out
}

// IDs returns participant IDs in cohort order.
func (c *Cohort) IDs() []string {
	out := make([]string, len(c.subjects))
	for i, s := range c.subjects {
		out[i] = s.ParticipantID
	}
	return out
}

// ImageIDs returns image IDs in cohort order.
func (c *Cohort) ImageIDs() []string {
	out := make([]string, len(c.subjects))
	for i, s := range c.subjects {
		out[i] = s.ImageID
	}
	return out
}

// Diagnoses returns the diagnosis code of every subject in cohort order.
func (c *Cohort) Diagnoses() []int {
	out := make([]int, len(c.subjects))
	for i, s := range c.subjects {
		out[i] = s.Diagnosis
	}
	return out
}

// Genders returns the gender code of every subject in cohort order.
func (c *Cohort) Genders() []int {
	out := make([]int, len(c.subjects))
	for i, s := range c.subjects {
		out[i] = s.Gender
	}
	return out
}

// Counts returns the number of members per diagnosis code.
func (c *Cohort) Counts() map[int]int {
	out := make(map[int]int)
	for _, s := range c.subjects {
		out[s.Diagnosis]++
	}
	return out
}
