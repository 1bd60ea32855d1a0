package domain

import "errors"

// ErrAspectEmpty indicates a taxonomy without a classification criterion.
var ErrAspectEmpty = errors.New("taxonomy aspect is empty")

// Taxonomy is a tree of class nodes sharing one conceptual aspect, the
// free-text criterion every classification judgment is made against.
// A taxonomy is immutable for the duration of a classification run.
type Taxonomy struct {
	ID     string   `json:"id"`
	Aspect string   `json:"aspect"`
	Rules  []string `json:"rules,omitempty"`
}

// Validate checks the taxonomy is usable for classification or bootstrap.
func (t Taxonomy) Validate() error {
	if t.Aspect == "" {
		return ErrAspectEmpty
	}
	return nil
}
