package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	CellID       ID
	ExperimentID ID
	ProjectID    ID
	RunID        ID
)

// String conversions for domain IDs
func (id CellID) String() string       { return ID(id).String() }
func (id ExperimentID) String() string { return ID(id).String() }
func (id ProjectID) String() string    { return ID(id).String() }
func (id RunID) String() string        { return ID(id).String() }

// NewRunID identifies one analysis run. Bundles never carry it, so repeated
// runs over the same input stay bit-identical.
func NewRunID() RunID { return RunID(NewID()) }

// ParseCellID parses a string into CellID
func ParseCellID(s string) (CellID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("cell ID cannot be empty")
	}
	return CellID(strings.TrimSpace(s)), nil
}

// ParseExperimentID parses a string into ExperimentID
func ParseExperimentID(s string) (ExperimentID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("experiment ID cannot be empty")
	}
	return ExperimentID(strings.TrimSpace(s)), nil
}

// ParseProjectID parses a string into ProjectID
func ParseProjectID(s string) (ProjectID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("project ID cannot be empty")
	}
	return ProjectID(strings.TrimSpace(s)), nil
}
