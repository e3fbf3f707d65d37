package models

import (
	"fmt"

	"github.com/google/uuid"
)

// SurfaceType represents the isolation boundary of an AI conversation
type SurfaceType string

const (
	SurfaceProject  SurfaceType = "project"
	SurfacePersonal SurfaceType = "personal"
	SurfaceShared   SurfaceType = "shared"
)

// ChatSurface identifies the conversation surface a request belongs to.
// A project surface always carries its project id; personal and shared
// surfaces never do.
type ChatSurface struct {
	Type      SurfaceType `json:"type"`
	ProjectID *uuid.UUID  `json:"project_id,omitempty"`
}

// NewProjectSurface creates a project surface bound to a project
func NewProjectSurface(projectID uuid.UUID) ChatSurface {
	return ChatSurface{Type: SurfaceProject, ProjectID: &projectID}
}

// NewPersonalSurface creates a personal surface
func NewPersonalSurface() ChatSurface {
	return ChatSurface{Type: SurfacePersonal}
}

// NewSharedSurface creates a shared surface
func NewSharedSurface() ChatSurface {
	return ChatSurface{Type: SurfaceShared}
}

// Validate checks the surface/project-id pairing invariant
func (s ChatSurface) Validate() error {
	switch s.Type {
	case SurfaceProject:
		if s.ProjectID == nil || *s.ProjectID == uuid.Nil {
			return fmt.Errorf("project surface requires a project id")
		}
	case SurfacePersonal, SurfaceShared:
		if s.ProjectID != nil {
			return fmt.Errorf("%s surface must not carry a project id", s.Type)
		}
	default:
		return fmt.Errorf("unknown surface type: %s", s.Type)
	}
	return nil
}

// ValidSurfaceType reports whether the value is a known surface type
func ValidSurfaceType(value string) bool {
	switch SurfaceType(value) {
	case SurfaceProject, SurfacePersonal, SurfaceShared:
		return true
	default:
		return false
	}
}
