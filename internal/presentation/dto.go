package presentation

import (
	"github.com/zjrosen/milspecs/internal/spec/loader"
	"github.com/zjrosen/milspecs/internal/spec/registry"
)

// SpecDTO describes a registered spec for CLI output
type SpecDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	Icon        string   `json:"icon"`
	IsDefault   bool     `json:"is_default"`
	Paths       []string `json:"paths"`
	Tools       []string `json:"tools"`
}

// ToolDTO describes one tool route
type ToolDTO struct {
	Name   string `json:"name"`
	Title  string `json:"title"`
	Path   string `json:"path"`
	SpecID string `json:"spec_id,omitempty"`
}

// FromSpec converts a spec summary plus its routes and tools to a DTO.
// Paths and Tools are always present, even when empty.
func FromSpec(s loader.SpecSummary, svc *loader.Service) SpecDTO {
	paths := make([]string, 0)
	for _, r := range svc.Registry().GetRoutesForSpec(s.ID) {
		paths = append(paths, r.Path)
	}
	tools := make([]string, 0)
	for _, t := range svc.ToolsForSpec(s.ID) {
		tools = append(tools, t.Name)
	}
	return SpecDTO{
		ID:          s.ID,
		Name:        s.Name,
		Version:     s.Version,
		Description: s.Description,
		Icon:        s.Icon,
		IsDefault:   s.IsDefault,
		Paths:       paths,
		Tools:       tools,
	}
}

// FromSpecs converts every summary in order
func FromSpecs(specs []loader.SpecSummary, svc *loader.Service) []SpecDTO {
	dtos := make([]SpecDTO, len(specs))
	for i, s := range specs {
		dtos[i] = FromSpec(s, svc)
	}
	return dtos
}

// FromTools converts registry tools to DTOs
func FromTools(tools []registry.Tool) []ToolDTO {
	dtos := make([]ToolDTO, len(tools))
	for i, t := range tools {
		dtos[i] = ToolDTO{
			Name:   t.Name,
			Title:  t.Meta.Title,
			Path:   t.Path,
			SpecID: t.SpecID,
		}
	}
	return dtos
}
