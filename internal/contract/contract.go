// Package contract verifies at startup that the backend's OpenAPI
// specification exposes every route the entity definitions rely on.
// Issues found here are reported, not fatal: the backend may lag a
// definition change during a rollout.
package contract

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"

	"github.com/cargolog/console/model"
)

// Issue names a route an entity needs that the backend contract lacks.
type Issue struct {
	Entity string
	Method string
	Path   string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s %s", i.Entity, i.Method, i.Path)
}

// Checker compares entity definitions against a loaded OpenAPI document.
type Checker struct {
	doc    *openapi3.T
	logger *zap.Logger
}

// Load parses and validates the backend OpenAPI spec at the given path.
func Load(ctx context.Context, specFile string, logger *zap.Logger) (*Checker, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromFile(specFile)
	if err != nil {
		return nil, fmt.Errorf("contract: loading %s: %w", specFile, err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("contract: validating %s: %w", specFile, err)
	}
	return &Checker{doc: doc, logger: logger}, nil
}

// Check returns every route a definition requires that the contract does
// not declare, sorted for stable reporting.
func (c *Checker) Check(defs []model.EntityDefinition) []Issue {
	var issues []Issue
	for _, def := range defs {
		for _, want := range requiredRoutes(def) {
			if !c.hasOperation(want.Method, want.Path) {
				issues = append(issues, want)
			}
		}
	}
	sort.Slice(issues, func(i, j int) bool {
		if issues[i].Entity != issues[j].Entity {
			return issues[i].Entity < issues[j].Entity
		}
		if issues[i].Path != issues[j].Path {
			return issues[i].Path < issues[j].Path
		}
		return issues[i].Method < issues[j].Method
	})
	return issues
}

// Report logs each issue as a warning and returns the count.
func (c *Checker) Report(issues []Issue) int {
	for _, issue := range issues {
		c.logger.Warn("backend contract missing route",
			zap.String("entity", issue.Entity),
			zap.String("method", issue.Method),
			zap.String("path", issue.Path))
	}
	return len(issues)
}

func requiredRoutes(def model.EntityDefinition) []Issue {
	base := def.BaseRoute
	byID := base + "/{id}"
	routes := []Issue{
		{Entity: def.Entity, Method: http.MethodGet, Path: base},
		{Entity: def.Entity, Method: http.MethodPost, Path: base},
		{Entity: def.Entity, Method: http.MethodGet, Path: byID},
		{Entity: def.Entity, Method: http.MethodPatch, Path: byID},
		{Entity: def.Entity, Method: http.MethodDelete, Path: byID},
	}
	if def.Import != nil && def.Import.Route != "" {
		routes = append(routes, Issue{
			Entity: def.Entity,
			Method: http.MethodPost,
			Path:   base + "/" + def.Import.Route,
		})
	}
	return routes
}

// hasOperation matches the wanted path against the contract's declared
// paths, treating any template parameter segment as equal to "{id}".
func (c *Checker) hasOperation(method, path string) bool {
	for declared, item := range c.doc.Paths.Map() {
		if item == nil || !pathsMatch(declared, path) {
			continue
		}
		if item.GetOperation(method) != nil {
			return true
		}
	}
	return false
}

func pathsMatch(declared, wanted string) bool {
	ds := strings.Split(strings.Trim(declared, "/"), "/")
	ws := strings.Split(strings.Trim(wanted, "/"), "/")
	if len(ds) != len(ws) {
		return false
	}
	for i := range ds {
		if isTemplate(ds[i]) && isTemplate(ws[i]) {
			continue
		}
		if ds[i] != ws[i] {
			return false
		}
	}
	return true
}

func isTemplate(segment string) bool {
	return strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}")
}
