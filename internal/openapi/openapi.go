// Package openapi implements the Description Generator (C7): rendering a
// per-tenant OpenAPI-shaped document over the currently connected, admitted
// workers' tool offerings.
package openapi

import (
	"encoding/json"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/meridianlabs/toolbridge/internal/tenant"
	"github.com/meridianlabs/toolbridge/internal/wire"
	"github.com/meridianlabs/toolbridge/internal/workerreg"
)

const (
	formatVersion  = "3.1.0"
	maxDescription = 300

	descriptionBlurb = " Tools are proxied through a single multi-tenant bridge to whichever connected worker currently offers them."
)

// Document is a generated description, renderable as JSON or YAML without
// re-deriving it (both serializations walk the same in-memory value).
type Document struct {
	data map[string]interface{}
}

// Generate builds the description document for tenant t from a snapshot of
// the Worker Registry, per spec §4.7. workers need not be sorted; Generate
// orders them by registration time itself to resolve tool-name collisions.
func Generate(baseTitle string, t *tenant.Tenant, workers []workerreg.Record, publicURL string) *Document {
	sorted := make([]workerreg.Record, len(workers))
	copy(sorted, workers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RegisteredAt.Before(sorted[j].RegisteredAt) })

	paths := map[string]interface{}{}
	claimed := make(map[string]bool)

	for _, rec := range sorted {
		if rec.State != workerreg.Connected || !t.Admits(rec.WorkerToken) {
			continue
		}
		for _, tool := range rec.Tools {
			if claimed[tool.Name] {
				continue
			}
			claimed[tool.Name] = true
			paths["/api/tools/"+tool.Name] = map[string]interface{}{
				"post": buildOperation(tool),
			}
		}
	}

	doc := map[string]interface{}{
		"openapi": formatVersion,
		"info": map[string]interface{}{
			"title":       fmt.Sprintf("%s - %s", baseTitle, t.Name),
			"version":     "1.0.0",
			"description": truncate(t.Description+descriptionBlurb, maxDescription),
		},
		"servers": []interface{}{
			map[string]interface{}{"url": publicURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":   "http",
					"scheme": "bearer",
				},
			},
			"schemas": map[string]interface{}{
				"Error": errorSchema(),
			},
		},
		"security": []interface{}{
			map[string]interface{}{"bearerAuth": []interface{}{}},
		},
	}

	return &Document{data: doc}
}

func buildOperation(tool wire.ToolSchema) map[string]interface{} {
	return map[string]interface{}{
		"operationId":      tool.Name,
		"description":      truncate(tool.Description, maxDescription),
		"x-state-changing": false,
		"requestBody": map[string]interface{}{
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": sanitizeSchema(tool.Parameters),
				},
			},
		},
		"responses": map[string]interface{}{
			"200": map[string]interface{}{
				"description": "tool result",
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{
						"schema": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"result": resultSchema(tool.Returns),
							},
							"required": []interface{}{"result"},
						},
					},
				},
			},
			"400": errorResponse(),
			"404": errorResponse(),
			"500": errorResponse(),
		},
	}
}

func resultSchema(raw json.RawMessage) interface{} {
	if len(raw) == 0 {
		return map[string]interface{}{"type": "object"}
	}
	return sanitizeSchema(raw)
}

func errorResponse() map[string]interface{} {
	return map[string]interface{}{
		"description": "error",
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{"$ref": "#/components/schemas/Error"},
			},
		},
	}
}

func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"error": map[string]interface{}{"type": "string"},
			"code":  map[string]interface{}{"type": "string"},
		},
		"required": []interface{}{"error", "code"},
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-1] + "…"
}

// JSON serializes the document as JSON.
func (d *Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d.data, "", "  ")
}

// YAML serializes the same logical document as YAML.
func (d *Document) YAML() ([]byte, error) {
	return yaml.Marshal(d.data)
}
