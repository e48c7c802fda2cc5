package openapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// InputField documents one canonical request field and the keys accepted
// for it, highest priority first.
type InputField struct {
	Name    string
	Type    string // "string", "integer" or "number"
	Aliases []string
}

// Generator builds an OpenAPI 3.0 spec for the analyzer API.
type Generator struct {
	version string
	baseURL string
	fields  []InputField
}

// NewGenerator creates a new OpenAPI spec generator.
func NewGenerator(version, baseURL string, fields []InputField) *Generator {
	return &Generator{version: version, baseURL: baseURL, fields: fields}
}

// GenerateSpec produces the OpenAPI 3.0 spec as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := map[string]interface{}{
		"/health": map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Liveness check",
				"operationId": "health",
				"tags":        []string{"system"},
				"responses": map[string]interface{}{
					"200": buildResponseWithSchema("Service is up", "#/components/schemas/Health"),
				},
			},
		},
	}
	for _, prefix := range []string{"", "/api/v1"} {
		opID := "analyze"
		if prefix != "" {
			opID = "analyzeV1"
		}
		paths[prefix+"/analyze"] = map[string]interface{}{
			"post": g.analyzeOperation(opID),
		}
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "Lab Analyzer API",
			"version":     g.version,
			"description": "Rule-based interpretation of extracted lab values",
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": g.buildComponentSchemas(),
		},
	}
}

func (g *Generator) analyzeOperation(operationID string) map[string]interface{} {
	return map[string]interface{}{
		"summary":     "Evaluate lab values against reference ranges",
		"operationId": operationID,
		"tags":        []string{"analysis"},
		"requestBody": map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": map[string]interface{}{
						"$ref": "#/components/schemas/AnalyzeRequest",
					},
				},
			},
		},
		"responses": map[string]interface{}{
			"200": buildResponseWithSchema("Summary and ordered recommendations", "#/components/schemas/AnalysisResult"),
			"400": buildResponseWithSchema("Malformed body or invalid field value", "#/components/schemas/Error"),
			"413": buildResponseWithSchema("Request body too large", "#/components/schemas/Error"),
			"429": buildResponseWithSchema("Rate limit exceeded", "#/components/schemas/Error"),
		},
	}
}

// buildResponseWithSchema creates an OpenAPI response with content schema reference.
func buildResponseWithSchema(description, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			"application/json": map[string]interface{}{
				"schema": map[string]interface{}{
					"$ref": schemaRef,
				},
			},
		},
	}
}

func (g *Generator) buildComponentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"AnalyzeRequest": map[string]interface{}{
			"type":     "object",
			"required": []string{"fields"},
			"properties": map[string]interface{}{
				"fields": map[string]interface{}{"$ref": "#/components/schemas/LabFields"},
			},
		},
		"LabFields":      g.buildLabFieldsSchema(),
		"Summary":        g.buildSummarySchema(),
		"Recommendation": buildRecommendationSchema(),
		"AnalysisResult": map[string]interface{}{
			"type":     "object",
			"required": []string{"summary", "recommendations"},
			"properties": map[string]interface{}{
				"summary": map[string]interface{}{"$ref": "#/components/schemas/Summary"},
				"recommendations": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/Recommendation"},
				},
			},
		},
		"Error": map[string]interface{}{
			"type":     "object",
			"required": []string{"message"},
			"properties": map[string]interface{}{
				"message": map[string]interface{}{"type": "string"},
			},
		},
		"Health": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status":  map[string]interface{}{"type": "string"},
				"version": map[string]interface{}{"type": "string"},
			},
		},
	}
}

// buildLabFieldsSchema lists every accepted input key. Numeric fields also
// accept numeric strings, and unknown keys are ignored.
func (g *Generator) buildLabFieldsSchema() map[string]interface{} {
	props := make(map[string]interface{})
	for _, f := range g.fields {
		for i, alias := range f.Aliases {
			desc := "Canonical key for " + f.Name + "."
			if i > 0 {
				desc = fmt.Sprintf("Alias of %s (priority %d of %d).", f.Name, i+1, len(f.Aliases))
			}
			props[alias] = inputSchema(f.Type, desc)
		}
	}
	return map[string]interface{}{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": true,
	}
}

func inputSchema(typ, desc string) map[string]interface{} {
	if typ == "string" {
		return map[string]interface{}{"type": "string", "nullable": true, "description": desc}
	}
	return map[string]interface{}{
		"oneOf": []map[string]interface{}{
			{"type": typ},
			{"type": "string", "description": "numeric string"},
		},
		"nullable":    true,
		"description": desc,
	}
}

func (g *Generator) buildSummarySchema() map[string]interface{} {
	props := make(map[string]interface{})
	required := make([]string, 0, len(g.fields))
	for _, f := range g.fields {
		schema := map[string]interface{}{
			"type":        f.Type,
			"description": "Read from: " + strings.Join(f.Aliases, ", ") + ".",
		}
		if f.Type == "string" {
			schema["nullable"] = true
		}
		props[f.Name] = schema
		required = append(required, f.Name)
	}
	return map[string]interface{}{
		"type":       "object",
		"required":   required,
		"properties": props,
	}
}

func buildRecommendationSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"title", "reason", "priority"},
		"properties": map[string]interface{}{
			"title":  map[string]interface{}{"type": "string"},
			"reason": map[string]interface{}{"type": "string"},
			"priority": map[string]interface{}{
				"type": "string",
				"enum": []string{"high", "medium", "low"},
			},
		},
	}
}

// RegisterRoutes registers the OpenAPI endpoint.
func (g *Generator) RegisterRoutes(apiGroup *echo.Group, m ...echo.MiddlewareFunc) {
	apiGroup.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, g.GenerateSpec())
	}, m...)
}
