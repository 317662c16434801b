// Package docs registers the Swagger document for the eventd HTTP API.
// Regenerate with: swag init -g internal/api/api.go -o internal/api/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "description": "Component health. Answers 503 when any component is in ERROR.",
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/model.HealthStatus"}
                    },
                    "503": {
                        "description": "Service Unavailable",
                        "schema": {"$ref": "#/definitions/model.HealthStatus"}
                    }
                }
            }
        },
        "/hooks": {
            "get": {
                "description": "Names of the loaded event hooks in dispatch order",
                "produces": ["application/json"],
                "tags": ["daemon"],
                "summary": "List hooks",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/metrics": {
            "get": {
                "description": "Prometheus exposition of event counts, stage latency and loop state",
                "produces": ["text/plain"],
                "tags": ["system"],
                "summary": "Metrics",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "string"}}
                }
            }
        },
        "/sources": {
            "get": {
                "description": "Configured event sources and their status",
                "produces": ["application/json"],
                "tags": ["daemon"],
                "summary": "List sources",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        },
        "/status": {
            "get": {
                "description": "Loop state, counters, identity, hooks, sources and the last recovered failure",
                "produces": ["application/json"],
                "tags": ["daemon"],
                "summary": "Daemon status",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "object", "additionalProperties": true}
                    }
                }
            }
        }
    },
    "definitions": {
        "model.HealthStatus": {
            "type": "object",
            "properties": {
                "components": {
                    "type": "object",
                    "additionalProperties": {"$ref": "#/definitions/model.HealthStatus"}
                },
                "details": {"type": "object", "additionalProperties": true},
                "message": {"type": "string"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "eventd API",
	Description:      "Metrics, health and status of the eventd daemon",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
