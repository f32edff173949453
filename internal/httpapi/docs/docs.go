// Package docs registers the OpenAPI document served under /swagger/.
// Regenerate with `swag init -g cmd/talion/docs.go -o internal/httpapi/docs`.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "talion maintainers"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/": {
            "get": {
                "description": "Static HTML page. Triggers a background model load in lazy mode.",
                "produces": ["text/html"],
                "tags": ["status"],
                "summary": "Status page",
                "responses": {
                    "200": {
                        "description": "HTML page",
                        "schema": {"type": "string"}
                    }
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Health check",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"$ref": "#/definitions/types.HealthResponse"}
                    }
                }
            }
        },
        "/generate/": {
            "post": {
                "description": "Continues the prompt up to max_length total tokens. The output echoes the prompt.\nInputs come from query parameters or a JSON body; body fields win.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["generate"],
                "summary": "Generate text",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Prompt text (required here or in the body)",
                        "name": "prompt",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "default": 100,
                        "description": "Total length bound in tokens",
                        "name": "max_length",
                        "in": "query"
                    },
                    {
                        "description": "Generation request",
                        "name": "request",
                        "in": "body",
                        "schema": {"$ref": "#/definitions/types.GenerateRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.GenerateResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/types.ErrorResponse"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.ErrorResponse"}}
                }
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["status"],
                "summary": "Model and queue status",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.StatusResponse"}}
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": ["text/plain"],
                "tags": ["status"],
                "summary": "Readiness",
                "responses": {
                    "200": {"description": "ready", "schema": {"type": "string"}},
                    "503": {"description": "loading", "schema": {"type": "string"}}
                }
            }
        }
    },
    "definitions": {
        "types.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 422},
                "error": {"type": "string", "example": "prompt is required"}
            }
        },
        "types.GenerateRequest": {
            "type": "object",
            "properties": {
                "max_length": {"type": "integer", "example": 100},
                "prompt": {"type": "string", "example": "Explain force majeure."},
                "seed": {"type": "integer", "example": 42},
                "temperature": {"type": "number", "example": 0},
                "top_k": {"type": "integer", "example": 40},
                "top_p": {"type": "number", "example": 0.9}
            }
        },
        "types.GenerateResponse": {
            "type": "object",
            "properties": {
                "generated_text": {"type": "string", "example": "Explain force majeure. Force majeure is a contractual clause..."}
            }
        },
        "types.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        },
        "types.Model": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "Equall/Saul-7B-Instruct-v1"},
                "name": {"type": "string"},
                "path": {"type": "string"}
            }
        },
        "types.StatusResponse": {
            "type": "object",
            "properties": {
                "backend": {"type": "string", "example": "server"},
                "cache_entries": {"type": "integer", "example": 0},
                "generations_total": {"type": "integer", "example": 12},
                "inflight": {"type": "integer", "example": 1},
                "last_error": {"type": "string"},
                "load_mode": {"type": "string", "example": "eager"},
                "loaded_at_unix": {"type": "integer", "example": 1700000000},
                "loads_total": {"type": "integer", "example": 1},
                "max_queue_depth": {"type": "integer", "example": 32},
                "model": {"$ref": "#/definitions/types.Model"},
                "parallelism": {"type": "integer", "example": 1},
                "queue_len": {"type": "integer", "example": 3},
                "rejected_total": {"type": "integer", "example": 0},
                "server_time_unix": {"type": "integer", "example": 1700000000},
                "state": {"type": "string", "example": "ready"},
                "uptime_seconds": {"type": "integer", "example": 3600}
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
	Title:            "talion API",
	Description:      "HTTP API for single-model text generation.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
