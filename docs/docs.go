// Package docs holds the swagger document served under /docs.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "schemes": {{ marshal .Schemes }},
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Liveness",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Server is running"}
                }
            }
        },
        "/health/detailed": {
            "get": {
                "tags": ["Health"],
                "summary": "Blob backend and configuration status",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Backend reachable and token configured"},
                    "503": {"description": "Backend unreachable or token missing"}
                }
            }
        },
        "/ready": {
            "get": {
                "tags": ["Health"],
                "summary": "Readiness",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "Ready to serve"},
                    "503": {"description": "Blob backend not ready"}
                }
            }
        },
        "/api/blob": {
            "get": {
                "tags": ["blob"],
                "summary": "Read the dataset",
                "description": "Returns every task and event from the newest stored document. An empty store yields empty arrays.",
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "Current dataset", "schema": {"$ref": "#/definitions/Dataset"}},
                    "500": {"description": "Missing token or backend failure", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "tags": ["blob"],
                "summary": "Replace the dataset",
                "description": "Stores the posted tasks and events as the new current document. Both arrays are required.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {
                        "in": "body",
                        "name": "dataset",
                        "required": true,
                        "schema": {"$ref": "#/definitions/Dataset"}
                    }
                ],
                "responses": {
                    "200": {"description": "Stored", "schema": {"$ref": "#/definitions/SaveResponse"}},
                    "400": {"description": "Invalid data format", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Missing token or backend failure", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "Task": {
            "type": "object",
            "required": ["id", "title", "priority"],
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "description": {"type": "string"},
                "dueDate": {"type": "string", "format": "date-time", "x-nullable": true},
                "completed": {"type": "boolean"},
                "priority": {"type": "string", "enum": ["low", "medium", "high"]},
                "tags": {"type": "array", "items": {"type": "string"}}
            }
        },
        "Event": {
            "type": "object",
            "required": ["id", "title", "start", "end"],
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "start": {"type": "string", "format": "date-time"},
                "end": {"type": "string", "format": "date-time"},
                "description": {"type": "string"},
                "allDay": {"type": "boolean"}
            }
        },
        "Dataset": {
            "type": "object",
            "required": ["tasks", "events"],
            "properties": {
                "tasks": {"type": "array", "items": {"$ref": "#/definitions/Task"}},
                "events": {"type": "array", "items": {"$ref": "#/definitions/Event"}}
            }
        },
        "SaveResponse": {
            "type": "object",
            "properties": {
                "url": {"type": "string"}
            }
        },
        "ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header",
            "description": "Required only when AUTH_SECRET is set. Type 'Bearer' followed by a space and the token"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "Scheduler API",
	Description:      "Persistence endpoint for the scheduler's tasks and events",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
