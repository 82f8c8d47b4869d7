package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "CityPulse Backend",
    "description": "Civic issue reports enriched by an AI assistant",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/health": {
      "get": {"tags": ["health"], "summary": "Health check", "produces": ["application/json"],
        "responses": {"200": {"description": "OK"}, "503": {"description": "Database unavailable"}}}
    },
    "/reports": {
      "get": {"tags": ["reports"], "summary": "List reports", "produces": ["application/json"],
        "parameters": [
          {"name": "status", "in": "query", "type": "string", "enum": ["New", "In Progress", "Resolved", "Waiting for user follow-up"]},
          {"name": "category", "in": "query", "type": "string"}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown filter"}}},
      "post": {"tags": ["reports"], "summary": "Submit a report", "consumes": ["multipart/form-data"], "produces": ["application/json"],
        "parameters": [
          {"name": "title", "in": "formData", "type": "string", "required": true},
          {"name": "description", "in": "formData", "type": "string", "required": true},
          {"name": "address", "in": "formData", "type": "string", "required": true},
          {"name": "city", "in": "formData", "type": "string", "required": true},
          {"name": "latitude", "in": "formData", "type": "number"},
          {"name": "longitude", "in": "formData", "type": "number"},
          {"name": "images", "in": "formData", "type": "file", "required": true, "description": "1 to 3 images"}
        ],
        "responses": {"201": {"description": "Created"}, "400": {"description": "Validation failed"}, "429": {"description": "Rate limited"}, "502": {"description": "Report analysis failed"}}}
    },
    "/reports/{id}": {
      "get": {"tags": ["reports"], "summary": "Get a report",
        "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}},
      "put": {"tags": ["reports"], "summary": "Update a report", "consumes": ["application/json"],
        "parameters": [
          {"name": "id", "in": "path", "type": "string", "required": true},
          {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "required": ["report_id"],
            "properties": {"report_id": {"type": "string"}, "title": {"type": "string"}, "description": {"type": "string"},
              "status": {"type": "string"}, "address": {"type": "string"}, "city": {"type": "string"},
              "latitude": {"type": "number"}, "longitude": {"type": "number"}}}}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Validation failed or id mismatch"}, "404": {"description": "Not found"}}},
      "delete": {"tags": ["reports"], "summary": "Delete a report",
        "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
        "responses": {"204": {"description": "Deleted"}, "404": {"description": "Not found"}}}
    },
    "/reports/{id}/status": {
      "patch": {"tags": ["reports"], "summary": "Change report status", "consumes": ["application/json"],
        "parameters": [
          {"name": "id", "in": "path", "type": "string", "required": true},
          {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "required": ["status"], "properties": {"status": {"type": "string"}}}}
        ],
        "responses": {"200": {"description": "OK"}, "400": {"description": "Unknown status"}, "404": {"description": "Not found"}}}
    },
    "/reports/{id}/events": {
      "get": {"tags": ["reports"], "summary": "Report with its events",
        "parameters": [{"name": "id", "in": "path", "type": "string", "required": true}],
        "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}}
    }
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
