package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Church Attendance API",
        "description": "Attendance regularity statistics and tribe/department conflict resolution",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Attendance", "description": "Regularity statistics per tribe, department or honor family"},
        {"name": "Conflicts", "description": "Disagreeing tribe and department attendance reports"},
        {"name": "Exports", "description": "Signed downloads of generated statistics files"}
    ],
    "paths": {
        "/attendance/statistics": {
            "get": {
                "tags": ["Attendance"],
                "summary": "Attendance regularity statistics",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "entity", "in": "query", "required": true, "type": "string", "enum": ["TRIBE", "DEPARTMENT", "HONOR_FAMILY"]},
                    {"name": "entityId", "in": "query", "required": true, "type": "string"},
                    {"name": "month", "in": "query", "required": true, "type": "string", "description": "YYYY-MM"},
                    {"name": "kind", "in": "query", "type": "string", "enum": ["CHURCH", "SERVICE", "MEETING"]},
                    {"name": "breakdown", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Entity outside caller responsibility", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/statistics/export": {
            "post": {
                "tags": ["Attendance"],
                "summary": "Export attendance regularity statistics",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportStatisticsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/exports/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download an exported statistics file via signed token",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File", "schema": {"type": "file"}},
                    "403": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Export no longer available", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/conflicts": {
            "get": {
                "tags": ["Conflicts"],
                "summary": "List open attendance conflicts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "memberId", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string", "description": "YYYY-MM-DD"},
                    {"name": "to", "in": "query", "type": "string", "description": "YYYY-MM-DD"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/conflicts/resolve": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Resolve an attendance conflict",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveConflictRequest"}}
                ],
                "responses": {
                    "204": {"description": "Resolved"},
                    "400": {"description": "Values disagree or payload invalid", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Conflict not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/attendance/conflicts/sweep": {
            "post": {
                "tags": ["Conflicts"],
                "summary": "Queue a conflict detection sweep",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Sweep queue unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ExportStatisticsRequest": {
            "type": "object",
            "required": ["entity", "entity_id", "month", "format"],
            "properties": {
                "entity": {"type": "string"},
                "entity_id": {"type": "string"},
                "month": {"type": "string"},
                "kind": {"type": "string"},
                "breakdown": {"type": "boolean"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            }
        },
        "ResolveConflictRequest": {
            "type": "object",
            "required": ["member_id", "tribe_fact_id", "department_fact_id", "date", "tribe_value", "department_value"],
            "properties": {
                "member_id": {"type": "string"},
                "tribe_fact_id": {"type": "string"},
                "department_fact_id": {"type": "string"},
                "date": {"type": "string"},
                "tribe_value": {"type": "boolean"},
                "department_value": {"type": "boolean"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
