package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "MAAP API",
        "description": "Check-ins, MAAP change snapshots and stats rollups",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http", "https"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "CheckIns", "description": "Position, assignment and aspiration check-ins"},
        {"name": "Snapshots", "description": "MAAP change snapshot capture and execution"},
        {"name": "Stats", "description": "Rollups over finalized check-ins and feedback"}
    ],
    "paths": {
        "/check-ins/open": {
            "post": {
                "tags": ["CheckIns"],
                "summary": "Open or fetch the open check-in for a teammate and item",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/OpenCheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "Open check-in", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-ins/history": {
            "get": {
                "tags": ["CheckIns"],
                "summary": "List finalized check-ins",
                "parameters": [
                    {"name": "teammate_id", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string", "enum": ["position", "assignment", "aspiration"]},
                    {"name": "item_id", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Finalized check-ins, newest first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-ins/{id}": {
            "get": {
                "tags": ["CheckIns"],
                "summary": "Get a check-in",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Check-in", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-ins/{id}/sides/{side}": {
            "put": {
                "tags": ["CheckIns"],
                "summary": "Save the employee or manager side",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "side", "in": "path", "required": true, "type": "string", "enum": ["employee", "manager"]},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SaveSideRequest"}}
                ],
                "responses": {
                    "200": {"description": "Updated check-in", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-ins/{id}/ready": {
            "get": {
                "tags": ["CheckIns"],
                "summary": "Report whether both sides are complete",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Readiness", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/check-ins/{id}/finalize": {
            "post": {
                "tags": ["CheckIns"],
                "summary": "Record the official assessment",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/FinalizeCheckInRequest"}}
                ],
                "responses": {
                    "200": {"description": "Finalized check-in", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Not ready or already finalized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/snapshots": {
            "post": {
                "tags": ["Snapshots"],
                "summary": "Capture a change snapshot",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateSnapshotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Pending snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid edits", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Unresolvable reference", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/snapshots/{id}": {
            "get": {
                "tags": ["Snapshots"],
                "summary": "Get a change snapshot",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Snapshot", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/snapshots/{id}/execute": {
            "post": {
                "tags": ["Snapshots"],
                "summary": "Execute a pending snapshot",
                "description": "Item failures roll back every change and respond 422 with the itemised result.",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Executed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the creator", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already processed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "Item failures", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/snapshots/{id}/acknowledge": {
            "post": {
                "tags": ["Snapshots"],
                "summary": "Acknowledge a snapshot as its subject",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "Acknowledged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already acknowledged", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teammates/{id}/snapshots": {
            "get": {
                "tags": ["Snapshots"],
                "summary": "List a teammate's snapshots",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "change_type", "in": "query", "type": "string"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Snapshots, newest first", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/stats": {
            "get": {
                "tags": ["Stats"],
                "summary": "Feedback, participation, rating, weekly and team rollups",
                "parameters": [
                    {"name": "kind", "in": "query", "type": "string", "enum": ["position", "assignment", "aspiration"]},
                    {"name": "organization_id", "in": "query", "type": "string"},
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Summary; meta.cache_hit reports cache use", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/stats/system": {
            "get": {
                "tags": ["Stats"],
                "summary": "Service instrumentation snapshot",
                "responses": {
                    "200": {"description": "Metrics", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "OpenCheckInRequest": {
            "type": "object",
            "required": ["kind", "teammate_id", "item_id"],
            "properties": {
                "kind": {"type": "string", "enum": ["position", "assignment", "aspiration"]},
                "teammate_id": {"type": "string"},
                "item_id": {"type": "string"}
            }
        },
        "SaveSideRequest": {
            "type": "object",
            "properties": {
                "rating": {"type": "string"},
                "notes": {"type": "string"},
                "mark_complete": {"type": "boolean"}
            }
        },
        "FinalizeCheckInRequest": {
            "type": "object",
            "required": ["final_rating"],
            "properties": {
                "final_rating": {"type": "string"},
                "shared_notes": {"type": "string"}
            }
        },
        "CreateSnapshotRequest": {
            "type": "object",
            "required": ["teammate_id", "change_type", "reason"],
            "properties": {
                "teammate_id": {"type": "string"},
                "organization_id": {"type": "string"},
                "change_type": {"type": "string", "enum": ["assignment_management", "position_tenure", "milestone_management", "aspiration_management", "exception"]},
                "reason": {"type": "string"},
                "edits": {
                    "type": "object",
                    "description": "Flat keys: tenure_<assignment>_anticipated_energy, check_in_<assignment>_<employee|manager>_<rating|notes|complete>, milestone_<ability>_level",
                    "additionalProperties": {}
                }
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "fields": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "window": {
                    "type": "object",
                    "properties": {
                        "limit": {"type": "integer"},
                        "offset": {"type": "integer"},
                        "count": {"type": "integer"}
                    }
                },
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
