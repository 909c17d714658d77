// Package docs registers the OpenAPI description served at /docs.
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
        "/api/v1/send-push": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Verifies the caller, checks building membership and role, and delivers the notification to every opted-in device in the building in batches of at most 100. Partial upstream failures are reported per batch with status 200.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["push"],
                "summary": "Send a building push notification",
                "parameters": [
                    {
                        "description": "Notification",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.SendPushRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/fanout.Summary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "405": {"description": "Method Not Allowed", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/api/v1/push-tokens": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Upserts the caller's device token; registering the same token twice updates its device type.",
                "consumes": ["application/json"],
                "tags": ["tokens"],
                "summary": "Register a device push token",
                "parameters": [
                    {
                        "description": "Device token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.PushTokenRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "description": "Deletes the caller's device token. Unknown tokens are ignored.",
                "consumes": ["application/json"],
                "tags": ["tokens"],
                "summary": "Unregister a device push token",
                "parameters": [
                    {
                        "description": "Device token",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/handler.PushTokenRequest"}
                    }
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/respond.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "description": "Returns basic health status and timestamp.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/health/db": {
            "get": {
                "description": "Verifies Postgres connectivity.",
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Database health check",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object", "additionalProperties": true}}
                }
            }
        }
    },
    "definitions": {
        "handler.SendPushRequest": {
            "type": "object",
            "properties": {
                "type": {"type": "string", "enum": ["issue_created", "issue_status", "announcement"], "example": "issue_created"},
                "building_id": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"},
                "data": {"type": "object", "additionalProperties": true},
                "exclude_user_id": {"type": "string"}
            }
        },
        "handler.PushTokenRequest": {
            "type": "object",
            "properties": {
                "token": {"type": "string", "example": "ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"},
                "device_type": {"type": "string", "example": "ios"}
            }
        },
        "fanout.Outcome": {
            "type": "object",
            "properties": {
                "batch": {"type": "integer"},
                "recipients": {"type": "integer"},
                "status": {"type": "integer"},
                "body": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "fanout.Summary": {
            "type": "object",
            "properties": {
                "ok": {"type": "boolean"},
                "sent": {"type": "integer"},
                "batches": {"type": "integer"},
                "results": {"type": "array", "items": {"$ref": "#/definitions/fanout.Outcome"}},
                "incomplete": {"type": "boolean"}
            }
        },
        "respond.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "detail": {"type": "string"}
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Building Push Fan-out API",
	Description:      "Fans building events (new issues, status changes, announcements) out to residents' devices via Expo push.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
