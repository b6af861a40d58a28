// Package apidocs holds the API description generated from the annotation
// stubs in internal/viewer/routes.
//
//go:generate swag init --generalInfo ../viewer/routes/openapi_annotations.go --dir ../viewer/routes,../storage,../player,../voice --output . --outputTypes go --packageName apidocs
package apidocs

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
        "/api/books": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Book metadata index, newest first (never includes text)",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/storage.BookMeta"}}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Normalize and store a new book",
                "parameters": [
                    {"description": "Book", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/routes.bookCreateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/storage.Book"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/books/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "One book including its text",
                "parameters": [{"type": "string", "description": "Book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/storage.Book"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            },
            "delete": {
                "tags": ["books"],
                "summary": "Delete a book and its cached audio",
                "parameters": [{"type": "string", "description": "Book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/books/{id}/audio": {
            "get": {
                "produces": ["audio/mpeg"],
                "tags": ["books"],
                "summary": "Cached speech for a book (supports Range)",
                "parameters": [{"type": "string", "description": "Book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/books/{id}/html": {
            "get": {
                "produces": ["text/html"],
                "tags": ["books"],
                "summary": "Reader page with the book rendered as markdown",
                "parameters": [{"type": "string", "description": "Book id", "name": "id", "in": "path", "required": true}],
                "responses": {"200": {"description": "HTML page", "schema": {"type": "string"}}}
            }
        },
        "/api/books/{id}/open": {
            "post": {
                "produces": ["application/json"],
                "tags": ["books"],
                "summary": "Load a book into the player (cached audio or live synthesis)",
                "parameters": [{"type": "string", "description": "Book id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/player/state": {
            "get": {
                "produces": ["application/json"],
                "tags": ["player"],
                "summary": "Player snapshot, discussion mode and current book",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/api/player/control": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["player"],
                "summary": "Transport control",
                "parameters": [
                    {"description": "Action", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/routes.playerControlRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/player.State"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/events": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["player"],
                "summary": "SSE stream: state snapshot, then player and mode events",
                "responses": {"200": {"description": "SSE stream", "schema": {"type": "string"}}}
            }
        },
        "/api/discuss/enter": {
            "post": {
                "produces": ["application/json"],
                "tags": ["discuss"],
                "summary": "Pause reading and connect to the AI peer",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}},
                    "403": {"description": "Microphone denied", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "502": {"description": "Credential or negotiation failure", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/discuss/exit": {
            "post": {
                "produces": ["application/json"],
                "tags": ["discuss"],
                "summary": "Disconnect and resume reading where it paused",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/api/discuss/instruction": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["discuss"],
                "summary": "Ask the AI peer to respond",
                "parameters": [
                    {"description": "Instruction", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/routes.instructionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}},
                    "409": {"description": "Channel not open", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/discuss/state": {
            "get": {
                "produces": ["application/json"],
                "tags": ["discuss"],
                "summary": "Discussion mode and session states",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/api/discuss/ws": {
            "get": {
                "tags": ["discuss"],
                "summary": "WebSocket relay of session events; accepts instruction and exit frames",
                "responses": {"101": {"description": "Switching Protocols", "schema": {"type": "string"}}}
            }
        },
        "/session": {
            "post": {
                "produces": ["application/json"],
                "tags": ["broker"],
                "summary": "Issue an ephemeral realtime credential",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/voice.SessionResponse"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/tts": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["audio/mpeg"],
                "tags": ["broker"],
                "summary": "Proxy text to the speech provider and stream the audio",
                "parameters": [
                    {"description": "Text to speak", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/routes.instructionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/routes.errorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/routes.errorResponse"}}
                }
            }
        },
        "/api/openapi.json": {
            "get": {
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "This API description (generated by swaggo/swag)",
                "responses": {"200": {"description": "OK", "schema": {"type": "object", "additionalProperties": true}}}
            }
        },
        "/api/logs": {
            "get": {
                "produces": ["application/json"],
                "tags": ["logs"],
                "summary": "Snapshot of recent process log lines",
                "responses": {"200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object", "additionalProperties": {"type": "string"}}}}}
            }
        },
        "/api/logs/stream": {
            "get": {
                "produces": ["text/event-stream"],
                "tags": ["logs"],
                "summary": "SSE stream of new process log lines",
                "responses": {"200": {"description": "SSE stream", "schema": {"type": "string"}}}
            }
        },
        "/api/logs/client": {
            "post": {
                "consumes": ["application/json"],
                "tags": ["logs"],
                "summary": "Sink for browser-side log messages",
                "parameters": [
                    {"description": "Log entry", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/routes.clientLogRequest"}}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        }
    },
    "definitions": {
        "player.State": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "enum": ["idle", "preparing", "ready", "playing", "paused", "ended", "failed"]},
                "current_time": {"type": "number"},
                "duration": {"type": "number"},
                "estimated_duration": {"type": "number"},
                "buffering": {"type": "number"},
                "resource": {"type": "integer"},
                "error": {"type": "string"}
            }
        },
        "routes.bookCreateRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string", "example": "The Raven"},
                "text": {"type": "string", "example": "Once upon a midnight dreary..."}
            }
        },
        "routes.clientLogRequest": {
            "type": "object",
            "properties": {
                "level": {"type": "string", "example": "warn"},
                "message": {"type": "string", "example": "audio element stalled"}
            }
        },
        "routes.errorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "book not found"}
            }
        },
        "routes.instructionRequest": {
            "type": "object",
            "properties": {
                "text": {"type": "string", "example": "Summarize the last paragraph."}
            }
        },
        "routes.playerControlRequest": {
            "type": "object",
            "properties": {
                "action": {"type": "string", "enum": ["play", "pause", "seek", "forward", "back", "unload"], "example": "seek"},
                "percent": {"type": "number", "example": 42},
                "seconds": {"type": "number", "example": 30}
            }
        },
        "storage.Book": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "text": {"type": "string"},
                "audioUrl": {"type": "string"},
                "lengthSeconds": {"type": "number"},
                "createdAt": {"type": "string"},
                "source": {"type": "string"}
            }
        },
        "storage.BookMeta": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "words": {"type": "integer"},
                "lengthSeconds": {"type": "number"},
                "hasAudio": {"type": "boolean"},
                "createdAt": {"type": "string"}
            }
        },
        "voice.SessionResponse": {
            "type": "object",
            "properties": {
                "client_secret": {
                    "type": "object",
                    "properties": {
                        "value": {"type": "string"},
                        "expires_at": {"type": "integer"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "echo-reader API",
	Description:      "Local control surface for streaming book playback and voice discussions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// Doc returns the rendered API description.
func Doc() (string, error) {
	return swag.ReadDoc(SwaggerInfo.InstanceName())
}
