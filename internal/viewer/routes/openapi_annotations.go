// Package routes serves the JSON, SSE and WebSocket API. This file holds the
// swaggo annotation stubs.
// Each function below is a documentation stub only. The handler logic lives
// in the closures passed to handlePost/handleGet/mux.HandleFunc.
// Run `go generate ./internal/apidocs` to regenerate the API description.
package routes

// ── Request / Response types ─────────────────────────────────────────────────

// bookCreateRequest is the body for POST /api/books.
type bookCreateRequest struct {
	Title string `json:"title,omitempty" example:"The Raven"`
	Text  string `json:"text"            example:"Once upon a midnight dreary..."`
}

// playerControlRequest is the body for POST /api/player/control.
type playerControlRequest struct {
	Action  string  `json:"action"            example:"seek" enums:"play,pause,seek,forward,back,unload"`
	Percent float64 `json:"percent,omitempty" example:"42"`
	Seconds float64 `json:"seconds,omitempty" example:"30"`
}

// instructionRequest is the body for POST /api/discuss/instruction.
type instructionRequest struct {
	Text string `json:"text" example:"Summarize the last paragraph."`
}

// clientLogRequest is the body for POST /api/logs/client.
type clientLogRequest struct {
	Level   string `json:"level"   example:"warn"`
	Message string `json:"message" example:"audio element stalled"`
}

// errorResponse is the body of every error.
type errorResponse struct {
	Error string `json:"error" example:"book not found"`
}

// ── Books ────────────────────────────────────────────────────────────────────

// swagBooksList is a documentation stub for GET /api/books.
//
//	@Summary	Book metadata index, newest first (never includes text)
//	@Tags		books
//	@Produce	json
//	@Success	200	{array}	storage.BookMeta
//	@Router		/api/books [get]
func swagBooksList() {}

// swagBooksCreate is a documentation stub for POST /api/books.
//
//	@Summary	Normalize and store a new book
//	@Tags		books
//	@Accept		json
//	@Produce	json
//	@Param		body	body		bookCreateRequest	true	"Book"
//	@Success	201		{object}	storage.Book
//	@Failure	400		{object}	errorResponse
//	@Router		/api/books [post]
func swagBooksCreate() {}

// swagBookGet is a documentation stub for GET /api/books/{id}.
//
//	@Summary	One book including its text
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"Book id"
//	@Success	200	{object}	storage.Book
//	@Failure	404	{object}	errorResponse
//	@Router		/api/books/{id} [get]
func swagBookGet() {}

// swagBookDelete is a documentation stub for DELETE /api/books/{id}.
//
//	@Summary	Delete a book and its cached audio
//	@Tags		books
//	@Param		id	path		string	true	"Book id"
//	@Success	200	{object}	map[string]string
//	@Failure	404	{object}	errorResponse
//	@Router		/api/books/{id} [delete]
func swagBookDelete() {}

// swagBookAudio is a documentation stub for GET /api/books/{id}/audio.
//
//	@Summary	Cached speech for a book (supports Range)
//	@Tags		books
//	@Produce	audio/mpeg
//	@Param		id	path		string	true	"Book id"
//	@Success	200	{file}		binary
//	@Failure	404	{object}	errorResponse
//	@Router		/api/books/{id}/audio [get]
func swagBookAudio() {}

// swagBookHTML is a documentation stub for GET /api/books/{id}/html.
//
//	@Summary	Reader page with the book rendered as markdown
//	@Tags		books
//	@Produce	html
//	@Param		id	path	string	true	"Book id"
//	@Success	200	{string}	string	"HTML page"
//	@Router		/api/books/{id}/html [get]
func swagBookHTML() {}

// swagBookOpen is a documentation stub for POST /api/books/{id}/open.
//
//	@Summary	Load a book into the player (cached audio or live synthesis)
//	@Tags		books
//	@Produce	json
//	@Param		id	path		string	true	"Book id"
//	@Success	200	{object}	map[string]any
//	@Failure	404	{object}	errorResponse
//	@Failure	409	{object}	errorResponse
//	@Failure	429	{object}	errorResponse
//	@Failure	502	{object}	errorResponse
//	@Router		/api/books/{id}/open [post]
func swagBookOpen() {}

// ── Player ───────────────────────────────────────────────────────────────────

// swagPlayerState is a documentation stub for GET /api/player/state.
//
//	@Summary	Player snapshot, discussion mode and current book
//	@Tags		player
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/api/player/state [get]
func swagPlayerState() {}

// swagPlayerControl is a documentation stub for POST /api/player/control.
//
//	@Summary	Transport control
//	@Tags		player
//	@Accept		json
//	@Produce	json
//	@Param		body	body		playerControlRequest	true	"Action"
//	@Success	200		{object}	player.State
//	@Failure	409		{object}	errorResponse
//	@Router		/api/player/control [post]
func swagPlayerControl() {}

// swagEvents is a documentation stub for GET /api/events.
//
//	@Summary	SSE stream: state snapshot, then player and mode events
//	@Tags		player
//	@Produce	text/event-stream
//	@Success	200	{string}	string	"SSE stream"
//	@Router		/api/events [get]
func swagEvents() {}

// ── Discussion ───────────────────────────────────────────────────────────────

// swagDiscussEnter is a documentation stub for POST /api/discuss/enter.
//
//	@Summary	Pause reading and connect to the AI peer
//	@Tags		discuss
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Failure	403	{object}	errorResponse	"Microphone denied"
//	@Failure	409	{object}	errorResponse
//	@Failure	502	{object}	errorResponse	"Credential or negotiation failure"
//	@Router		/api/discuss/enter [post]
func swagDiscussEnter() {}

// swagDiscussExit is a documentation stub for POST /api/discuss/exit.
//
//	@Summary	Disconnect and resume reading where it paused
//	@Tags		discuss
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/api/discuss/exit [post]
func swagDiscussExit() {}

// swagDiscussInstruction is a documentation stub for POST /api/discuss/instruction.
//
//	@Summary	Ask the AI peer to respond
//	@Tags		discuss
//	@Accept		json
//	@Produce	json
//	@Param		body	body		instructionRequest	true	"Instruction"
//	@Success	200		{object}	map[string]string
//	@Failure	409		{object}	errorResponse	"Channel not open"
//	@Router		/api/discuss/instruction [post]
func swagDiscussInstruction() {}

// swagDiscussState is a documentation stub for GET /api/discuss/state.
//
//	@Summary	Discussion mode and session states
//	@Tags		discuss
//	@Produce	json
//	@Success	200	{object}	map[string]any
//	@Router		/api/discuss/state [get]
func swagDiscussState() {}

// swagDiscussWS is a documentation stub for GET /api/discuss/ws.
//
//	@Summary	WebSocket relay of session events; accepts instruction and exit frames
//	@Tags		discuss
//	@Success	101	{string}	string	"Switching Protocols"
//	@Router		/api/discuss/ws [get]
func swagDiscussWS() {}

// ── Broker ───────────────────────────────────────────────────────────────────

// swagSession is a documentation stub for POST /session.
//
//	@Summary	Issue an ephemeral realtime credential
//	@Tags		broker
//	@Produce	json
//	@Success	200	{object}	voice.SessionResponse
//	@Failure	429	{object}	errorResponse
//	@Failure	500	{object}	errorResponse
//	@Router		/session [post]
func swagSession() {}

// swagTTS is a documentation stub for POST /api/tts.
//
//	@Summary	Proxy text to the speech provider and stream the audio
//	@Tags		broker
//	@Accept		json
//	@Produce	audio/mpeg
//	@Param		body	body	instructionRequest	true	"Text to speak"
//	@Success	200	{file}		binary
//	@Failure	400	{object}	errorResponse
//	@Failure	500	{object}	errorResponse
//	@Router		/api/tts [post]
func swagTTS() {}

// ── Logs ─────────────────────────────────────────────────────────────────────

// swagOpenAPISpec is a documentation stub for GET /api/openapi.json.
//
//	@Summary	This API description (generated by swaggo/swag)
//	@Tags		logs
//	@Produce	application/json
//	@Success	200	{object}	map[string]any
//	@Router		/api/openapi.json [get]
func swagOpenAPISpec() {}

// swagLogsSnapshot is a documentation stub for GET /api/logs.
//
//	@Summary	Snapshot of recent process log lines
//	@Tags		logs
//	@Produce	json
//	@Success	200	{array}	map[string]string
//	@Router		/api/logs [get]
func swagLogsSnapshot() {}

// swagLogsStream is a documentation stub for GET /api/logs/stream.
//
//	@Summary	SSE stream of new process log lines
//	@Tags		logs
//	@Produce	text/event-stream
//	@Success	200	{string}	string	"SSE stream"
//	@Router		/api/logs/stream [get]
func swagLogsStream() {}

// swagLogsClient is a documentation stub for POST /api/logs/client.
//
//	@Summary	Sink for browser-side log messages
//	@Tags		logs
//	@Accept		json
//	@Param		body	body	clientLogRequest	true	"Log entry"
//	@Success	204
//	@Router		/api/logs/client [post]
func swagLogsClient() {}
