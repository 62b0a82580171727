// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used by the table feed.
const (
	BadSubprotocolError = 3000 // client did not ask for the "table" subprotocol
	SlowConsumerError   = 3004 // subscriber fell too far behind the event stream
)
