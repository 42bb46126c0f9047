package bridge

// Conn is the subset of a websocket connection the bridge needs. Both
// server-accepted legs and the dialed model leg satisfy it via
// *websocket.Conn; tests substitute fakes.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}
