package solana

import "errors"

// ErrConnClosed is returned by WSConn operations after the connection has terminated.
var ErrConnClosed = errors.New("websocket connection closed")

// LogsFilter defines subscription filter for logs.
type LogsFilter struct {
	// Mentions filters logs that mention any of these program IDs.
	Mentions []string
	// Commitment defaults to processed; the sniper races the leader.
	Commitment Commitment
}

// LogNotification represents a logs subscription message.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
	// Raw is the undecoded notification frame.
	Raw []byte
}
