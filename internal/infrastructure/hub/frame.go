package hub

import "github.com/gorilla/websocket"

// FrameType is the WebSocket data opcode of a frame.
type FrameType int

const (
	FrameText   FrameType = websocket.TextMessage
	FrameBinary FrameType = websocket.BinaryMessage
)

func (t FrameType) String() string {
	switch t {
	case FrameText:
		return "text"
	case FrameBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is a single relayed message. Payload is shared between every
// recipient and must not be modified after the frame is created.
type Frame struct {
	Type    FrameType
	Payload []byte
}

func TextFrame(s string) Frame {
	return Frame{Type: FrameText, Payload: []byte(s)}
}

func BinaryFrame(b []byte) Frame {
	return Frame{Type: FrameBinary, Payload: b}
}

// frameFromMessage converts a gorilla message type; control frames are
// handled by the library and never reach here.
func frameFromMessage(messageType int, data []byte) (Frame, bool) {
	switch messageType {
	case websocket.TextMessage:
		return Frame{Type: FrameText, Payload: data}, true
	case websocket.BinaryMessage:
		return Frame{Type: FrameBinary, Payload: data}, true
	default:
		return Frame{}, false
	}
}
