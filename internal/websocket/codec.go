package websocket

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
)

// Codec 事件流消息编解码
type Codec interface {
	Name() string
	// FrameType websocket.TextMessage 或 websocket.BinaryMessage
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// CodecByName 按查询参数选择编码，空值为 JSON
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json", "text":
		return JSONCodec{}, nil
	case "binary", "protobuf", "pb":
		return NewProtobufCodec(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

// JSONCodec 文本帧，每帧一条 JSON 消息
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return nil, ErrInvalidMessage
	}
	return &msg, nil
}
