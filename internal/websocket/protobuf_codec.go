package websocket

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/gorilla/websocket"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// 二进制帧消息ID
const (
	MsgIDConnected uint16 = 1
	MsgIDEvent     uint16 = 2
	MsgIDClosed    uint16 = 3
	MsgIDError     uint16 = 4
	MsgIDPing      uint16 = 5
	MsgIDPong      uint16 = 6
)

var msgIDs = map[string]uint16{
	MessageTypeConnected: MsgIDConnected,
	MessageTypeEvent:     MsgIDEvent,
	MessageTypeClosed:    MsgIDClosed,
	MessageTypeError:     MsgIDError,
	MessageTypePing:      MsgIDPing,
	MessageTypePong:      MsgIDPong,
}

// ProtobufCodec 二进制帧，消息体为 google.protobuf.Struct
type ProtobufCodec struct{}

// NewProtobufCodec 创建新的protobuf编解码器
func NewProtobufCodec() *ProtobufCodec {
	return &ProtobufCodec{}
}

func (c *ProtobufCodec) Name() string { return "protobuf" }

func (c *ProtobufCodec) FrameType() int { return websocket.BinaryMessage }

// Encode 消息转为 Struct 后编码
func (c *ProtobufCodec) Encode(msg *Message) ([]byte, error) {
	msgID, ok := msgIDs[msg.Type]
	if !ok {
		return nil, fmt.Errorf("%w: type %q", ErrInvalidMessage, msg.Type)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	st, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("build struct failed: %w", err)
	}
	return c.EncodeFrame(msgID, st)
}

// Decode 解码为消息
func (c *ProtobufCodec) Decode(data []byte) (*Message, error) {
	msgID, body, err := c.DecodeFrame(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	st := &structpb.Struct{}
	if err := proto.Unmarshal(body, st); err != nil {
		return nil, fmt.Errorf("%w: unmarshal protobuf failed: %v", ErrInvalidMessage, err)
	}
	raw, err := json.Marshal(st.AsMap())
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		for t, id := range msgIDs {
			if id == msgID {
				msg.Type = t
			}
		}
	}
	if msgIDs[msg.Type] != msgID {
		return nil, fmt.Errorf("%w: message id %d does not match type %q", ErrInvalidMessage, msgID, msg.Type)
	}
	return &msg, nil
}

// EncodeFrame 编码protobuf消息为二进制格式
// 格式: [4字节长度][2字节消息ID][protobuf数据]
func (c *ProtobufCodec) EncodeFrame(msgID uint16, msg proto.Message) ([]byte, error) {
	data, err := proto.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal protobuf failed: %w", err)
	}

	totalLen := 2 + len(data)
	buf := bytes.NewBuffer(make([]byte, 0, 4+totalLen))
	if err := binary.Write(buf, binary.BigEndian, uint32(totalLen)); err != nil {
		return nil, fmt.Errorf("write length failed: %w", err)
	}
	if err := binary.Write(buf, binary.BigEndian, msgID); err != nil {
		return nil, fmt.Errorf("write message ID failed: %w", err)
	}
	buf.Write(data)
	return buf.Bytes(), nil
}

// DecodeFrame 解码二进制数据为消息ID和protobuf数据
func (c *ProtobufCodec) DecodeFrame(data []byte) (uint16, []byte, error) {
	if len(data) < 6 {
		return 0, nil, fmt.Errorf("data too short: %d bytes", len(data))
	}

	length := binary.BigEndian.Uint32(data[:4])
	if int(length)+4 != len(data) {
		return 0, nil, fmt.Errorf("length mismatch: expected %d, got %d", length+4, len(data))
	}
	msgID := binary.BigEndian.Uint16(data[4:6])
	return msgID, data[6:], nil
}
