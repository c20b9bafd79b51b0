package network

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// HeaderSize is the fixed frame header: message id and payload length, both
// big-endian uint16.
const HeaderSize = 4

var ErrPayloadTooLarge = errors.New("payload exceeds 65535 bytes")

type Packet struct {
	MsgID  uint16
	Data   []byte
	Length uint16
}

// EncodePacket 封包: 2字节消息ID + 2字节数据长度 + 数据
func EncodePacket(msgID uint16, data []byte) ([]byte, error) {
	if len(data) > math.MaxUint16 {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, 0, HeaderSize+len(data))
	frame = binary.BigEndian.AppendUint16(frame, msgID)
	frame = binary.BigEndian.AppendUint16(frame, uint16(len(data)))
	return append(frame, data...), nil
}

// DecodePacket 解包. Bytes past the declared length are ignored.
func DecodePacket(frame []byte) (*Packet, error) {
	if len(frame) < HeaderSize {
		return nil, io.ErrShortBuffer
	}
	p := &Packet{
		MsgID:  binary.BigEndian.Uint16(frame),
		Length: binary.BigEndian.Uint16(frame[2:]),
	}
	end := HeaderSize + int(p.Length)
	if len(frame) < end {
		return nil, io.ErrShortBuffer
	}
	p.Data = frame[HeaderSize:end]
	return p, nil
}
