package mqttbroker

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// MQTT 3.1.1 control packet types.
const (
	packetConnect     = 1
	packetConnAck     = 2
	packetPublish     = 3
	packetSubscribe   = 8
	packetSubAck      = 9
	packetUnsubscribe = 10
	packetUnsubAck    = 11
	packetPingReq     = 12
	packetPingResp    = 13
	packetDisconnect  = 14
)

// CONNACK return codes.
const (
	connAccepted          = 0x00
	connRefusedProtocol   = 0x01
	connRefusedIdentifier = 0x02
)

// CONNECT flag bits.
const (
	connectFlagReserved   = 1 << 0
	connectFlagCleanSess  = 1 << 1
	connectFlagWill       = 1 << 2
	connectFlagWillQoS    = 3 << 3
	connectFlagWillRetain = 1 << 5
	connectFlagPassword   = 1 << 6
	connectFlagUsername   = 1 << 7
)

const (
	protocolLevelMQTT311 = 4
	subAckFailure        = 0x80
	maxRemainingLength   = 268435455
)

// errPacketTooLarge is returned by readPacket before the body is read.
var errPacketTooLarge = errors.New("packet exceeds size limit")

type packet struct {
	header byte
	body   []byte
}

func (p packet) kind() byte { return p.header >> 4 }

// readPacket reads one control packet whose remaining length is at most limit.
func readPacket(r *bufio.Reader, limit int) (packet, error) {
	header, err := r.ReadByte()
	if err != nil {
		return packet{}, err
	}

	remaining, err := readVarInt(r)
	if err != nil {
		return packet{}, fmt.Errorf("read remaining length: %w", err)
	}
	if remaining > limit {
		return packet{}, fmt.Errorf("remaining length %d: %w", remaining, errPacketTooLarge)
	}

	body := make([]byte, remaining)
	if _, err := io.ReadFull(r, body); err != nil {
		return packet{}, fmt.Errorf("read packet body: %w", err)
	}
	return packet{header: header, body: body}, nil
}

type connectRequest struct {
	clientID     string
	keepAlive    uint16
	cleanSession bool
	username     string
}

func parseConnect(body []byte) (connectRequest, byte, error) {
	rd := bytesReader(body)

	protoName, err := rd.readString()
	if err != nil {
		return connectRequest{}, 0, fmt.Errorf("read protocol name: %w", err)
	}
	if protoName != "MQTT" {
		return connectRequest{}, connRefusedProtocol, fmt.Errorf("unsupported protocol %q", protoName)
	}

	level, err := rd.readByte()
	if err != nil {
		return connectRequest{}, 0, fmt.Errorf("read protocol level: %w", err)
	}
	if level != protocolLevelMQTT311 {
		return connectRequest{}, connRefusedProtocol, fmt.Errorf("unsupported protocol level %d", level)
	}

	flags, err := rd.readByte()
	if err != nil {
		return connectRequest{}, 0, fmt.Errorf("read connect flags: %w", err)
	}
	if flags&connectFlagReserved != 0 {
		return connectRequest{}, 0, fmt.Errorf("reserved connect flag set")
	}
	if flags&(connectFlagWill|connectFlagWillQoS|connectFlagWillRetain) != 0 {
		return connectRequest{}, 0, fmt.Errorf("will messages are not supported (flags %08b)", flags)
	}

	keepAlive, err := rd.readUint16()
	if err != nil {
		return connectRequest{}, 0, fmt.Errorf("read keepalive: %w", err)
	}

	clientID, err := rd.readString()
	if err != nil {
		return connectRequest{}, 0, fmt.Errorf("read client id: %w", err)
	}

	req := connectRequest{
		clientID:     clientID,
		keepAlive:    keepAlive,
		cleanSession: flags&connectFlagCleanSess != 0,
	}
	if clientID == "" && !req.cleanSession {
		return connectRequest{}, connRefusedIdentifier, fmt.Errorf("empty client id requires a clean session")
	}

	// Credentials are read so the packet is consumed but not checked.
	if flags&connectFlagUsername != 0 {
		if req.username, err = rd.readString(); err != nil {
			return connectRequest{}, 0, fmt.Errorf("read username: %w", err)
		}
	}
	if flags&connectFlagPassword != 0 {
		if _, err := rd.readString(); err != nil {
			return connectRequest{}, 0, fmt.Errorf("read password: %w", err)
		}
	}

	return req, connAccepted, nil
}

func buildConnAck(code byte) []byte {
	return []byte{packetConnAck << 4, 0x02, 0x00, code}
}

func parsePublish(header byte, body []byte) (PublishMessage, error) {
	qos := (header >> 1) & 0x03
	if qos != 0 {
		return PublishMessage{}, fmt.Errorf("unsupported qos %d", qos)
	}

	rd := bytesReader(body)
	topic, err := rd.readString()
	if err != nil {
		return PublishMessage{}, fmt.Errorf("read topic: %w", err)
	}
	if err := validTopic(topic); err != nil {
		return PublishMessage{}, err
	}

	return PublishMessage{Topic: topic, Payload: rd.readBytes(rd.remaining())}, nil
}

func buildPublishPacket(topic string, payload []byte) ([]byte, error) {
	topicLen := len(topic)
	if topicLen > 65535 {
		return nil, fmt.Errorf("topic too long")
	}

	remaining := 2 + topicLen + len(payload)
	if remaining > maxRemainingLength {
		return nil, fmt.Errorf("payload too large")
	}
	remainingBytes := encodeRemainingLength(remaining)

	buf := make([]byte, 0, 1+len(remainingBytes)+remaining)
	buf = append(buf, packetPublish<<4)
	buf = append(buf, remainingBytes...)
	buf = append(buf, byte(topicLen>>8), byte(topicLen&0xFF))
	buf = append(buf, topic...)
	buf = append(buf, payload...)
	return buf, nil
}

// parseSubscribe returns the packet id and requested filters.
func parseSubscribe(body []byte) (uint16, []string, error) {
	rd := bytesReader(body)

	packetID, err := rd.readUint16()
	if err != nil {
		return 0, nil, fmt.Errorf("read packet id: %w", err)
	}

	var filters []string
	for rd.remaining() > 0 {
		filter, err := rd.readString()
		if err != nil {
			return 0, nil, fmt.Errorf("read topic filter: %w", err)
		}
		if _, err := rd.readByte(); err != nil {
			return 0, nil, fmt.Errorf("missing qos byte")
		}
		filters = append(filters, filter)
	}
	if len(filters) == 0 {
		return 0, nil, fmt.Errorf("subscribe without topic filters")
	}
	return packetID, filters, nil
}

func buildSubAck(packetID uint16, codes []byte) []byte {
	remaining := 2 + len(codes)
	remainingBytes := encodeRemainingLength(remaining)
	buf := make([]byte, 0, 1+len(remainingBytes)+remaining)
	buf = append(buf, packetSubAck<<4)
	buf = append(buf, remainingBytes...)
	buf = append(buf, byte(packetID>>8), byte(packetID&0xFF))
	buf = append(buf, codes...)
	return buf
}

func parseUnsubscribe(body []byte) (uint16, []string, error) {
	rd := bytesReader(body)

	packetID, err := rd.readUint16()
	if err != nil {
		return 0, nil, fmt.Errorf("read packet id: %w", err)
	}

	var filters []string
	for rd.remaining() > 0 {
		filter, err := rd.readString()
		if err != nil {
			return 0, nil, fmt.Errorf("read topic filter: %w", err)
		}
		filters = append(filters, filter)
	}
	return packetID, filters, nil
}

func buildUnsubAck(packetID uint16) []byte {
	return []byte{packetUnsubAck << 4, 0x02, byte(packetID >> 8), byte(packetID & 0xFF)}
}

var pingResp = []byte{packetPingResp << 4, 0x00}

type bytesReader []byte

func (b *bytesReader) readByte() (byte, error) {
	if len(*b) == 0 {
		return 0, io.EOF
	}
	v := (*b)[0]
	*b = (*b)[1:]
	return v, nil
}

func (b *bytesReader) readUint16() (uint16, error) {
	if len(*b) < 2 {
		return 0, io.EOF
	}
	v := uint16((*b)[0])<<8 | uint16((*b)[1])
	*b = (*b)[2:]
	return v, nil
}

func (b *bytesReader) readString() (string, error) {
	l, err := b.readUint16()
	if err != nil {
		return "", err
	}
	if len(*b) < int(l) {
		return "", io.ErrUnexpectedEOF
	}
	s := string((*b)[:l])
	*b = (*b)[l:]
	return s, nil
}

func (b *bytesReader) readBytes(n int) []byte {
	if len(*b) < n {
		n = len(*b)
	}
	out := make([]byte, n)
	copy(out, (*b)[:n])
	*b = (*b)[n:]
	return out
}

func (b *bytesReader) remaining() int {
	return len(*b)
}

func readVarInt(r io.ByteReader) (int, error) {
	multiplier := 1
	value := 0
	for i := 0; i < 4; i++ {
		digit, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		value += int(digit&127) * multiplier
		if digit&128 == 0 {
			return value, nil
		}
		multiplier *= 128
	}
	return 0, fmt.Errorf("malformed remaining length")
}

func encodeRemainingLength(length int) []byte {
	if length < 0 {
		length = 0
	}

	var encoded []byte
	for {
		digit := byte(length % 128)
		length /= 128
		if length > 0 {
			digit |= 0x80
		}
		encoded = append(encoded, digit)
		if length == 0 {
			break
		}
	}
	return encoded
}
