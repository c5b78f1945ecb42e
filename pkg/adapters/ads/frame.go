package ads

import (
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	tcpHeaderLen = 6
	amsHeaderLen = 32

	cmdReadState    uint16 = 4
	cmdWriteControl uint16 = 5

	flagRequest  uint16 = 0x0004
	flagResponse uint16 = 0x0005

	// SystemServicePort is the ADS port of the TwinCAT system service, which
	// owns the Run/Config mode of the whole runtime.
	SystemServicePort = 10000

	maxFrameLen = 1 << 20
)

// NetID is an AMS network address such as 5.1.2.3.1.1.
type NetID [6]byte

// ParseNetID parses the dotted form of an AMS NetId.
func ParseNetID(s string) (NetID, error) {
	var id NetID
	parts := strings.Split(s, ".")
	if len(parts) != len(id) {
		return id, fmt.Errorf("invalid AMS NetId %q", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return id, fmt.Errorf("invalid AMS NetId %q", s)
		}
		id[i] = byte(v)
	}
	return id, nil
}

func (n NetID) String() string {
	parts := make([]string, len(n))
	for i, b := range n {
		parts[i] = strconv.Itoa(int(b))
	}
	return strings.Join(parts, ".")
}

// amsHeader is the fixed header of every AMS packet.
type amsHeader struct {
	Target     NetID
	TargetPort uint16
	Source     NetID
	SourcePort uint16
	Command    uint16
	Flags      uint16
	Length     uint32
	ErrorCode  uint32
	InvokeID   uint32
}

type packet struct {
	amsHeader
	Data []byte
}

func (p packet) encode() []byte {
	buf := make([]byte, tcpHeaderLen+amsHeaderLen+len(p.Data))
	le := binary.LittleEndian
	le.PutUint32(buf[2:6], uint32(amsHeaderLen+len(p.Data)))

	h := buf[tcpHeaderLen:]
	copy(h[0:6], p.Target[:])
	le.PutUint16(h[6:8], p.TargetPort)
	copy(h[8:14], p.Source[:])
	le.PutUint16(h[14:16], p.SourcePort)
	le.PutUint16(h[16:18], p.Command)
	le.PutUint16(h[18:20], p.Flags)
	le.PutUint32(h[20:24], uint32(len(p.Data)))
	le.PutUint32(h[24:28], p.ErrorCode)
	le.PutUint32(h[28:32], p.InvokeID)
	copy(h[amsHeaderLen:], p.Data)
	return buf
}

func readPacket(r io.Reader) (packet, error) {
	var tcp [tcpHeaderLen]byte
	if _, err := io.ReadFull(r, tcp[:]); err != nil {
		return packet{}, err
	}
	le := binary.LittleEndian
	n := le.Uint32(tcp[2:6])
	if n < amsHeaderLen || n > maxFrameLen {
		return packet{}, fmt.Errorf("invalid AMS frame length %d", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return packet{}, err
	}

	var p packet
	copy(p.Target[:], buf[0:6])
	p.TargetPort = le.Uint16(buf[6:8])
	copy(p.Source[:], buf[8:14])
	p.SourcePort = le.Uint16(buf[14:16])
	p.Command = le.Uint16(buf[16:18])
	p.Flags = le.Uint16(buf[18:20])
	p.Length = le.Uint32(buf[20:24])
	p.ErrorCode = le.Uint32(buf[24:28])
	p.InvokeID = le.Uint32(buf[28:32])
	if int(p.Length) != len(buf)-amsHeaderLen {
		return packet{}, fmt.Errorf("AMS data length %d does not match frame", p.Length)
	}
	p.Data = buf[amsHeaderLen:]
	return p, nil
}

// Error is a non-zero ADS return code.
type Error struct {
	Code uint32
}

func (e *Error) Error() string {
	return fmt.Sprintf("ADS error 0x%X", e.Code)
}
