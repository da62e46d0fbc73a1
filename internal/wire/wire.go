// Package wire implements the framed sub-protocol carried over an SSH
// channel's data stream once the `get` or `ping` actions take over the
// channel (§2, §4.4): a fixed 3-byte Head followed by a tagged Body.
//
// A v2 peer prefixes every Body with a one-byte tag. An older v1 peer never
// wrote a tag and only ever sent a bare GetFile record, so DecodeBody falls
// back to the v1 bare-record shape whenever the tag byte doesn't match a
// known v2 variant.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Version identifies the Head/Body encoding in use on the wire.
const (
	Version1 uint8 = 1
	Version2 uint8 = 2
)

// HeadSize is the fixed on-wire size of a Head: 1 byte version + 2 byte size.
const HeadSize = 3

// Head precedes every Body on the wire: the protocol version the sender used
// and the byte length of the Body that follows.
type Head struct {
	Version uint8
	Size    uint16
}

// Encode packs a Head into its fixed 3-byte wire form.
func (h Head) Encode() [HeadSize]byte {
	var buf [HeadSize]byte
	buf[0] = h.Version
	binary.BigEndian.PutUint16(buf[1:3], h.Size)
	return buf
}

// DecodeHead unpacks a Head from exactly HeadSize bytes.
func DecodeHead(b []byte) (Head, error) {
	if len(b) < HeadSize {
		return Head{}, fmt.Errorf("wire: short head: %d bytes", len(b))
	}
	return Head{
		Version: b[0],
		Size:    binary.BigEndian.Uint16(b[1:3]),
	}, nil
}

// ReadHead reads a Head off r.
func ReadHead(r io.Reader) (Head, error) {
	var buf [HeadSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Head{}, err
	}
	return DecodeHead(buf[:])
}

// GetKind distinguishes a file transfer from a directory listing in a
// GetFile body (§4.6 `get`/`scp` actions, GLOSSARY).
type GetKind uint8

const (
	KindFile GetKind = iota
	KindDirectory
)

// BodyTag identifies which Body variant follows in the v2 encoding.
type BodyTag uint8

const (
	TagGetFile BodyTag = iota
	TagPing
	TagPong
)

// GetFile requests (client->server) or describes (server->client) a single
// path transfer: its kind and, once known, its size in bytes.
type GetFile struct {
	Path    string
	Kind    GetKind
	Size    uint64
	HasSize bool
}

// Ping carries a client-chosen nonce echoed back unchanged in the matching
// Pong, used to measure round-trip latency over an otherwise idle channel.
type Ping struct {
	Nonce int64
}

// Pong echoes a Ping's nonce.
type Pong struct {
	Nonce int64
}

// Body is one of GetFile, Ping, or Pong.
type Body struct {
	Tag     BodyTag
	GetFile GetFile
	Ping    Ping
	Pong    Pong
}

// EncodeBody renders b in the v2 tagged encoding.
func EncodeBody(b Body) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(b.Tag))
	switch b.Tag {
	case TagGetFile:
		encodeGetFile(&buf, b.GetFile)
	case TagPing:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(b.Ping.Nonce))
		buf.Write(n[:])
	case TagPong:
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(b.Pong.Nonce))
		buf.Write(n[:])
	}
	return buf.Bytes()
}

func encodeGetFile(buf *bytes.Buffer, g GetFile) {
	var pathLen [2]byte
	binary.BigEndian.PutUint16(pathLen[:], uint16(len(g.Path)))
	buf.Write(pathLen[:])
	buf.WriteString(g.Path)
	buf.WriteByte(byte(g.Kind))
	if g.HasSize {
		buf.WriteByte(1)
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], g.Size)
		buf.Write(size[:])
	} else {
		buf.WriteByte(0)
	}
}

// Frame encodes a Body together with its Head, ready to write to a channel.
func Frame(b Body) []byte {
	payload := EncodeBody(b)
	head := Head{Version: Version2, Size: uint16(len(payload))}.Encode()
	out := make([]byte, 0, HeadSize+len(payload))
	out = append(out, head[:]...)
	out = append(out, payload...)
	return out
}

// DecodeBody parses a v2 tagged Body from payload. If the tag byte is
// unrecognized it falls back to the v1 bare GetFile record (DecodeGetFileV1),
// since a v1 sender never prefixed its GetFile with a tag byte.
func DecodeBody(payload []byte) (Body, error) {
	if len(payload) == 0 {
		return Body{}, fmt.Errorf("wire: empty body")
	}
	tag := BodyTag(payload[0])
	rest := payload[1:]
	switch tag {
	case TagGetFile:
		g, err := decodeGetFile(rest)
		if err != nil {
			return bareGetFileFallback(payload)
		}
		return Body{Tag: TagGetFile, GetFile: g}, nil
	case TagPing:
		if len(rest) < 8 {
			return bareGetFileFallback(payload)
		}
		return Body{Tag: TagPing, Ping: Ping{Nonce: int64(binary.BigEndian.Uint64(rest[:8]))}}, nil
	case TagPong:
		if len(rest) < 8 {
			return bareGetFileFallback(payload)
		}
		return Body{Tag: TagPong, Pong: Pong{Nonce: int64(binary.BigEndian.Uint64(rest[:8]))}}, nil
	default:
		return bareGetFileFallback(payload)
	}
}

func bareGetFileFallback(payload []byte) (Body, error) {
	g, err := DecodeGetFileV1(payload)
	if err != nil {
		return Body{}, fmt.Errorf("wire: unrecognized body (v2 tag %d, v1 fallback failed: %w)", payload[0], err)
	}
	return Body{Tag: TagGetFile, GetFile: g}, nil
}

func decodeGetFile(b []byte) (GetFile, error) {
	if len(b) < 2 {
		return GetFile{}, fmt.Errorf("wire: short get_file path length")
	}
	pathLen := int(binary.BigEndian.Uint16(b[:2]))
	b = b[2:]
	if len(b) < pathLen+2 {
		return GetFile{}, fmt.Errorf("wire: short get_file body")
	}
	path := string(b[:pathLen])
	b = b[pathLen:]
	kind := GetKind(b[0])
	hasSize := b[1] != 0
	b = b[2:]
	g := GetFile{Path: path, Kind: kind}
	if hasSize {
		if len(b) < 8 {
			return GetFile{}, fmt.Errorf("wire: short get_file size")
		}
		g.HasSize = true
		g.Size = binary.BigEndian.Uint64(b[:8])
	}
	return g, nil
}

// DecodeGetFileV1 parses the bare pre-tag GetFile record: the same layout as
// the v2 variant's payload minus the leading tag byte. Kept for
// interoperability with peers that predate BodyTag.
func DecodeGetFileV1(b []byte) (GetFile, error) {
	return decodeGetFile(b)
}
