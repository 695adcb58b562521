package core

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/consoden/dobcore/pkg/dob/types"
)

// Wire formats from §6, encoded with encoding/binary directly rather than
// through a generic codec: the layouts are externally fixed, little-endian,
// and small enough that hand-encoding is simpler and more auditable than
// bringing in a serialization framework for this single concern.
const (
	wireMagic   uint32 = 0x53414652
	wireVersion uint8  = 1

	kindAnnouncement uint8 = 1
	kindState        uint8 = 2
)

func putUint64(b []byte, v uint64) { binary.LittleEndian.PutUint64(b, v) }
func getUint64(b []byte) uint64    { return binary.LittleEndian.Uint64(b) }

// Announcement is the election-announcement message of §6.
type Announcement struct {
	NodeID    types.NodeID
	BirthTime uint64
	TypeID    types.NodeTypeID
	Priority  uint32
}

// EncodeAnnouncement serializes an Announcement to its wire layout:
// magic(4) version(1) kind(1) nodeId(8) birthTime(8) typeId(8) priority(4).
func EncodeAnnouncement(a Announcement) []byte {
	buf := make([]byte, 4+1+1+8+8+8+4)
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], wireMagic)
	off += 4
	buf[off] = wireVersion
	off++
	buf[off] = kindAnnouncement
	off++
	putUint64(buf[off:], uint64(a.NodeID))
	off += 8
	putUint64(buf[off:], a.BirthTime)
	off += 8
	putUint64(buf[off:], uint64(a.TypeID))
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], a.Priority)
	return buf
}

// DecodeAnnouncement parses the wire layout produced by EncodeAnnouncement.
func DecodeAnnouncement(buf []byte) (Announcement, error) {
	const want = 4 + 1 + 1 + 8 + 8 + 8 + 4
	if len(buf) != want {
		return Announcement{}, fmt.Errorf("announcement: expected %d bytes, got %d", want, len(buf))
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != wireMagic {
		return Announcement{}, fmt.Errorf("announcement: bad magic %#x", magic)
	}
	version := buf[off]
	off++
	if version != wireVersion {
		return Announcement{}, fmt.Errorf("announcement: unsupported version %d", version)
	}
	kind := buf[off]
	off++
	if kind != kindAnnouncement {
		return Announcement{}, fmt.Errorf("announcement: unexpected kind %d", kind)
	}
	nodeID := types.NodeID(getUint64(buf[off:]))
	off += 8
	birth := getUint64(buf[off:])
	off += 8
	typeID := types.NodeTypeID(getUint64(buf[off:]))
	off += 8
	priority := binary.LittleEndian.Uint32(buf[off:])

	return Announcement{NodeID: nodeID, BirthTime: birth, TypeID: typeID, Priority: priority}, nil
}

// EncodeStatePublication serializes a state blob publication:
// magic(4) version(1) kind(1) payloadLen(4) payload(n) [crc32le(4)].
// When blob.TrailerBytes is 4, crc32 is computed over payload and written
// little-endian into the trailer, satisfying the "CRC coverage" property of
// §8 (crc32(payload) == trailer for every delivered publication).
func EncodeStatePublication(blob types.StateBlob) ([]byte, error) {
	if blob.TrailerBytes != 0 && blob.TrailerBytes != 4 {
		return nil, fmt.Errorf("state publication: trailer must be 0 or 4 bytes, got %d", blob.TrailerBytes)
	}

	header := make([]byte, 4+1+1+4)
	off := 0
	binary.LittleEndian.PutUint32(header[off:], wireMagic)
	off += 4
	header[off] = wireVersion
	off++
	header[off] = kindState
	off++
	binary.LittleEndian.PutUint32(header[off:], uint32(len(blob.Payload)))

	buf := make([]byte, 0, len(header)+len(blob.Payload)+blob.TrailerBytes)
	buf = append(buf, header...)
	buf = append(buf, blob.Payload...)

	if blob.TrailerBytes == 4 {
		crc := crc32.ChecksumIEEE(blob.Payload)
		trailer := make([]byte, 4)
		binary.LittleEndian.PutUint32(trailer, crc)
		buf = append(buf, trailer...)
	}
	return buf, nil
}

// DecodeStatePublication parses a publication produced by
// EncodeStatePublication and, when a trailer is present, verifies the CRC.
func DecodeStatePublication(buf []byte) (payload []byte, crcOK bool, hasCRC bool, err error) {
	const headerLen = 4 + 1 + 1 + 4
	if len(buf) < headerLen {
		return nil, false, false, fmt.Errorf("state publication: too short")
	}
	off := 0
	magic := binary.LittleEndian.Uint32(buf[off:])
	off += 4
	if magic != wireMagic {
		return nil, false, false, fmt.Errorf("state publication: bad magic %#x", magic)
	}
	version := buf[off]
	off++
	if version != wireVersion {
		return nil, false, false, fmt.Errorf("state publication: unsupported version %d", version)
	}
	kind := buf[off]
	off++
	if kind != kindState {
		return nil, false, false, fmt.Errorf("state publication: unexpected kind %d", kind)
	}
	payloadLen := binary.LittleEndian.Uint32(buf[off:])
	off += 4

	rest := buf[off:]
	switch {
	case len(rest) == int(payloadLen):
		return rest, false, false, nil
	case len(rest) == int(payloadLen)+4:
		payload := rest[:payloadLen]
		trailer := binary.LittleEndian.Uint32(rest[payloadLen:])
		crc := crc32.ChecksumIEEE(payload)
		return payload, crc == trailer, true, nil
	default:
		return nil, false, false, fmt.Errorf("state publication: length mismatch, payloadLen=%d remaining=%d", payloadLen, len(rest))
	}
}
