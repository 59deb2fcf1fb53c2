// Package kafka frames Kafka wire protocol requests for decoder.Stream and
// encodes responses.
package kafka

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// ErrMalformedHeader is returned when a frame's request header cannot be parsed.
var ErrMalformedHeader = errors.New("kafka: malformed request header")

// apiVersionsKey is the ApiVersions API key. Its response header is never
// flexible, and v3+ requests carry header tags.
const apiVersionsKey = 18

// RequestHeader contains the parsed Kafka request header.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      string
	// ZoneID is the zone_id pair of ClientID, if any.
	ZoneID string
}

// IsFlexibleRequestHeader reports whether the request for key at version
// uses request header v2 (tagged fields after the client id).
func IsFlexibleRequestHeader(key, version int16) bool {
	if key < 0 || key > kmsg.MaxKey {
		return false
	}
	req := kmsg.Key(key).Request()
	if req == nil {
		return false
	}
	req.SetVersion(version)
	return req.IsFlexible()
}

// APIName returns the name of a Kafka API by its key.
func APIName(key int16) string {
	return kmsg.Key(key).Name()
}

// parseRequestHeader parses the header at the start of a request frame.
// Returns the header and the number of bytes consumed.
func parseRequestHeader(buf []byte) (RequestHeader, int, error) {
	if len(buf) < 8 {
		return RequestHeader{}, 0, fmt.Errorf("%w: %d bytes", ErrMalformedHeader, len(buf))
	}

	h := RequestHeader{
		APIKey:        int16(binary.BigEndian.Uint16(buf[0:2])),
		APIVersion:    int16(binary.BigEndian.Uint16(buf[2:4])),
		CorrelationID: int32(binary.BigEndian.Uint32(buf[4:8])),
	}
	off := 8

	// The client id is a nullable int16 string in both header v1 and v2.
	if len(buf) < off+2 {
		return RequestHeader{}, 0, fmt.Errorf("%w: no client id length", ErrMalformedHeader)
	}
	n := int16(binary.BigEndian.Uint16(buf[off : off+2]))
	off += 2
	if n < -1 {
		return RequestHeader{}, 0, fmt.Errorf("%w: client id length %d", ErrMalformedHeader, n)
	}
	if n > 0 {
		if len(buf) < off+int(n) {
			return RequestHeader{}, 0, fmt.Errorf("%w: short client id", ErrMalformedHeader)
		}
		h.ClientID = string(buf[off : off+int(n)])
		h.ZoneID = ParseZoneID(h.ClientID)
		off += int(n)
	}

	tagged := IsFlexibleRequestHeader(h.APIKey, h.APIVersion) ||
		(h.APIKey == apiVersionsKey && h.APIVersion >= 3)
	if !tagged {
		return h, off, nil
	}

	tags, m := binary.Uvarint(buf[off:])
	if m <= 0 {
		return RequestHeader{}, 0, fmt.Errorf("%w: bad tag count", ErrMalformedHeader)
	}
	off += m
	for i := uint64(0); i < tags; i++ {
		if _, m = binary.Uvarint(buf[off:]); m <= 0 {
			return RequestHeader{}, 0, fmt.Errorf("%w: bad tag key", ErrMalformedHeader)
		}
		off += m
		size, m := binary.Uvarint(buf[off:])
		if m <= 0 {
			return RequestHeader{}, 0, fmt.Errorf("%w: bad tag length", ErrMalformedHeader)
		}
		off += m
		if uint64(len(buf)-off) < size {
			return RequestHeader{}, 0, fmt.Errorf("%w: short tag data", ErrMalformedHeader)
		}
		off += int(size)
	}
	return h, off, nil
}

// ParseZoneID extracts zone_id from a client.id of comma-separated k=v pairs,
// such as "zone_id=us-east-1a,app=billing".
func ParseZoneID(clientID string) string {
	return ParseClientIDPairs(clientID)["zone_id"]
}

// ParseClientIDPairs parses a client.id as comma-separated k=v pairs.
// Parts without '=' and empty keys are skipped.
func ParseClientIDPairs(clientID string) map[string]string {
	pairs := make(map[string]string)
	for _, part := range strings.Split(clientID, ",") {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		if key = strings.TrimSpace(key); key != "" {
			pairs[key] = strings.TrimSpace(value)
		}
	}
	return pairs
}
