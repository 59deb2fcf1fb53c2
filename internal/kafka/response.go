package kafka

import (
	"encoding/binary"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// AppendResponse appends a size-prefixed response to dst: the correlation id
// of header, an empty tag buffer for flexible response headers, then the body
// of resp. The body is encoded at resp's own version, which callers normally
// set to header.APIVersion.
func AppendResponse(dst []byte, header RequestHeader, resp kmsg.Response) []byte {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = AppendResponseBody(dst, header, resp)
	binary.BigEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	return dst
}

// AppendResponseBody is AppendResponse without the size prefix, for
// transports that frame responses themselves.
func AppendResponseBody(dst []byte, header RequestHeader, resp kmsg.Response) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(header.CorrelationID))
	if resp.IsFlexible() && resp.Key() != apiVersionsKey {
		dst = append(dst, 0)
	}
	return resp.AppendTo(dst)
}

// AppendRequest appends a size-prefixed request to dst. Clients and tests use
// it to produce frames for Strategy.
func AppendRequest(dst []byte, correlationID int32, clientID string, req kmsg.Request) []byte {
	start := len(dst)
	dst = append(dst, 0, 0, 0, 0)
	dst = binary.BigEndian.AppendUint16(dst, uint16(req.Key()))
	dst = binary.BigEndian.AppendUint16(dst, uint16(req.GetVersion()))
	dst = binary.BigEndian.AppendUint32(dst, uint32(correlationID))
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(clientID)))
	dst = append(dst, clientID...)
	if IsFlexibleRequestHeader(req.Key(), req.GetVersion()) {
		dst = append(dst, 0)
	}
	dst = req.AppendTo(dst)

	binary.BigEndian.PutUint32(dst[start:], uint32(len(dst)-start-4))
	return dst
}
