package kafka

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFlexibleRequestHeader(t *testing.T) {
	tests := []struct {
		key, version int16
		want         bool
	}{
		{key: 3, version: 8, want: false},
		{key: 3, version: 9, want: true},
		{key: 18, version: 2, want: false},
		{key: 18, version: 3, want: true},
		{key: 0, version: 9, want: true},
		{key: -1, version: 0, want: false},
		{key: 10000, version: 0, want: false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, IsFlexibleRequestHeader(tc.key, tc.version), "%s v%d", APIName(tc.key), tc.version)
	}
}

func TestParseRequestHeaderSkipsTaggedFields(t *testing.T) {
	buf := binary.BigEndian.AppendUint16(nil, 3) // Metadata
	buf = binary.BigEndian.AppendUint16(buf, 12)
	buf = binary.BigEndian.AppendUint32(buf, 42)
	buf = binary.BigEndian.AppendUint16(buf, 2)
	buf = append(buf, "id"...)
	buf = append(buf, 2)             // two tags
	buf = append(buf, 0, 3, 1, 2, 3) // tag 0, 3 bytes
	buf = append(buf, 5, 0)          // tag 5, empty
	buf = append(buf, 0xAA)          // body

	h, n, err := parseRequestHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, int32(42), h.CorrelationID)
	assert.Equal(t, "id", h.ClientID)
	assert.Equal(t, len(buf)-1, n)
}

func TestParseRequestHeaderNullClientID(t *testing.T) {
	buf := binary.BigEndian.AppendUint16(nil, 18)
	buf = binary.BigEndian.AppendUint16(buf, 0)
	buf = binary.BigEndian.AppendUint32(buf, 1)
	buf = binary.BigEndian.AppendUint16(buf, 0xFFFF)

	h, n, err := parseRequestHeader(buf)
	require.NoError(t, err)
	assert.Empty(t, h.ClientID)
	assert.Equal(t, 10, n)
}

func TestParseRequestHeaderErrors(t *testing.T) {
	tests := map[string][]byte{
		"short":            {0, 18, 0, 0},
		"no client length": {0, 18, 0, 0, 0, 0, 0, 1},
		"bad client len":   {0, 18, 0, 0, 0, 0, 0, 1, 0xFF, 0xFE},
		"short client id":  {0, 18, 0, 0, 0, 0, 0, 1, 0, 5, 'a'},
		"missing tags":     {0, 18, 0, 3, 0, 0, 0, 1, 0, 0},
		"short tag data":   {0, 18, 0, 3, 0, 0, 0, 1, 0, 0, 1, 0, 4, 1},
	}
	for name, buf := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseRequestHeader(buf)
			require.ErrorIs(t, err, ErrMalformedHeader)
		})
	}
}

func TestParseZoneID(t *testing.T) {
	tests := map[string]string{
		"":                                   "",
		"zone_id=us-east-1a":                 "us-east-1a",
		"app=svc, zone_id = eu-west-1b ,x=1": "eu-west-1b",
		"zone_id":                            "",
		"myclient":                           "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseZoneID(in), in)
	}
}

func TestParseClientIDPairs(t *testing.T) {
	got := ParseClientIDPairs("a=1, b = 2,=skip,novalue,c=")
	assert.Equal(t, map[string]string{"a": "1", "b": "2", "c": ""}, got)
}

func TestAPIName(t *testing.T) {
	assert.Equal(t, "ApiVersions", APIName(18))
	assert.Equal(t, "Metadata", APIName(3))
}
