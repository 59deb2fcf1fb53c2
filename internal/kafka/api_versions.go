package kafka

import (
	"github.com/twmb/franz-go/pkg/kmsg"
)

// errUnsupportedVersion is Kafka's UNSUPPORTED_VERSION error code.
const errUnsupportedVersion int16 = 35

// APIVersionRange is an advertised API with its supported version range.
type APIVersionRange struct {
	APIKey     int16
	MinVersion int16
	MaxVersion int16
}

// APIVersions builds the ApiVersions response for a request header,
// advertising apis. Requests newer than ApiVersions' advertised range get
// UNSUPPORTED_VERSION at v0, which every client can parse.
func APIVersions(header RequestHeader, apis []APIVersionRange) *kmsg.ApiVersionsResponse {
	resp := kmsg.NewPtrApiVersionsResponse()

	version := header.APIVersion
	for _, api := range apis {
		if api.APIKey == apiVersionsKey && (version < api.MinVersion || version > api.MaxVersion) {
			resp.ErrorCode = errUnsupportedVersion
			version = 0
		}
	}
	resp.SetVersion(version)

	for _, api := range apis {
		k := kmsg.NewApiVersionsResponseApiKey()
		k.ApiKey = api.APIKey
		k.MinVersion = api.MinVersion
		k.MaxVersion = api.MaxVersion
		resp.ApiKeys = append(resp.ApiKeys, k)
	}
	if version >= 3 {
		resp.FinalizedFeaturesEpoch = -1
	}
	return resp
}
