package exposition

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"google.golang.org/protobuf/encoding/protodelim"
)

// ContentTypeProtobuf is the content type of length-delimited MetricFamily
// messages.
const ContentTypeProtobuf = "application/vnd.google.protobuf; proto=io.prometheus.client.MetricFamily; encoding=delimited"

// WriteDelimited writes each family as a varint length-delimited protobuf
// message, the binary exposition format understood by Prometheus servers.
func WriteDelimited(w io.Writer, families []*dto.MetricFamily) error {
	for _, mf := range families {
		if _, err := protodelim.MarshalTo(w, mf); err != nil {
			return fmt.Errorf("failed to encode family %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
