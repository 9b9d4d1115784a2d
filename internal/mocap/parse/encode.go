package parse

import (
	"strconv"
	"strings"

	"github.com/banshee-data/facecap/internal/mocap"
)

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// EncodeHead renders a head pose message.
func EncodeHead(p mocap.HeadPose) []byte {
	parts := []string{
		TagHead,
		formatNumber(p.Rotation.X),
		formatNumber(p.Rotation.Y),
		formatNumber(p.Rotation.Z),
		formatNumber(p.Position.X),
		formatNumber(p.Position.Y),
		formatNumber(p.Position.Z),
	}
	return []byte(strings.Join(parts, FieldSeparator))
}

// EncodeBlendShapes renders a blend-shape message. Names containing a
// separator are not escaped; the protocol has no escaping.
func EncodeBlendShapes(weights []mocap.Weight) []byte {
	var b strings.Builder
	b.WriteString(TagBlendShapes)
	for _, w := range weights {
		b.WriteString(FieldSeparator)
		b.WriteString(w.Name)
		b.WriteString(PairSeparator)
		b.WriteString(formatNumber(w.Value))
	}
	return []byte(b.String())
}
