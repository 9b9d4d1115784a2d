package parse

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/banshee-data/facecap/internal/mocap"
)

/*
iFacialMocap text protocol

One message per UDP datagram, UTF-8 text, fields separated by '|':

	iFacialMocap_head|<rx>|<ry>|<rz>|<x>|<y>|<z>
	iFacialMocap_blendShapes|<name>&<value>|<name>&<value>|...

Field 0 is the message tag. Head messages carry six base-10 numbers:
rotation in degrees followed by position. A head message is applied whole
or not at all. Blend-shape messages carry any number of name&value pairs;
a malformed pair is skipped and the remaining pairs are still applied.
The name vocabulary belongs to the sender and is not validated.

Numbers use one locale-independent grammar: optional sign, digits with an
optional fraction, optional exponent. Hex floats, Inf and NaN are rejected.
*/

const (
	TagHead        = "iFacialMocap_head"
	TagBlendShapes = "iFacialMocap_blendShapes"

	FieldSeparator = "|"
	PairSeparator  = "&"

	// headFields is the tag plus rx, ry, rz, x, y, z.
	headFields = 7
	minFields  = 2
)

var errNotDecimal = errors.New("not a base-10 number")

// Decoder adapts Decode to the network Parser interface. It holds no state
// and is safe for concurrent use.
type Decoder struct{}

// NewDecoder returns a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes one datagram.
func (*Decoder) Decode(packet []byte) (mocap.Frame, error) {
	return Decode(packet)
}

// Decode decodes one datagram into a Frame. It performs no I/O and has no
// side effects.
func Decode(raw []byte) (mocap.Frame, error) {
	if !utf8.Valid(raw) {
		return mocap.Frame{}, &DecodeError{Kind: ErrKindEncoding}
	}

	fields := strings.Split(string(raw), FieldSeparator)
	if len(fields) < minFields {
		return mocap.Frame{}, &DecodeError{Kind: ErrKindTooShort, Tag: fields[0]}
	}

	switch fields[0] {
	case TagHead:
		return decodeHead(fields)
	case TagBlendShapes:
		return decodeBlendShapes(fields), nil
	default:
		return mocap.Frame{}, &DecodeError{Kind: ErrKindUnknownType, Tag: fields[0]}
	}
}

func decodeHead(fields []string) (mocap.Frame, error) {
	if len(fields) < headFields {
		return mocap.Frame{}, &DecodeError{Kind: ErrKindTooShort, Tag: TagHead}
	}

	// Fields beyond the sixth number are ignored.
	var v [headFields - 1]float64
	for i := range v {
		n, err := ParseNumber(fields[i+1])
		if err != nil {
			return mocap.Frame{}, &DecodeError{Kind: ErrKindBadNumber, Field: i + 1, Tag: TagHead, Err: err}
		}
		v[i] = n
	}

	return mocap.Frame{
		Kind: mocap.FrameHead,
		Head: mocap.HeadPose{
			Rotation: mocap.Vec3{X: v[0], Y: v[1], Z: v[2]},
			Position: mocap.Vec3{X: v[3], Y: v[4], Z: v[5]},
		},
	}, nil
}

func decodeBlendShapes(fields []string) mocap.Frame {
	frame := mocap.Frame{
		Kind:    mocap.FrameWeights,
		Weights: make([]mocap.Weight, 0, len(fields)-1),
	}

	for i := 1; i < len(fields); i++ {
		kv := strings.Split(fields[i], PairSeparator)
		if len(kv) != 2 {
			frame.Skipped = append(frame.Skipped, mocap.SkippedField{Index: i, Raw: fields[i], Reason: "expected name&value"})
			continue
		}
		if kv[0] == "" {
			frame.Skipped = append(frame.Skipped, mocap.SkippedField{Index: i, Raw: fields[i], Reason: "empty name"})
			continue
		}
		value, err := ParseNumber(kv[1])
		if err != nil {
			frame.Skipped = append(frame.Skipped, mocap.SkippedField{Index: i, Raw: fields[i], Reason: err.Error()})
			continue
		}
		frame.Weights = append(frame.Weights, mocap.Weight{Name: kv[0], Value: value})
	}

	return frame
}

// ParseNumber parses a base-10 floating-point number. Surrounding ASCII
// whitespace is ignored.
func ParseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !isDecimal(s) {
		return 0, errNotDecimal
	}
	return strconv.ParseFloat(s, 64)
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// isDecimal reports whether s matches [+-]? (d+ (. d*)? | . d+) ([eE] [+-]? d+)?
func isDecimal(s string) bool {
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}

	digits := 0
	for i < len(s) && isDigit(s[i]) {
		i++
		digits++
	}
	if i < len(s) && s[i] == '.' {
		i++
		for i < len(s) && isDigit(s[i]) {
			i++
			digits++
		}
	}
	if digits == 0 {
		return false
	}

	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		i++
		if i < len(s) && (s[i] == '+' || s[i] == '-') {
			i++
		}
		exp := 0
		for i < len(s) && isDigit(s[i]) {
			i++
			exp++
		}
		if exp == 0 {
			return false
		}
	}

	return i == len(s)
}
