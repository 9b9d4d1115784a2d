package mocap

import "time"

// Vec3 is a three-component vector. Positions are in sender units
// (metres for iFacialMocap); rotations are Euler angles in degrees.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HeadPose is a full head transform. It is always replaced as a unit;
// there is no API to update individual components.
type HeadPose struct {
	Position Vec3 `json:"position"`
	Rotation Vec3 `json:"rotation"` // degrees (rx, ry, rz)
}

// Weight is one named expression weight (blend shape value).
type Weight struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// FrameKind identifies which message type a Frame carries.
type FrameKind int

const (
	// FrameHead carries a HeadPose update.
	FrameHead FrameKind = iota + 1
	// FrameWeights carries zero or more expression weight updates.
	FrameWeights
)

func (k FrameKind) String() string {
	switch k {
	case FrameHead:
		return "head"
	case FrameWeights:
		return "weights"
	default:
		return "unknown"
	}
}

// SkippedField records a blend-shape field that could not be decoded.
// The rest of the datagram is still applied.
type SkippedField struct {
	Index  int
	Raw    string
	Reason string
}

// Frame is the result of decoding one datagram. Exactly one of Head or
// Weights is meaningful, selected by Kind.
type Frame struct {
	Kind    FrameKind
	Head    HeadPose
	Weights []Weight
	Skipped []SkippedField
}

// Snapshot is a consistent copy of everything a Store holds. Weights is
// owned by the caller.
type Snapshot struct {
	Head             HeadPose           `json:"head"`
	Weights          map[string]float64 `json:"weights"`
	HeadUpdates      uint64             `json:"head_updates"`
	WeightUpdates    uint64             `json:"weight_updates"`
	HeadUpdatedAt    time.Time          `json:"head_updated_at"`
	WeightsUpdatedAt time.Time          `json:"weights_updated_at"`
}
