package main

import (
	"context"
	"errors"
	"io"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
)

// arkitNames is the blend-shape vocabulary iFacialMocap sends.
var arkitNames = []string{
	"browDown_L", "browDown_R", "browInnerUp", "browOuterUp_L", "browOuterUp_R",
	"cheekPuff", "cheekSquint_L", "cheekSquint_R",
	"eyeBlink_L", "eyeBlink_R", "eyeLookDown_L", "eyeLookDown_R",
	"eyeLookIn_L", "eyeLookIn_R", "eyeLookOut_L", "eyeLookOut_R",
	"eyeLookUp_L", "eyeLookUp_R", "eyeSquint_L", "eyeSquint_R",
	"eyeWide_L", "eyeWide_R",
	"jawForward", "jawLeft", "jawOpen", "jawRight",
	"mouthClose", "mouthDimple_L", "mouthDimple_R", "mouthFrown_L", "mouthFrown_R",
	"mouthFunnel", "mouthLeft", "mouthLowerDown_L", "mouthLowerDown_R",
	"mouthPress_L", "mouthPress_R", "mouthPucker", "mouthRight",
	"mouthRollLower", "mouthRollUpper", "mouthShrugLower", "mouthShrugUpper",
	"mouthSmile_L", "mouthSmile_R", "mouthStretch_L", "mouthStretch_R",
	"mouthUpperUp_L", "mouthUpperUp_R",
	"noseSneer_L", "noseSneer_R", "tongueOut",
}

type sender struct {
	out        io.Writer
	rate       int
	head       bool
	blendShape bool
	log        *zap.Logger
}

// headAt returns a slow nod and turn.
func headAt(t time.Duration) mocap.HeadPose {
	s := t.Seconds()
	return mocap.HeadPose{
		Rotation: mocap.Vec3{
			X: round(10*math.Sin(2*math.Pi*0.25*s), 3),
			Y: round(30*math.Sin(2*math.Pi*0.1*s), 3),
			Z: round(5*math.Sin(2*math.Pi*0.15*s), 3),
		},
		Position: mocap.Vec3{
			X: round(0.02*math.Sin(2*math.Pi*0.1*s), 4),
			Y: 0,
			Z: round(0.4+0.05*math.Sin(2*math.Pi*0.05*s), 4),
		},
	}
}

// weightsAt animates every name with its own phase. Eyes blink briefly
// every three seconds.
func weightsAt(t time.Duration) []mocap.Weight {
	s := t.Seconds()
	blink := 0.0
	if math.Mod(s, 3) < 0.15 {
		blink = 1
	}
	out := make([]mocap.Weight, len(arkitNames))
	for i, name := range arkitNames {
		v := 0.5 + 0.5*math.Sin(2*math.Pi*0.2*s+float64(i))
		switch name {
		case "eyeBlink_L", "eyeBlink_R":
			v = blink
		}
		out[i] = mocap.Weight{Name: name, Value: round(v, 3)}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// run sends one frame per tick until ctx ends and returns the number of
// datagrams written.
func (s *sender) run(ctx context.Context) (int, error) {
	if s.rate <= 0 {
		return 0, errors.New("rate must be positive")
	}
	ticker := time.NewTicker(time.Second / time.Duration(s.rate))
	defer ticker.Stop()

	start := time.Now()
	sent := 0
	for {
		select {
		case <-ctx.Done():
			return sent, nil
		case now := <-ticker.C:
			n, err := s.sendFrame(now.Sub(start))
			sent += n
			if err != nil {
				return sent, err
			}
			if sent > 0 && sent%(s.rate*10) == 0 {
				s.log.Debug("sending", zap.Int("datagrams", sent))
			}
		}
	}
}

func (s *sender) sendFrame(t time.Duration) (int, error) {
	sent := 0
	if s.head {
		if _, err := s.out.Write(parse.EncodeHead(headAt(t))); err != nil {
			return sent, err
		}
		sent++
	}
	if s.blendShape {
		if _, err := s.out.Write(parse.EncodeBlendShapes(weightsAt(t))); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}
