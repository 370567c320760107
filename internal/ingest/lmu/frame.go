package lmu

import (
	"encoding/binary"
	"math"

	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Frame layout of the consumed slice of the plugin's telemetry buffer. All
// fields are little endian; the version counters bracket the payload so a
// reader can detect a write in progress.
const (
	offVersionBegin = 0x00
	offLocalVel     = 0x04 // 3 x f32
	offLocalAccel   = 0x10 // 3 x f32
	offOrientation  = 0x1C // 3 x f32, stored as pitch, yaw, roll
	offWorldPos     = 0x28 // 3 x f32
	offEngineRPM    = 0x34
	offMaxRPM       = 0x38
	offThrottle     = 0x3C
	offBrake        = 0x40
	offClutch       = 0x44
	offSteering     = 0x48
	offGear         = 0x4C // i32
	offLapDist      = 0x50
	offLapNumber    = 0x54 // u32
	offLapStartET   = 0x58
	offElapsedTime  = 0x5C
	offLastLapTime  = 0x60
	reservedSize    = 512
	offVersionEnd   = 0x64 + reservedSize

	frameSize = offVersionEnd + 4
)

// parseFrame decodes one snapshot of the mapping. It reports ok=false when
// the version counters disagree, meaning the plugin was mid-write.
func parseFrame(buf []byte) (ingest.Sample, bool) {
	if len(buf) < frameSize {
		return ingest.Sample{}, false
	}
	begin := binary.LittleEndian.Uint32(buf[offVersionBegin:])
	end := binary.LittleEndian.Uint32(buf[offVersionEnd:])
	if begin != end {
		return ingest.Sample{}, false
	}

	vx := float64(f32(buf, offLocalVel))
	vy := float64(f32(buf, offLocalVel+4))
	vz := float64(f32(buf, offLocalVel+8))

	elapsed := float64(f32(buf, offElapsedTime))
	lapStart := float64(f32(buf, offLapStartET))

	return ingest.Sample{
		Game:     telemetry.GameLMU,
		SimTimeS: elapsed,
		SpeedMps: speedFromVelocity(vx, vy, vz),
		Throttle: float64(f32(buf, offThrottle)),
		Brake:    float64(f32(buf, offBrake)),
		Steer:    float64(f32(buf, offSteering)),
		Gear:     int8(int32(binary.LittleEndian.Uint32(buf[offGear:]))),
		RPM:      float64(f32(buf, offEngineRPM)),
		WorldX:   float64(f32(buf, offWorldPos)),
		WorldY:   float64(f32(buf, offWorldPos+4)),
		WorldZ:   float64(f32(buf, offWorldPos+8)),
		// The plugin stores orientation as pitch, yaw, roll.
		Yaw:             float64(f32(buf, offOrientation+4)),
		Pitch:           float64(f32(buf, offOrientation)),
		Roll:            float64(f32(buf, offOrientation+8)),
		LapDistanceM:    float64(f32(buf, offLapDist)),
		CurrentLap:      binary.LittleEndian.Uint32(buf[offLapNumber:]),
		CurrentLapTimeS: elapsed - lapStart,
		LastLapTimeS:    float64(f32(buf, offLastLapTime)),
	}, true
}

func f32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}
