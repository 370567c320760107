package f1

import (
	"encoding/binary"
	"math"

	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// Packet ids per the Codemasters/EA UDP spec. Only three kinds feed the
// canonical stream.
const (
	packetMotion       = 0
	packetLapData      = 2
	packetCarTelemetry = 6
)

// headerSize is the byte length of the shared packet header.
const headerSize = 29

// header is the shared prefix of every F1 UDP packet.
type header struct {
	packetFormat   uint16
	packetID       uint8
	sessionUID     uint64
	sessionTime    float32
	overallFrame   uint32
	playerCarIndex uint8
}

func parseHeader(buf []byte) (header, bool) {
	if len(buf) < headerSize {
		return header{}, false
	}
	return header{
		packetFormat:   binary.LittleEndian.Uint16(buf[0:]),
		packetID:       buf[6],
		sessionUID:     binary.LittleEndian.Uint64(buf[7:]),
		sessionTime:    math.Float32frombits(binary.LittleEndian.Uint32(buf[15:])),
		overallFrame:   binary.LittleEndian.Uint32(buf[23:]),
		playerCarIndex: buf[27],
	}, true
}

// layout holds the per-format-version array strides and field offsets. The
// yearly releases move fields around; the fields consumed here happen to sit
// at the same offsets in the 2024 and 2025 formats, but each year keeps its
// own entry so a drift only touches this table.
type layout struct {
	motionStride int // per-car motion block
	lapStride    int // per-car lap-data block
	carTelStride int // per-car telemetry block

	lapNumberOff   int // within the lap-data block
	lapDistanceOff int
	lapTimeOff     int
	lastLapTimeOff int
}

var layouts = map[int]layout{
	2024: {motionStride: 1464, lapStride: 51, carTelStride: 58, lapNumberOff: 0x10, lapDistanceOff: 0x14, lapTimeOff: 0x20, lastLapTimeOff: 0x24},
	2025: {motionStride: 1464, lapStride: 51, carTelStride: 58, lapNumberOff: 0x10, lapDistanceOff: 0x14, lapTimeOff: 0x20, lastLapTimeOff: 0x24},
}

func layoutForFormat(year int) layout {
	if l, ok := layouts[year]; ok {
		return l
	}
	return layouts[2025]
}

// playerState accumulates the player's car across the three packet kinds; a
// single packet never carries the full canonical point.
type playerState struct {
	sessionUID uint64

	worldX, worldY, worldZ float32
	yaw, pitch, roll       float32

	speedMps float32
	throttle float32
	brake    float32
	steer    float32
	gear     int8
	rpm      float32

	lapDistance float32
	currentLap  uint32
	lapTimeS    float32
	lastLapS    float32
}

// decoder merges packets into the per-session player state.
type decoder struct {
	layout layout
	state  playerState
}

func newDecoder(l layout) *decoder {
	return &decoder{layout: l}
}

// decode demuxes one packet. It returns a nil sample for packet kinds that
// carry nothing we consume, and a DecodeError for short or torn packets.
func (d *decoder) decode(buf []byte) (*ingest.Sample, error) {
	hdr, ok := parseHeader(buf)
	if !ok {
		return nil, &telemetry.DecodeError{Source: "f1", Reason: "packet shorter than header"}
	}

	// A new session resets the merged state.
	if hdr.sessionUID != d.state.sessionUID {
		d.state = playerState{sessionUID: hdr.sessionUID}
	}

	var err error
	switch hdr.packetID {
	case packetMotion:
		err = d.parseMotion(buf, hdr)
	case packetLapData:
		err = d.parseLapData(buf, hdr)
	case packetCarTelemetry:
		err = d.parseCarTelemetry(buf, hdr)
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	st := &d.state
	return &ingest.Sample{
		Game:            telemetry.GameF1,
		SimTimeS:        float64(hdr.sessionTime),
		SpeedMps:        float64(st.speedMps),
		Throttle:        float64(st.throttle),
		Brake:           float64(st.brake),
		Steer:           float64(st.steer),
		Gear:            st.gear,
		RPM:             float64(st.rpm),
		WorldX:          float64(st.worldX),
		WorldY:          float64(st.worldY),
		WorldZ:          float64(st.worldZ),
		Yaw:             float64(st.yaw),
		Pitch:           float64(st.pitch),
		Roll:            float64(st.roll),
		LapDistanceM:    float64(st.lapDistance),
		CurrentLap:      st.currentLap,
		CurrentLapTimeS: float64(st.lapTimeS),
		LastLapTimeS:    float64(st.lastLapS),
	}, nil
}

// parseMotion reads the player's world position and orientation. The per-car
// motion block leads with position x/y/z, then velocity and direction
// vectors, with yaw/pitch/roll at +36.
func (d *decoder) parseMotion(buf []byte, hdr header) error {
	start := headerSize + int(hdr.playerCarIndex)*d.layout.motionStride
	if len(buf) < start+48 {
		return &telemetry.DecodeError{Source: "f1", Reason: "motion packet truncated"}
	}
	st := &d.state
	st.worldX = f32(buf, start)
	st.worldY = f32(buf, start+4)
	st.worldZ = f32(buf, start+8)
	st.yaw = f32(buf, start+36)
	st.pitch = f32(buf, start+40)
	st.roll = f32(buf, start+44)
	return nil
}

// parseLapData reads the player's lap number, lap distance and lap times.
func (d *decoder) parseLapData(buf []byte, hdr header) error {
	l := d.layout
	start := headerSize + int(hdr.playerCarIndex)*l.lapStride
	if len(buf) < start+l.lastLapTimeOff+4 {
		return &telemetry.DecodeError{Source: "f1", Reason: "lap-data packet truncated"}
	}
	st := &d.state
	st.currentLap = uint32(buf[start+l.lapNumberOff])
	st.lapDistance = f32(buf, start+l.lapDistanceOff)
	st.lapTimeS = f32(buf, start+l.lapTimeOff)
	st.lastLapS = f32(buf, start+l.lastLapTimeOff)
	return nil
}

// parseCarTelemetry reads speed and driver inputs. Block layout: speed u16
// (km/h), throttle u8, steer i8, brake u8, clutch u8, gear i8, rpm u16.
func (d *decoder) parseCarTelemetry(buf []byte, hdr header) error {
	start := headerSize + int(hdr.playerCarIndex)*d.layout.carTelStride
	if len(buf) < start+9 {
		return &telemetry.DecodeError{Source: "f1", Reason: "car-telemetry packet truncated"}
	}
	st := &d.state
	speedKmh := binary.LittleEndian.Uint16(buf[start:])
	st.speedMps = float32(speedKmh) / 3.6
	st.throttle = float32(buf[start+2]) / 255.0
	st.steer = float32(int8(buf[start+3])) / 127.0
	st.brake = float32(buf[start+4]) / 255.0
	st.gear = int8(buf[start+6])
	st.rpm = float32(binary.LittleEndian.Uint16(buf[start+7:]))
	return nil
}

func f32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}
