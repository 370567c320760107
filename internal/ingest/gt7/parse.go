package gt7

import (
	"encoding/binary"
	"math"

	"golang.org/x/crypto/salsa20"

	"github.com/nickz-gmm/diy-delta/internal/ingest"
	"github.com/nickz-gmm/diy-delta/internal/telemetry"
)

// keyString is the fixed Salsa20 key the console uses, truncated to the
// 32-byte cipher key.
const keyString = "Simulator Interface Packet GT7 ver 0.0"

// nonceOffset and payloadOffset delimit the encrypted packet: an 8-byte
// per-packet nonce sits at 0x40 and the stream payload starts at 0x48.
const (
	nonceOffset   = 0x40
	payloadOffset = 0x48
	minPayload    = 0x60
)

// Heartbeat variants select the packet flavour the console sends back. Each
// variant obfuscates the nonce with its own XOR constant.
const (
	VariantA     = 'A'
	VariantB     = 'B'
	VariantTilde = '~'
)

func nonceXORConst(variant byte) uint32 {
	switch variant {
	case VariantA:
		return 0xDEADBEAF
	case VariantB:
		return 0xDEADBEEF
	default:
		return 0x545F4C7E
	}
}

func cipherKey() *[32]byte {
	var key [32]byte
	copy(key[:], keyString)
	return &key
}

// decrypt recovers the plaintext payload of one packet. The nonce's first
// four bytes are XORed with the variant constant before use.
func decrypt(pkt []byte, variant byte) ([]byte, error) {
	if len(pkt) < payloadOffset {
		return nil, &telemetry.DecodeError{Source: "gt7", Reason: "packet shorter than encrypted header"}
	}

	var nonce [8]byte
	copy(nonce[:], pkt[nonceOffset:nonceOffset+8])
	first4 := binary.LittleEndian.Uint32(nonce[:4]) ^ nonceXORConst(variant)
	binary.LittleEndian.PutUint32(nonce[:4], first4)

	payload := make([]byte, len(pkt)-payloadOffset)
	salsa20.XORKeyStream(payload, pkt[payloadOffset:], nonce[:], cipherKey())
	return payload, nil
}

// parsePayload reads the decrypted packet fields. Layout (little endian):
// sequence u32, magic u32, time_ms u32, 4 unknown bytes, then position and
// orientation as six f32, with speed/rpm/throttle/brake/gear at 0x40.
func parsePayload(payload []byte) (*ingest.Sample, error) {
	if len(payload) < minPayload {
		return nil, &telemetry.DecodeError{Source: "gt7", Reason: "payload truncated"}
	}

	timeMs := binary.LittleEndian.Uint32(payload[0x08:])
	speedKmh := f32(payload, 0x40)
	gear := int32(binary.LittleEndian.Uint32(payload[0x50:]))

	return &ingest.Sample{
		Game:     telemetry.GameGT7,
		SimTimeS: float64(timeMs) / 1000.0,
		SpeedMps: float64(speedKmh) / 3.6,
		Throttle: float64(f32(payload, 0x48)),
		Brake:    float64(f32(payload, 0x4C)),
		Gear:     int8(gear),
		RPM:      float64(f32(payload, 0x44)),
		WorldX:   float64(f32(payload, 0x10)),
		WorldY:   float64(f32(payload, 0x14)),
		WorldZ:   float64(f32(payload, 0x18)),
		Yaw:      float64(f32(payload, 0x1C)),
		Pitch:    float64(f32(payload, 0x20)),
		Roll:     float64(f32(payload, 0x24)),
		// GT7 reports neither lap distance nor lap number; the lap
		// builder integrates the driven path instead.
	}, nil
}

func decodePacket(pkt []byte, variant byte) (*ingest.Sample, error) {
	payload, err := decrypt(pkt, variant)
	if err != nil {
		return nil, err
	}
	return parsePayload(payload)
}

func f32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}
