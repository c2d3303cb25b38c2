// Package sensor decodes the packed sensor frames sent by the radio nodes
// and renders them as MQTT topics and values.
package sensor

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
)

// FrameSize is the size of one packed sensor frame on the air
const FrameSize = 12

// ErrShortFrame indicates a frame shorter than FrameSize
var ErrShortFrame = errors.New("sensor frame too short")

// Address is a 5-byte nRF24 pipe address
type Address [5]byte

// ParseAddress parses exactly ten hex digits, e.g. "AEAEAEAE00"
func ParseAddress(s string) (Address, error) {
	var addr Address
	if len(s) != 2*len(addr) {
		return addr, fmt.Errorf("invalid address %q: want %d hex digits", s, 2*len(addr))
	}
	if _, err := hex.Decode(addr[:], []byte(s)); err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return addr, nil
}

// String returns the address as lower-case hex
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Uint64 returns the address as the big-endian integer the radio expects
func (a Address) Uint64() uint64 {
	var v uint64
	for _, b := range a {
		v = v<<8 | uint64(b)
	}
	return v
}

// Type identifies what a sensor measures
type Type uint8

const (
	TypeROSwitch Type = iota
	TypeRWSwitch
	TypeTemperature
	TypeHumidity
	TypeLight
	TypeMotion
	TypeVoltage
)

// String returns the topic segment for the type
func (t Type) String() string {
	switch t {
	case TypeROSwitch:
		return "ro_switch"
	case TypeRWSwitch:
		return "rw_switch"
	case TypeTemperature:
		return "temperature"
	case TypeHumidity:
		return "humidity"
	case TypeLight:
		return "light"
	case TypeMotion:
		return "motion"
	case TypeVoltage:
		return "voltage"
	default:
		return "type_" + strconv.Itoa(int(t))
	}
}

// Model identifies the sensor hardware, which decides the value encoding
type Model uint8

const (
	ModelNone Model = iota
	ModelDHT11
	ModelDHT22
	ModelDS18B20
	ModelTMP36
)

// String returns the model name
func (m Model) String() string {
	switch m {
	case ModelNone:
		return "none"
	case ModelDHT11:
		return "dht11"
	case ModelDHT22:
		return "dht22"
	case ModelDS18B20:
		return "ds18b20"
	case ModelTMP36:
		return "tmp36"
	default:
		return "model_" + strconv.Itoa(int(m))
	}
}

// Reading is one decoded sensor frame
type Reading struct {
	Address  Address
	Type     Type
	Model    Model
	Instance uint8
	// Raw holds the little-endian value bytes as sent
	Raw [4]byte
}

// Decode parses a packed frame: addr[5] type model instance value[4].
// Bytes past FrameSize are ignored.
func Decode(frame []byte) (Reading, error) {
	var r Reading
	if len(frame) < FrameSize {
		return r, fmt.Errorf("%w: got %d bytes, want %d", ErrShortFrame, len(frame), FrameSize)
	}

	copy(r.Address[:], frame[0:5])
	r.Type = Type(frame[5])
	r.Model = Model(frame[6])
	r.Instance = frame[7]
	copy(r.Raw[:], frame[8:12])
	return r, nil
}

// Encode packs the reading into a frame, the inverse of Decode
func (r Reading) Encode() []byte {
	frame := make([]byte, FrameSize)
	copy(frame[0:5], r.Address[:])
	frame[5] = byte(r.Type)
	frame[6] = byte(r.Model)
	frame[7] = r.Instance
	copy(frame[8:12], r.Raw[:])
	return frame
}

// NewUint8Reading builds a reading carrying a uint8 value
func NewUint8Reading(addr Address, typ Type, model Model, instance uint8, v uint8) Reading {
	r := Reading{Address: addr, Type: typ, Model: model, Instance: instance}
	r.Raw[0] = v
	return r
}

// NewFloatReading builds a reading carrying a float32 value
func NewFloatReading(addr Address, typ Type, model Model, instance uint8, v float32) Reading {
	r := Reading{Address: addr, Type: typ, Model: model, Instance: instance}
	binary.LittleEndian.PutUint32(r.Raw[:], math.Float32bits(v))
	return r
}

// Uint8 returns the value as uint8
func (r Reading) Uint8() uint8 {
	return r.Raw[0]
}

// Uint16 returns the value as little-endian uint16
func (r Reading) Uint16() uint16 {
	return binary.LittleEndian.Uint16(r.Raw[:2])
}

// Float returns the value as little-endian float32
func (r Reading) Float() float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(r.Raw[:]))
}

// isFloat reports whether the type/model pair carries a float32
func (r Reading) isFloat() bool {
	switch r.Type {
	case TypeVoltage:
		return true
	case TypeTemperature, TypeHumidity:
		return r.Model != ModelNone && r.Model != ModelDHT11
	default:
		return false
	}
}

// Value renders the reading's value as an MQTT payload
func (r Reading) Value() string {
	if r.isFloat() {
		return strconv.FormatFloat(float64(r.Float()), 'f', -1, 32)
	}
	return strconv.Itoa(int(r.Uint8()))
}

// String implements fmt.Stringer for logging
func (r Reading) String() string {
	return fmt.Sprintf("%s %s/%d (%s) = %s", r.Address, r.Type, r.Instance, r.Model, r.Value())
}
