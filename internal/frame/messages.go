package frame

import (
	"encoding/binary"
	"math"
)

// ID сообщений
const (
	IDCycle  = 0x01 // ClassTelemetry: запись цикла
	IDSample = 0x01 // ClassInject: подставленные измерения
)

// Размеры payload
const (
	CycleSize  = 25
	SampleSize = 8
)

// Раскладка payload записи цикла (little-endian):
// 0:  timestamp, мс (uint32)
// 4:  reference (float32)
// 8:  speed (float32)
// 12: aux, всегда 0 (float32)
// 16: current (float32)
// 20: command (float32)
// 24: flags (uint8)
const (
	cycleTimestamp = 0
	cycleReference = 4
	cycleSpeed     = 8
	cycleAux       = 12
	cycleCurrent   = 16
	cycleCommand   = 20
	cycleFlags     = 24
)

// Cycle — запись цикла в проводном (суженном) представлении.
type Cycle struct {
	TimestampMs uint32
	Reference   float32
	Speed       float32
	Aux         float32
	Current     float32
	Command     float32
	Flags       uint8
}

// Sample — подставленные измерения (ток, скорость), как uart_recive_2_params.
type Sample struct {
	Current float32
	Speed   float32
}

// AppendCycle дописывает кадр записи цикла в buf.
func AppendCycle(buf []byte, c Cycle) []byte {
	var p [CycleSize]byte
	binary.LittleEndian.PutUint32(p[cycleTimestamp:], c.TimestampMs)
	putFloat32(p[cycleReference:], c.Reference)
	putFloat32(p[cycleSpeed:], c.Speed)
	putFloat32(p[cycleAux:], c.Aux)
	putFloat32(p[cycleCurrent:], c.Current)
	putFloat32(p[cycleCommand:], c.Command)
	p[cycleFlags] = c.Flags
	return AppendEncode(buf, ClassTelemetry, IDCycle, p[:])
}

// ParseCycle парсит payload записи цикла.
func ParseCycle(payload []byte) (Cycle, bool) {
	if len(payload) < CycleSize {
		return Cycle{}, false
	}
	return Cycle{
		TimestampMs: binary.LittleEndian.Uint32(payload[cycleTimestamp:]),
		Reference:   getFloat32(payload[cycleReference:]),
		Speed:       getFloat32(payload[cycleSpeed:]),
		Aux:         getFloat32(payload[cycleAux:]),
		Current:     getFloat32(payload[cycleCurrent:]),
		Command:     getFloat32(payload[cycleCommand:]),
		Flags:       payload[cycleFlags],
	}, true
}

// EncodeSample собирает кадр подставленных измерений.
func EncodeSample(s Sample) []byte {
	var p [SampleSize]byte
	putFloat32(p[0:], s.Current)
	putFloat32(p[4:], s.Speed)
	return Encode(ClassInject, IDSample, p[:])
}

// IsSamplePacket возвращает true, если кадр — подставленные измерения.
func IsSamplePacket(packet []byte) bool {
	h, ok := ParseHeader(packet)
	return ok && h.Class == ClassInject && h.ID == IDSample && int(h.Length) >= SampleSize
}

// ParseSample парсит payload подставленных измерений.
func ParseSample(payload []byte) (Sample, bool) {
	if len(payload) < SampleSize {
		return Sample{}, false
	}
	return Sample{
		Current: getFloat32(payload[0:]),
		Speed:   getFloat32(payload[4:]),
	}, true
}

func putFloat32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}

func getFloat32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}
