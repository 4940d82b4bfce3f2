// Package telemetry — запись каждого цикла регулятора в канал наблюдения
// (последовательный порт, как LOG в прошивке стенда).
package telemetry

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shiwa/motorctl/internal/frame"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
)

// Флаги записи
const (
	FlagSpeedFault       uint8 = 1 << iota // скорость не получена или нечисловая
	FlagCurrentFault                       // ток не получен или нечисловой
	FlagReferenceFault                     // нечисловое задание
	FlagHeld                               // команда удержана с прошлого цикла
	FlagSpeedSaturated                     // выход контура скорости на границе
	FlagCurrentSaturated                   // команда на границе
)

// Record — одна запись цикла: {время, задание, скорость, 0, ток, команда}.
type Record struct {
	TimestampMs uint32 // мс от старта регулятора
	Reference   float64
	Speed       float64
	Aux         float64 // резерв, всегда 0
	Current     float64
	Command     float64
	Flags       uint8
}

// Fault — в цикле была неисправность измерения.
func (r Record) Fault() bool {
	return r.Flags&(FlagSpeedFault|FlagCurrentFault|FlagReferenceFault) != 0
}

// FlagNames возвращает имена установленных флагов.
func FlagNames(f uint8) []string {
	names := []string{"speed_fault", "current_fault", "reference_fault", "held", "speed_saturated", "current_saturated"}
	var out []string
	for i, n := range names {
		if f&(1<<i) != 0 {
			out = append(out, n)
		}
	}
	return out
}

// Codec кодирует запись для канала.
type Codec interface {
	Append(buf []byte, r Record) []byte
}

// NewCodec возвращает кодек по имени формата (text, frame).
func NewCodec(format string) (Codec, error) {
	switch format {
	case "", pkgconfig.FormatText:
		return TextCodec{}, nil
	case pkgconfig.FormatFrame:
		return FrameCodec{}, nil
	default:
		return nil, fmt.Errorf("telemetry: unknown format %q", format)
	}
}

// TextCodec — строка "t,ref,speed,0,current,cmd,flags\n".
type TextCodec struct{}

func (TextCodec) Append(buf []byte, r Record) []byte {
	buf = strconv.AppendUint(buf, uint64(r.TimestampMs), 10)
	for _, v := range [...]float64{r.Reference, r.Speed, r.Aux, r.Current, r.Command} {
		buf = append(buf, ',')
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	buf = append(buf, ',')
	buf = strconv.AppendUint(buf, uint64(r.Flags), 10)
	return append(buf, '\n')
}

// FrameCodec — бинарный кадр (frame.ClassTelemetry/IDCycle), значения сужаются до float32.
type FrameCodec struct{}

func (FrameCodec) Append(buf []byte, r Record) []byte {
	return frame.AppendCycle(buf, frame.Cycle{
		TimestampMs: r.TimestampMs,
		Reference:   float32(r.Reference),
		Speed:       float32(r.Speed),
		Aux:         float32(r.Aux),
		Current:     float32(r.Current),
		Command:     float32(r.Command),
		Flags:       r.Flags,
	})
}

// ParseText разбирает строку TextCodec (для тестов и утилит стенда).
func ParseText(line string) (Record, error) {
	parts := strings.Split(strings.TrimSpace(line), ",")
	if len(parts) != 7 {
		return Record{}, fmt.Errorf("telemetry: %d fields, want 7", len(parts))
	}
	ts, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry: timestamp: %w", err)
	}
	var v [5]float64
	for i := range v {
		if v[i], err = strconv.ParseFloat(parts[i+1], 64); err != nil {
			return Record{}, fmt.Errorf("telemetry: field %d: %w", i+1, err)
		}
	}
	flags, err := strconv.ParseUint(parts[6], 10, 8)
	if err != nil {
		return Record{}, fmt.Errorf("telemetry: flags: %w", err)
	}
	return Record{
		TimestampMs: uint32(ts),
		Reference:   v[0],
		Speed:       v[1],
		Aux:         v[2],
		Current:     v[3],
		Command:     v[4],
		Flags:       uint8(flags),
	}, nil
}

// FromCycle переводит разобранный кадр в запись.
func FromCycle(c frame.Cycle) Record {
	return Record{
		TimestampMs: c.TimestampMs,
		Reference:   float64(c.Reference),
		Speed:       float64(c.Speed),
		Aux:         float64(c.Aux),
		Current:     float64(c.Current),
		Command:     float64(c.Command),
		Flags:       c.Flags,
	}
}
