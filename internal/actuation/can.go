package actuation

import (
	"encoding/binary"
	"math"
	"time"

	"go.einride.tech/can"
)

const canWriteTimeout = 5 * time.Millisecond

// CommandFrame собирает кадр команды: float32 команды (LE) и заполнение
// каналов A и B в десятых долях процента (uint16 LE).
func CommandFrame(id uint32, cmd float64, d Drive) can.Frame {
	f := can.Frame{ID: id, Length: 8}
	binary.LittleEndian.PutUint32(f.Data[0:4], math.Float32bits(float32(cmd)))
	binary.LittleEndian.PutUint16(f.Data[4:6], uint16(math.Round(unit(d.A)*1000)))
	binary.LittleEndian.PutUint16(f.Data[6:8], uint16(math.Round(unit(d.B)*1000)))
	return f
}
