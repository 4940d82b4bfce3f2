// Package frame — двоичный кадр последовательного канала регулятора:
// sync(2) + class + id + length(2, LE) + payload + checksum(2).
// Контрольная сумма — 8-битный Флетчер по class..payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Sync bytes кадра
const (
	Sync1 = 0xA5
	Sync2 = 0x5A
)

// HeaderSize — sync + class + id + length
const HeaderSize = 6

// MaxPayload — ограничение длины payload при чтении из потока.
const MaxPayload = 256

// Классы сообщений
const (
	ClassTelemetry = 0x01
	ClassInject    = 0x02
)

// ErrChecksum — кадр принят, но контрольная сумма не сошлась.
var ErrChecksum = errors.New("frame checksum mismatch")

// ErrTooLong — длина payload в заголовке больше MaxPayload.
var ErrTooLong = errors.New("frame payload too long")

// Header — заголовок кадра
type Header struct {
	Class  uint8
	ID     uint8
	Length uint16
}

// Checksum вычисляет контрольную сумму (без sync bytes)
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// Encode собирает полный кадр: header + payload + checksum
func Encode(class, id uint8, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload)+2)
	return AppendEncode(buf, class, id, payload)
}

// AppendEncode дописывает кадр в buf (без лишних аллокаций в цикле телеметрии).
func AppendEncode(buf []byte, class, id uint8, payload []byte) []byte {
	start := len(buf)
	buf = append(buf, Sync1, Sync2, class, id)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[start+2:])
	return append(buf, ckA, ckB)
}

// ParseHeader парсит заголовок из буфера (минимум HeaderSize байт)
func ParseHeader(buf []byte) (h Header, ok bool) {
	if len(buf) < HeaderSize || buf[0] != Sync1 || buf[1] != Sync2 {
		return Header{}, false
	}
	h.Class = buf[2]
	h.ID = buf[3]
	h.Length = binary.LittleEndian.Uint16(buf[4:6])
	return h, true
}

// VerifyChecksum проверяет контрольную сумму кадра (header + payload + 2 байта checksum)
func VerifyChecksum(packet []byte) bool {
	if len(packet) < HeaderSize+2 {
		return false
	}
	ckA, ckB := Checksum(packet[2 : len(packet)-2])
	return packet[len(packet)-2] == ckA && packet[len(packet)-1] == ckB
}

// Payload возвращает payload из полного кадра (без header и checksum).
func Payload(packet []byte) []byte {
	h, ok := ParseHeader(packet)
	if !ok || len(packet) < HeaderSize+int(h.Length) {
		return nil
	}
	return packet[HeaderSize : HeaderSize+int(h.Length)]
}

// Read читает один кадр из потока: ждёт sync, затем header, затем payload+checksum.
// При несовпадении контрольной суммы возвращает кадр и ErrChecksum.
func Read(r io.Reader) ([]byte, error) {
	var prev byte
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, err
		}
		if prev == Sync1 && b[0] == Sync2 {
			break
		}
		prev = b[0]
	}
	buf := make([]byte, HeaderSize, HeaderSize+16)
	buf[0], buf[1] = Sync1, Sync2
	if _, err := io.ReadFull(r, buf[2:HeaderSize]); err != nil {
		return nil, err
	}
	length := int(binary.LittleEndian.Uint16(buf[4:6]))
	if length > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrTooLong, length)
	}
	rest := make([]byte, length+2)
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}
	buf = append(buf, rest...)
	if !VerifyChecksum(buf) {
		return buf, ErrChecksum
	}
	return buf, nil
}
