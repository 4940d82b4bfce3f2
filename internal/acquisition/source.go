// Package acquisition — источники измерений тока и скорости для цикла регулятора.
package acquisition

import (
	"errors"
	"fmt"
)

// ErrNoSample — измерение ещё не получено (подстановка не прислала ни одной пары).
var ErrNoSample = errors.New("acquisition: no sample yet")

// ErrStale — последняя пара старше допустимого возраста. Оборачивает ErrNoSample.
var ErrStale = fmt.Errorf("%w: stale sample", ErrNoSample)

// Source — источник измерений. Чтение не блокирует цикл дольше одного обмена с датчиком.
type Source interface {
	// Name возвращает имя источника для логов
	Name() string
	// ReadCurrent возвращает измеренный ток двигателя
	ReadCurrent() (float64, error)
	// ReadSpeed возвращает измеренную угловую скорость, рад/с
	ReadSpeed() (float64, error)
	// Close освобождает ресурсы
	Close() error
}

// PairReader — источник, отдающий ток и скорость одного измерения за одно чтение.
type PairReader interface {
	ReadPair() (current, speed float64, err error)
}

// Read читает скорость и ток. Для PairReader оба значения берутся из одной пары,
// иначе скорость читается раньше тока.
func Read(s Source) (speed, current float64, speedErr, currentErr error) {
	if pr, ok := s.(PairReader); ok {
		current, speed, err := pr.ReadPair()
		return speed, current, err, err
	}
	speed, speedErr = s.ReadSpeed()
	current, currentErr = s.ReadCurrent()
	return speed, current, speedErr, currentErr
}
