// Package estimator оценивает скорость по накопленной позиции энкодера.
package estimator

import (
	"math"
	"time"
)

// DefaultWindow — размер окна регрессии по умолчанию.
const DefaultWindow = 16

// LinReg — оценка скорости наклоном линейной регрессии позиции по времени
// в скользящем окне. x = время в секундах (накопленное), y = позиция в отсчётах.
type LinReg struct {
	xs      []float64
	ys      []float64
	n       int
	idx     int
	timeSec float64
	scale   float64 // рад/отсчёт
}

// NewLinReg создаёт оценщик; countsPerRev — отсчётов энкодера на оборот
// (<= 0 — выход в отсчётах/с), window < 2 — DefaultWindow.
func NewLinReg(window int, countsPerRev float64) *LinReg {
	if window < 2 {
		window = DefaultWindow
	}
	scale := 1.0
	if countsPerRev > 0 {
		scale = 2 * math.Pi / countsPerRev
	}
	return &LinReg{
		xs:    make([]float64, window),
		ys:    make([]float64, window),
		scale: scale,
	}
}

// Update добавляет отсчёт позиции через dt после предыдущего и возвращает
// скорость (рад/с). ok=false, пока в окне меньше двух точек.
func (l *LinReg) Update(position float64, dt time.Duration) (speed float64, ok bool) {
	if l.n > 0 {
		dtSec := dt.Seconds()
		if dtSec <= 0 {
			return 0, false
		}
		l.timeSec += dtSec
	}
	l.xs[l.idx] = l.timeSec
	l.ys[l.idx] = position
	l.idx = (l.idx + 1) % len(l.xs)
	if l.n < len(l.xs) {
		l.n++
	}
	if l.n < 2 {
		return 0, false
	}
	// Сдвиг начала координат уменьшает потерю точности на длинных прогонах.
	x0, y0 := l.xs[l.oldest()], l.ys[l.oldest()]
	n := float64(l.n)
	var sumX, sumY, sumXY, sumX2 float64
	for i := 0; i < l.n; i++ {
		x := l.xs[i] - x0
		y := l.ys[i] - y0
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, false
	}
	slope := (n*sumXY - sumX*sumY) / denom
	return slope * l.scale, true
}

// Reset сбрасывает окно и накопленное время.
func (l *LinReg) Reset() {
	l.n = 0
	l.idx = 0
	l.timeSec = 0
}

func (l *LinReg) oldest() int {
	if l.n < len(l.xs) {
		return 0
	}
	return l.idx
}
