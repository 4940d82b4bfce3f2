package actuation

import "sync"

// Dry — привод без железа: запоминает последнюю команду (отладка на стенде, тесты).
type Dry struct {
	mapping Mapping

	mu     sync.Mutex
	cmd    float64
	drive  Drive
	writes int
}

// NewDry создаёт привод без вывода.
func NewDry(m Mapping) *Dry {
	return &Dry{mapping: m}
}

func (d *Dry) Name() string { return "none" }

// Write запоминает команду и заполнение
func (d *Dry) Write(cmd float64) error {
	drv, err := d.mapping.Apply(cmd)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.cmd, d.drive = cmd, drv
	d.writes++
	d.mu.Unlock()
	return nil
}

// Last возвращает последнюю команду, заполнение и число записей.
func (d *Dry) Last() (cmd float64, drive Drive, writes int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cmd, d.drive, d.writes
}

func (d *Dry) Close() error {
	d.mu.Lock()
	d.drive = Drive{}
	d.mu.Unlock()
	return nil
}
