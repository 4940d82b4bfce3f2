// Package config предоставляет конфигурацию регулятора для использования из Beat и других модулей.
// Теги yaml — для файла motorctl.yml, теги config — для libbeat (motorbeat).
package config

// Источники измерений
const (
	SourceSensor   = "sensor"   // датчики: шунт тока через АЦП и энкодер по I2C
	SourceInjected = "injected" // значения из последовательного порта (тестовая подстановка)
)

// Драйверы исполнительного устройства
const (
	ActuatorPWM  = "pwm"
	ActuatorCAN  = "can"
	ActuatorNone = "none"
)

// Режимы отображения команды на привод
const (
	MappingSplit   = "split"   // два канала ШИМ: положительная и отрицательная полуволны
	MappingDuty    = "duty"    // один канал, диапазон выхода -> 0..100%
	MappingVoltage = "voltage" // команда в вольтах / напряжение питания, со знаком на два канала
)

// Форматы последовательного канала
const (
	FormatText  = "text"
	FormatFrame = "frame"
)

// Режимы энкодера
const (
	EncoderSpeed    = "speed"    // устройство отдаёт скорость
	EncoderPosition = "position" // устройство отдаёт накопленные отсчёты
)

// Config — конфигурация регулятора двигателя.
type Config struct {
	Controller  ControllerConfig  `yaml:"controller" config:"controller"`
	Acquisition AcquisitionConfig `yaml:"acquisition" config:"acquisition"`
	Actuation   ActuationConfig   `yaml:"actuation" config:"actuation"`
	Telemetry   TelemetryConfig   `yaml:"telemetry" config:"telemetry"`
	Console     ConsoleConfig     `yaml:"console" config:"console"`
	Realtime    RealtimeConfig    `yaml:"realtime" config:"realtime"`
	Logging     LoggingConfig     `yaml:"logging" config:"logging"`
}

// ControllerConfig — каскад: период дискретизации, задание скорости, два PI контура.
type ControllerConfig struct {
	SamplePeriod   string     `yaml:"sample_period" config:"sample_period"` // например "10ms"
	ReferenceSpeed float64    `yaml:"reference_speed" config:"reference_speed"`
	Speed          LoopConfig `yaml:"speed" config:"speed"`
	Current        LoopConfig `yaml:"current" config:"current"`
	// Физические пределы измерений; 0 — проверка выключена.
	MaxAbsSpeed   float64 `yaml:"max_abs_speed" config:"max_abs_speed"`
	MaxAbsCurrent float64 `yaml:"max_abs_current" config:"max_abs_current"`
}

// LoopConfig — параметры одного PI контура.
type LoopConfig struct {
	Gain         float64 `yaml:"kr" config:"kr"`
	IntegralTime float64 `yaml:"tr" config:"tr"` // секунды
	OutputMax    float64 `yaml:"max" config:"max"`
	OutputMin    float64 `yaml:"min" config:"min"`
}

// IsZero — контур не задан в конфиге.
func (l LoopConfig) IsZero() bool {
	return l == LoopConfig{}
}

// AcquisitionConfig — источник измерений.
type AcquisitionConfig struct {
	Source string `yaml:"source" config:"source"` // sensor | injected

	// sensor
	I2CBus        string  `yaml:"i2c_bus" config:"i2c_bus"` // пусто — шина по умолчанию
	EncoderAddr   uint16  `yaml:"encoder_addr" config:"encoder_addr"`
	EncoderMode   string  `yaml:"encoder_mode" config:"encoder_mode"`
	EncoderScale  float64 `yaml:"encoder_scale" config:"encoder_scale"` // рад/с (или отсчёт) на LSB
	CountsPerRev  float64 `yaml:"counts_per_rev" config:"counts_per_rev"`
	EstimatorSize int     `yaml:"estimator_window" config:"estimator_window"`
	ADCAddr       uint16  `yaml:"adc_addr" config:"adc_addr"`
	CurrentScale  float64 `yaml:"current_scale" config:"current_scale"`   // А/В
	CurrentOffset float64 `yaml:"current_offset" config:"current_offset"` // В

	// injected
	Device string `yaml:"device" config:"device"`
	Baud   int    `yaml:"baud" config:"baud"`
	Driver string `yaml:"driver" config:"driver"` // tarm | bugst
	Format string `yaml:"format" config:"format"` // text | frame
	// Пара старше этого возраста считается неисправностью измерения ("500ms"; "0" — без проверки).
	MaxSampleAge string `yaml:"max_sample_age" config:"max_sample_age"`
}

// ActuationConfig — исполнительное устройство.
type ActuationConfig struct {
	Driver        string  `yaml:"driver" config:"driver"`   // pwm | can | none
	Mapping       string  `yaml:"mapping" config:"mapping"` // split | duty | voltage
	FullScale     float64 `yaml:"full_scale" config:"full_scale"`
	SupplyVoltage float64 `yaml:"supply_voltage" config:"supply_voltage"`

	PWM1Pin     string `yaml:"pwm1_pin" config:"pwm1_pin"`
	PWM2Pin     string `yaml:"pwm2_pin" config:"pwm2_pin"`
	FrequencyHz int    `yaml:"pwm_frequency_hz" config:"pwm_frequency_hz"`

	CANInterface string `yaml:"can_interface" config:"can_interface"`
	CANID        uint32 `yaml:"can_id" config:"can_id"`
}

// TelemetryConfig — запись циклов в последовательный порт (LOG).
type TelemetryConfig struct {
	Enabled   bool   `yaml:"enabled" config:"enabled"`
	Device    string `yaml:"device" config:"device"`
	Baud      int    `yaml:"baud" config:"baud"`
	Driver    string `yaml:"driver" config:"driver"`
	Format    string `yaml:"format" config:"format"`
	QueueSize int    `yaml:"queue_size" config:"queue_size"`
	Every     int    `yaml:"every" config:"every"` // каждый N-й цикл
}

// ConsoleConfig — SSH консоль состояния (только чтение).
type ConsoleConfig struct {
	Enabled        bool   `yaml:"enabled" config:"enabled"`
	ListenAddr     string `yaml:"listen_addr" config:"listen_addr"`
	HostKey        string `yaml:"host_key" config:"host_key"`
	AuthorizedKeys string `yaml:"authorized_keys" config:"authorized_keys"`
}

// RealtimeConfig — настройки процесса для периодического цикла.
type RealtimeConfig struct {
	LockMemory bool `yaml:"lock_memory" config:"lock_memory"`
	Priority   int  `yaml:"priority" config:"priority"` // SCHED_FIFO 1..99; 0 — не менять
}

// LoggingConfig — вывод логов.
type LoggingConfig struct {
	Level      string `yaml:"level" config:"level"`
	File       string `yaml:"file" config:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" config:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" config:"max_backups"`
}

// Default возвращает конфиг по умолчанию (значения прошивки стенда).
func Default() *Config {
	return &Config{
		Controller: ControllerConfig{
			SamplePeriod:   "10ms",
			ReferenceSpeed: 300,
			Speed: LoopConfig{
				Gain:         2.8e-5,
				IntegralTime: 1.5e-3,
				OutputMax:    126,
				OutputMin:    -126,
			},
			Current: LoopConfig{
				Gain:         3.2593,
				IntegralTime: 4.6136,
				OutputMax:    1,
				OutputMin:    -1,
			},
		},
		Acquisition: AcquisitionConfig{
			Source:        SourceInjected,
			EncoderAddr:   8,
			EncoderMode:   EncoderSpeed,
			EncoderScale:  1,
			EstimatorSize: 16,
			ADCAddr:       0x48,
			CurrentScale:  1,
			Device:        "/dev/ttyACM0",
			Baud:          115200,
			Driver:        "tarm",
			Format:        FormatText,
			MaxSampleAge:  "500ms",
		},
		Actuation: ActuationConfig{
			Driver:        ActuatorPWM,
			Mapping:       MappingSplit,
			SupplyVoltage: 12,
			PWM1Pin:       "GPIO12",
			PWM2Pin:       "GPIO13",
			FrequencyHz:   20000,
			CANInterface:  "can0",
			CANID:         0x200,
		},
		Telemetry: TelemetryConfig{
			Enabled:   true,
			Device:    "/dev/ttyACM0",
			Baud:      115200,
			Driver:    "tarm",
			Format:    FormatText,
			QueueSize: 64,
			Every:     1,
		},
		Console: ConsoleConfig{
			ListenAddr: "127.0.0.1:2222",
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}
