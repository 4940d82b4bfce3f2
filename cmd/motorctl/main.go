// motorctl — каскадный PI регулятор скорости и тока двигателя постоянного тока.
//
// Цикл с периодом Ts: измерение тока и скорости (датчики I2C или подстановка
// из последовательного порта), регулятор скорости, регулятор тока, команда на
// ШИМ/CAN, запись цикла в канал телеметрии.
//
// Использование:
//
//	motorctl -check -config motorctl.yml      — проверить конфиг и вывести параметры
//	motorctl -run -config motorctl.yml        — запуск цикла регулятора
//	motorctl -list-ports                      — список последовательных портов
//	motorctl -send-sample 0.5,300 -port /dev/ttyUSB0 — отправить пару «ток, скорость» на стенд
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shiwa/motorctl/internal/acquisition"
	"github.com/shiwa/motorctl/internal/config"
	"github.com/shiwa/motorctl/internal/frame"
	"github.com/shiwa/motorctl/internal/logger"
	"github.com/shiwa/motorctl/internal/serialport"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
	"github.com/shiwa/motorctl/pkg/motorctl"
)

func main() {
	run := flag.Bool("run", false, "запуск цикла регулятора")
	check := flag.Bool("check", false, "проверить конфиг и выйти")
	listPorts := flag.Bool("list-ports", false, "вывести список последовательных портов и выйти")
	sendSample := flag.String("send-sample", "", "отправить пару \"ток,скорость\" в порт подстановки и выйти")
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию motorctl.yml)")
	port := flag.String("port", "", "последовательный порт подстановки и телеметрии (переопределяет config)")
	baud := flag.Int("baud", 0, "скорость порта (переопределяет config)")
	source := flag.String("source", "", "источник измерений: sensor | injected (переопределяет config)")
	actuator := flag.String("actuator", "", "привод: pwm | can | none (переопределяет config)")
	logLevel := flag.String("log-level", "", "уровень логов: debug, info, warn, error")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	flag.Parse()

	if *listPorts {
		ports, err := serialport.List()
		if err != nil {
			log.Fatalf("список портов: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *port != "" {
		cfg.Acquisition.Device = *port
		cfg.Telemetry.Device = *port
	}
	if *baud != 0 {
		cfg.Acquisition.Baud = *baud
		cfg.Telemetry.Baud = *baud
	}
	if *source != "" {
		cfg.Acquisition.Source = *source
	}
	if *actuator != "" {
		cfg.Actuation.Driver = *actuator
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	config.ApplyDefaults(cfg)

	logger.Quiet = *quiet
	if err := logger.Init(logger.Options{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	}); err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logger.Sync()

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config: %v", err)
	}

	switch {
	case *sendSample != "":
		if err := runSendSample(cfg, *sendSample); err != nil {
			log.Fatalf("send-sample: %v", err)
		}
	case *run:
		runDaemonWithShutdown(cfg, *quiet)
	default:
		printSummary(cfg)
		if !*check && !*quiet {
			fmt.Println("motorctl: для запуска регулятора используйте -run.")
		}
	}
}

func loadConfig(path string) (*pkgconfig.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "motorctl.yml"
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !explicit {
		return pkgconfig.Default(), nil
	}
	return config.Load(path)
}

func printSummary(cfg *pkgconfig.Config) {
	ctl := cfg.Controller
	fmt.Printf("Ts=%s  reference=%g rad/s\n", ctl.SamplePeriod, ctl.ReferenceSpeed)
	fmt.Printf("speed loop:   Kr=%g Tr=%g out=[%g, %g]\n", ctl.Speed.Gain, ctl.Speed.IntegralTime, ctl.Speed.OutputMin, ctl.Speed.OutputMax)
	fmt.Printf("current loop: Kr=%g Tr=%g out=[%g, %g]\n", ctl.Current.Gain, ctl.Current.IntegralTime, ctl.Current.OutputMin, ctl.Current.OutputMax)
	switch cfg.Acquisition.Source {
	case pkgconfig.SourceSensor:
		fmt.Printf("source:   sensor (encoder 0x%02X %s, adc 0x%02X)\n",
			cfg.Acquisition.EncoderAddr, cfg.Acquisition.EncoderMode, cfg.Acquisition.ADCAddr)
	default:
		fmt.Printf("source:   injected %s @ %d (%s)\n", cfg.Acquisition.Device, cfg.Acquisition.Baud, cfg.Acquisition.Format)
	}
	fmt.Printf("actuator: %s (%s)\n", cfg.Actuation.Driver, cfg.Actuation.Mapping)
	if cfg.Telemetry.Enabled {
		fmt.Printf("telemetry: %s @ %d (%s, every %d)\n", cfg.Telemetry.Device, cfg.Telemetry.Baud, cfg.Telemetry.Format, cfg.Telemetry.Every)
	}
}

// runSendSample отправляет одну пару «ток, скорость» в формате подстановки.
func runSendSample(cfg *pkgconfig.Config, sample string) error {
	current, speed, ok := acquisition.ParseSampleLine(sample)
	if !ok {
		return fmt.Errorf("bad sample %q, want \"current,speed\"", sample)
	}
	a := cfg.Acquisition
	p, err := serialport.Open(serialport.Options{Driver: a.Driver, Device: a.Device, Baud: a.Baud})
	if err != nil {
		return err
	}
	defer p.Close()
	var msg []byte
	if a.Format == pkgconfig.FormatFrame {
		msg = frame.EncodeSample(frame.Sample{Current: float32(current), Speed: float32(speed)})
	} else {
		msg = []byte(fmt.Sprintf("%g,%g\n", current, speed))
	}
	if _, err := p.Write(msg); err != nil {
		return fmt.Errorf("write %s: %w", p.Name(), err)
	}
	logger.Info("sent current=%g speed=%g to %s", current, speed, p.Name())
	return nil
}

// runDaemonWithShutdown запускает цикл через motorctl.RunDaemon с контекстом;
// по SIGINT/SIGTERM контекст отменяется, привод переводится в безопасное состояние.
func runDaemonWithShutdown(cfg *pkgconfig.Config, quiet bool) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	if err := motorctl.RunDaemon(ctx, cfg, quiet); err != nil {
		logger.Error("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}
