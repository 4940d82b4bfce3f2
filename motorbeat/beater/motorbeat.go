// Package beater реализует интерфейс Beater для Motorbeat (libbeat v7).
package beater

import (
	"context"
	"fmt"

	"github.com/elastic/beats/v7/libbeat/beat"
	"github.com/elastic/beats/v7/libbeat/common"
	"github.com/elastic/beats/v7/libbeat/logp"
	pkgconfig "github.com/shiwa/motorctl/pkg/config"
	"github.com/shiwa/motorctl/pkg/motorctl"
)

// Config — секция motorbeat: параметры публикации и конфиг регулятора.
type Config struct {
	PublishEvery int              `config:"publish_every"` // публиковать каждый N-й цикл
	QueueSize    int              `config:"queue_size"`
	Motor        pkgconfig.Config `config:",inline"`
}

func defaultConfig() Config {
	return Config{
		PublishEvery: 10,
		QueueSize:    256,
		Motor:        *pkgconfig.Default(),
	}
}

// Motorbeat реализует beat.Beater.
type Motorbeat struct {
	done   chan struct{}
	config Config
	client beat.Client
}

// New создаёт Beater из конфигурации Beat.
func New(b *beat.Beat, cfg *common.Config) (beat.Beater, error) {
	sub, err := cfg.Child("motorbeat", -1)
	if err != nil || sub == nil {
		return nil, fmt.Errorf("конфиг motorbeat не найден: %v", err)
	}
	config := defaultConfig()
	if err := sub.Unpack(&config); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфига motorbeat: %w", err)
	}
	return &Motorbeat{
		done:   make(chan struct{}),
		config: config,
	}, nil
}

// Run запускает цикл регулятора до Stop().
func (bt *Motorbeat) Run(b *beat.Beat) error {
	logp.Info("motorbeat запущен (Ts=%s, ref=%g)", bt.config.Motor.Controller.SamplePeriod, bt.config.Motor.Controller.ReferenceSpeed)
	client, err := b.Publisher.Connect()
	if err != nil {
		return fmt.Errorf("publisher: %w", err)
	}
	bt.client = client

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-bt.done
		cancel()
	}()

	sink := newEventSink(client, bt.config.QueueSize, bt.config.PublishEvery)
	if err := motorctl.RunDaemon(ctx, &bt.config.Motor, true, motorctl.WithSinks(sink)); err != nil {
		logp.Warn("motorctl завершён: %v", err)
		return err
	}
	st := sink.Stats()
	logp.Info("motorbeat остановлен: опубликовано %d, отброшено %d", st.Sent, st.Dropped)
	return nil
}

// Stop останавливает Run.
func (bt *Motorbeat) Stop() {
	if bt.client != nil {
		bt.client.Close()
	}
	close(bt.done)
}
