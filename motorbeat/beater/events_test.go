package beater

import (
	"sync"
	"testing"
	"time"

	"github.com/elastic/beats/v7/libbeat/beat"
	"github.com/shiwa/motorctl/pkg/motorctl"
)

type fakeClient struct {
	mu     sync.Mutex
	events []beat.Event
}

func (c *fakeClient) Publish(e beat.Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

func (c *fakeClient) PublishAll(es []beat.Event) {
	for _, e := range es {
		c.Publish(e)
	}
}

func (c *fakeClient) Close() error { return nil }

func TestToEvent(t *testing.T) {
	started := time.Unix(1700000000, 0)
	e := toEvent(started, motorctl.Record{TimestampMs: 250, Reference: 300, Speed: 12, Current: 0.5, Command: 1, Flags: motorctl.FlagHeld})
	if !e.Timestamp.Equal(started.Add(250 * time.Millisecond)) {
		t.Errorf("Timestamp = %v", e.Timestamp)
	}
	v, err := e.Fields.GetValue("motor.speed")
	if err != nil || v != 12.0 {
		t.Errorf("motor.speed = %v, %v", v, err)
	}
	flags, _ := e.Fields.GetValue("motor.flags")
	if fl, ok := flags.([]string); !ok || len(fl) != 1 || fl[0] != "held" {
		t.Errorf("motor.flags = %v", flags)
	}
}

func TestEventSink_Decimation(t *testing.T) {
	c := &fakeClient{}
	s := newEventSink(c, 16, 5)
	for i := 0; i < 12; i++ {
		s.Emit(motorctl.Record{TimestampMs: uint32(i)})
	}
	// 13-я запись попала бы под прореживание, но неисправность публикуется всегда.
	s.Emit(motorctl.Record{TimestampMs: 12, Flags: motorctl.FlagSpeedFault})
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if len(c.events) != 4 {
		t.Errorf("опубликовано %d событий, ожидали 4", len(c.events))
	}
	if st := s.Stats(); st.Sent != 4 {
		t.Errorf("Stats = %+v", st)
	}
	last, _ := c.events[len(c.events)-1].Fields.GetValue("motor.fault")
	if last != true {
		t.Errorf("последнее событие должно быть неисправностью: %v", last)
	}
}
