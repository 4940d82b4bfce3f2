package beater

import (
	"time"

	"github.com/elastic/beats/v7/libbeat/beat"
	"github.com/elastic/beats/v7/libbeat/common"
	"github.com/shiwa/motorctl/pkg/motorctl"
)

// newEventSink публикует записи циклов как события Beat. Прореживание every
// не касается записей с неисправностью.
func newEventSink(client beat.Client, queue, every int) *motorctl.AsyncSink {
	started := time.Now()
	publish := func(r motorctl.Record) error {
		client.Publish(toEvent(started, r))
		return nil
	}
	return motorctl.NewFuncSink("beat", publish, motorctl.AsyncOptions{
		Queue:      queue,
		Every:      every,
		KeepFaults: true,
	})
}

func toEvent(started time.Time, r motorctl.Record) beat.Event {
	motor := common.MapStr{
		"cycle_ms":  r.TimestampMs,
		"reference": r.Reference,
		"speed":     r.Speed,
		"current":   r.Current,
		"command":   r.Command,
		"fault":     r.Fault(),
	}
	if flags := motorctl.FlagNames(r.Flags); len(flags) > 0 {
		motor["flags"] = flags
	}
	return beat.Event{
		Timestamp: started.Add(time.Duration(r.TimestampMs) * time.Millisecond),
		Fields: common.MapStr{
			"type":  "motorctl",
			"motor": motor,
		},
	}
}
