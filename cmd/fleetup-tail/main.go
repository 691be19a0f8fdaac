// fleetup-tail follows the fleet event topic and prints batch activity
// as it happens. Ops tooling for watching upgrades driven elsewhere.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/andrej220/fleetup/internal/events"
	"github.com/andrej220/fleetup/internal/fleet"
	"github.com/andrej220/fleetup/internal/lg"
)

var (
	brokers = flag.String("brokers", "localhost:9092", "comma-separated Kafka brokers")
	topic   = flag.String("topic", "fleet-events", "event topic")
	groupID = flag.String("group", "fleetup-tail", "consumer group id")
	debug   = flag.Bool("debug", false, "enable debug logging")
)

func main() {
	flag.Parse()

	logger := lg.New(&lg.Config{ServiceName: "fleetup-tail", Debug: *debug, Format: "console"})
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	consumer := events.NewConsumer(events.ConsumerConfig{
		Brokers: strings.Split(*brokers, ","),
		GroupID: *groupID,
		Topic:   *topic,
	})
	defer consumer.Close()

	logger.Info("tailing events", lg.String("topic", *topic))
	for {
		ev, err := consumer.Read(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error("read event", lg.Err(err))
			return
		}
		printEvent(ev)
	}
}

func printEvent(ev fleet.Event) {
	switch ev.Type {
	case fleet.EventLine:
		fmt.Printf("%s host=%d | %s\n", ev.JobID, ev.HostID, ev.Line)
	case fleet.EventResult:
		res := ev.Result
		fmt.Printf("%s host=%d > %s %s count=%d %s\n",
			ev.JobID, ev.HostID, res.Name, res.Status, res.Count, res.Note)
	}
}
