package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Spec-DY/Drone-Panel/internal/model"
)

func main() {
	brokerAddr := flag.String("broker", "tcp://localhost:1883", "MQTT broker address, e.g. tcp://localhost:1883")
	devices := flag.Int("devices", 3, "Number of simulated devices")
	prefix := flag.String("prefix", "sim-drone", "Device identifier prefix")
	interval := flag.Duration("interval", time.Second, "Interval between samples per device")
	count := flag.Int("count", 0, "Samples per device before exiting (0 runs until interrupted)")
	batch := flag.Int("batch", 0, "Buffer this many samples per device and publish them on telemetry/batch")
	lat := flag.Float64("lat", 51.5007, "Latitude the simulated flights circle around")
	lon := flag.Float64("lon", -0.1246, "Longitude the simulated flights circle around")
	acks := flag.Bool("acks", true, "Subscribe to receipts and log failures")

	flag.Parse()

	if *devices <= 0 {
		log.Fatal("-devices must be positive")
	}

	clientID := "telemetry-sim-" + uuid.NewString()[:8]
	opts := mqtt.NewClientOptions().AddBroker(*brokerAddr).SetClientID(clientID)
	opts = opts.SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalf("failed to connect to broker: %v", token.Error())
	}
	log.Printf("connected to MQTT broker %s as %s", *brokerAddr, clientID)
	defer client.Disconnect(250)

	if *acks {
		token := client.Subscribe("telemetry/#", 0, logReceipt)
		if token.Wait() && token.Error() != nil {
			log.Fatalf("subscribe to receipts: %v", token.Error())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < *devices; i++ {
		d := &device{
			client:   client,
			flight:   newFlight(fmt.Sprintf("%s-%d", *prefix, i+1), *lat, *lon, time.Now().UnixNano()+int64(i)),
			interval: *interval,
			count:    *count,
			batch:    *batch,
		}
		g.Go(func() error { return d.run(ctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("simulation failed: %v", err)
	}
	log.Print("simulation finished, disconnecting")
}

type device struct {
	client   mqtt.Client
	flight   *flight
	interval time.Duration
	count    int
	batch    int

	pending []model.Sample
}

func (d *device) run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for sent := 1; ; sent++ {
		if err := d.emit(d.flight.next(time.Now())); err != nil {
			return err
		}
		if d.count > 0 && sent >= d.count {
			return d.flush()
		}

		select {
		case <-ctx.Done():
			if err := d.flush(); err != nil {
				return err
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *device) emit(s model.Sample) error {
	if d.batch <= 0 {
		return d.publish("telemetry/"+s.DeviceID, s)
	}
	d.pending = append(d.pending, s)
	if len(d.pending) >= d.batch {
		return d.flush()
	}
	return nil
}

func (d *device) flush() error {
	if len(d.pending) == 0 {
		return nil
	}
	err := d.publish("telemetry/batch", d.pending)
	d.pending = d.pending[:0]
	return err
}

func (d *device) publish(topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	token := d.client.Publish(topic, 0, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

type receipt struct {
	Status   string `json:"status"`
	Kind     string `json:"kind"`
	Error    string `json:"error"`
	ID       int64  `json:"id"`
	DeviceID string `json:"deviceId"`
	Count    int    `json:"count"`
}

func logReceipt(_ mqtt.Client, msg mqtt.Message) {
	var r receipt
	if err := json.Unmarshal(msg.Payload(), &r); err != nil {
		return
	}
	switch {
	case r.Status == "accepted" && r.Count > 0:
		log.Printf("%s: batch of %d stored", msg.Topic(), r.Count)
	case r.Status == "accepted":
		log.Printf("%s: stored id=%d", msg.Topic(), r.ID)
	default:
		log.Printf("%s: %s (%s) %s", msg.Topic(), r.Status, r.Kind, r.Error)
	}
}
