package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/wardwatch/internal/client"
	"github.com/pscheid92/wardwatch/internal/platform/logging"
	"github.com/pscheid92/wardwatch/internal/platform/retry"
	"github.com/pscheid92/wardwatch/internal/protocol"
)

type options struct {
	url      string
	id       string
	name     string
	interval time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.url, "url", "ws://localhost:8888/ws", "Relay websocket URL")
	flag.StringVar(&opts.id, "id", "", "Patient id (required)")
	flag.StringVar(&opts.name, "name", "", "Patient display name (required)")
	flag.DurationVar(&opts.interval, "interval", 5*time.Second, "Time between vitals reports")
	logLevel := flag.String("log-level", "info", "Log level")
	flag.Parse()

	if opts.id == "" || opts.name == "" {
		log.Fatal("--id and --name are required")
	}
	if _, err := logging.InitLogger(*logLevel, "text", ""); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen := client.NewVitalsGenerator(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())))
	policy := client.DefaultPolicy()

	for ctx.Err() == nil {
		conn, err := client.Dial(ctx, opts.url, policy)
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			log.Fatalf("Relay refused connection: %v", err)
		}
		if err != nil {
			break
		}

		err = session(ctx, conn, opts, gen)
		_ = conn.Close()
		if ctx.Err() != nil {
			break
		}
		slog.Warn("Connection lost, reconnecting", "error", err)
	}

	slog.Info("Patient simulator stopped", "patient_id", opts.id)
}

// session joins as a producer and reports vitals until ctx ends or the
// connection fails.
func session(ctx context.Context, conn *websocket.Conn, opts options, gen *client.VitalsGenerator) error {
	join, err := client.ProducerJoinFrame(opts.id, opts.name)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	slog.Info("Joined relay", "patient_id", opts.id, "name", opts.name)

	readErr := make(chan error, 1)
	go func() { readErr <- drain(conn) }()

	ticker := time.NewTicker(opts.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "patient leaving")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			return err
		case <-ticker.C:
			reading := gen.Next()
			frame, err := client.ReportFrame(opts.id, reading)
			if err != nil {
				return err
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("send vitals: %w", err)
			}
			slog.Info("Sent vitals",
				"heart_rate", reading.HeartRate,
				"oxygen", reading.OxygenLevel,
				"temperature", reading.Temperature,
				"alerts", reading.Alerts(),
			)
		}
	}
}

// drain reads until the connection fails, logging any error notices from the relay.
func drain(conn *websocket.Conn) error {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if f.Type == protocol.TypeError {
			slog.Warn("Relay rejected frame", "detail", string(f.Data))
		}
	}
}
