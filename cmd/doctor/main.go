package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pscheid92/wardwatch/internal/client"
	"github.com/pscheid92/wardwatch/internal/domain"
	"github.com/pscheid92/wardwatch/internal/platform/logging"
	"github.com/pscheid92/wardwatch/internal/platform/retry"
	"github.com/pscheid92/wardwatch/internal/protocol"
)

func main() {
	url := flag.String("url", "ws://localhost:8888/ws", "Relay websocket URL")
	logLevel := flag.String("log-level", "warn", "Log level")
	flag.Parse()

	if _, err := logging.InitLogger(*logLevel, "text", ""); err != nil {
		log.Fatalf("Failed to initialize logging: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for ctx.Err() == nil {
		conn, err := client.Dial(ctx, *url, client.DefaultPolicy())
		var perm *retry.PermanentError
		if errors.As(err, &perm) {
			log.Fatalf("Relay refused connection: %v", err)
		}
		if err != nil {
			break
		}

		err = watch(ctx, conn, os.Stdout)
		_ = conn.Close()
		if ctx.Err() != nil {
			break
		}
		slog.Warn("Connection lost, reconnecting", "error", err)
	}
}

// watch joins as an observer and prints every event until the connection ends.
func watch(ctx context.Context, conn *websocket.Conn, out io.Writer) error {
	join, err := client.ObserverJoinFrame()
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, join); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	stopClose := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "doctor leaving")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = conn.Close()
	})
	defer stopClose()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			slog.Warn("Unreadable frame from relay", "error", err)
			continue
		}
		if line := render(f); line != "" {
			fmt.Fprintln(out, line)
		}
	}
}

type presenceNotice struct {
	Kind        domain.PresenceKind `json:"kind"`
	ProducerID  string              `json:"patientId"`
	DisplayName string              `json:"name"`
}

func render(f protocol.Frame) string {
	switch f.Type {
	case protocol.TypeSnapshot:
		var records []domain.ProducerRecord
		if err := json.Unmarshal(f.Data, &records); err != nil {
			return "patients: (unreadable)"
		}
		if len(records) == 0 {
			return "patients: none connected"
		}
		names := make([]string, 0, len(records))
		for _, r := range records {
			names = append(names, fmt.Sprintf("%s (%s)", r.DisplayName, r.ProducerID))
		}
		return "patients: " + strings.Join(names, ", ")

	case protocol.TypePresence:
		var p presenceNotice
		if err := json.Unmarshal(f.Data, &p); err != nil {
			return ""
		}
		return fmt.Sprintf("patient %s (%s) %s", p.DisplayName, p.ProducerID, p.Kind)

	case protocol.TypeMeasurement:
		var m domain.MeasurementEvent
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return ""
		}
		line := fmt.Sprintf("[%s] patient %s: HR %d bpm, SpO2 %d%%, temp %.1f°C",
			m.Timestamp.Local().Format(time.TimeOnly), m.ProducerID, m.HeartRate, m.OxygenLevel, m.Temperature)
		if m.Note != nil && *m.Note != "" {
			line += ", note: " + *m.Note
		}
		if len(m.Alerts) > 0 {
			line += "  ALERT: " + strings.Join(m.Alerts, ", ")
		}
		return line

	case protocol.TypeFileAvailable:
		var e domain.FileEvent
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return ""
		}
		return fmt.Sprintf("patient %s uploaded %s (%d bytes, %s) at %s", e.ProducerID, e.FileName, e.FileSize, e.FileType, e.FilePath)

	case protocol.TypeError:
		return "relay error: " + string(f.Data)

	default:
		return ""
	}
}
