// Command wsprobe opens one live-session websocket, prints every decoded frame and optionally sends a message.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/C23038/URITOMO-Frontend/internal/config"
	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
	"github.com/C23038/URITOMO-Frontend/internal/service/bootstrap"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/dispatch"
	"github.com/C23038/URITOMO-Frontend/internal/service/transport"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: no .env file loaded: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	sessionID := flag.String("session", "", "live session id to connect to directly")
	meetingID := flag.String("meeting", "", "meeting id to bootstrap a session for (ignored with -session)")
	text := flag.String("text", "", "message to send once the backend acknowledges the socket")
	lang := flag.String("lang", "auto", "language sent with -text")
	wait := flag.Duration("wait", 15*time.Second, "how long to listen before disconnecting")
	flag.Parse()

	if *sessionID == "" && *meetingID == "" {
		flag.Usage()
		fmt.Fprintln(os.Stderr, "either -session or -meeting is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *wait)
	defer cancel()

	id := *sessionID
	if id == "" {
		api := backend.NewClient(cfg.API.BaseURL, cfg.API.Token, cfg.API.BootstrapTimeout, nil)
		sess, err := bootstrap.NewClient(api, log).Start(ctx, *meetingID)
		if err != nil {
			log.Error("bootstrap failed", "meeting", *meetingID, "error", err)
			os.Exit(1)
		}
		id = sess.ID
	}

	url, err := transport.BuildURL(cfg.Socket.BaseURL, cfg.Socket.Path, id)
	if err != nil {
		log.Error("invalid socket address", "error", err)
		os.Exit(1)
	}

	opts := transport.DefaultOptions()
	opts.URL = url
	opts.ConnectTimeout = cfg.Socket.ConnectTimeout
	opts.Reconnect = false
	counters := diagnostics.New()
	conn := transport.New(opts, log, counters)

	conn.OnStateChange(func(s meeting.ConnectionState) {
		log.Info("state", "state", s)
	})
	conn.OnMessage(func(evt dispatch.Event) {
		payload, _ := json.Marshal(evt)
		fmt.Printf("%-20s %s\n", evt.Type(), payload)

		if _, ok := evt.(dispatch.SessionConnected); ok && *text != "" {
			frame := dispatch.ChatSend{Type: cfg.Socket.ChatSendType, Text: *text, Lang: *lang, ClientMsgID: uuid.NewString()}
			if err := conn.Send(frame); err != nil {
				log.Warn("send failed", "error", err)
			}
		}
	})

	log.Info("connecting", "url", url)
	conn.Connect(ctx)
	<-ctx.Done()
	conn.Disconnect()

	stats, _ := json.MarshalIndent(counters.Snapshot(), "", "  ")
	fmt.Println(string(stats))
}
