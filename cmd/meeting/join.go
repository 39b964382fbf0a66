package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/C23038/URITOMO-Frontend/internal/handler"
	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/render"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/language"
	"github.com/C23038/URITOMO-Frontend/internal/service/room"
	"github.com/C23038/URITOMO-Frontend/internal/service/session"
	"github.com/C23038/URITOMO-Frontend/internal/storage"
)

func joinCmd() *cobra.Command {
	var (
		name    string
		serve   bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "join <meetingId>",
		Short: "Join a meeting and chat from the terminal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			if name == "" {
				name = cfg.Session.UserName
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runJoin(ctx, args[0], name, serve, !noColor, os.Stdin, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name used to recognise your own messages (defaults to USER_NAME)")
	cmd.Flags().BoolVar(&serve, "serve", false, "also serve the session over the local HTTP API")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	return cmd
}

func runJoin(ctx context.Context, meetingID, name string, serve, pretty bool, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	counters := diagnostics.New()
	api := newAPIClient(cfg)

	resolver, err := language.NewResolver(cfg.Session.LangHint)
	if err != nil {
		return err
	}

	options := []session.Option{session.WithCounters(counters), session.WithLanguage(resolver)}
	var archive *storage.Archive
	if cfg.Archive.Enabled() {
		archive, err = storage.Open(cfg.Archive.Path, logger)
		if err != nil {
			return err
		}
		defer func() { _ = archive.Close() }()
		options = append(options, session.WithArchive(archive))
	}

	facade := session.New(session.Options{
		MeetingID:        meetingID,
		LocalName:        name,
		Dedupe:           cfg.Session.DedupeIDs,
		ChatSendType:     cfg.Socket.ChatSendType,
		BootstrapTimeout: cfg.API.BootstrapTimeout,
	}, newBootstrapper(cfg, api, logger), newTransportFactory(cfg, logger, counters), logger, options...)
	defer facade.Close()

	updates, unsubscribe := facade.Subscribe()
	defer unsubscribe()

	if err := facade.Start(ctx); err != nil {
		return err
	}

	if serve {
		deps := handler.Deps{Session: facade, Rooms: room.NewService(api), Logger: logger}
		if archive != nil {
			deps.History = archive
		}
		srv := newServer(cfg.Server.Addr, handler.NewRouter(deps))
		go func() {
			logger.Info("local api listening", "addr", cfg.Server.Addr)
			if err := runServer(ctx, srv); err != nil {
				logger.Error("local api stopped", "error", err)
			}
		}()
	}

	r := render.New(pretty)
	fmt.Fprintf(out, "joining meeting %s as %q, type /help for commands\n", meetingID, name)

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			fmt.Fprint(out, r.Update(u))
			if u.Kind == session.UpdateState && u.State == meeting.StateFailed {
				if err := facade.Err(); err != nil {
					return err
				}
				return errors.New("connection failed")
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleInput(line, facade, out); quit {
				return nil
			}
		}
	}
}

// inputTarget is what terminal input acts on.
type inputTarget interface {
	SendText(text string) error
	UpdateProfile(name string) error
	Participants() []meeting.Participant
	Stats() diagnostics.Snapshot
}

// handleInput runs one line typed by the user. It reports whether the user asked to quit.
func handleInput(line string, target inputTarget, out io.Writer) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := target.SendText(line); err != nil {
			fmt.Fprintf(out, "* not sent: %v\n", err)
		}
		return false
	}

	command, arg, _ := strings.Cut(line, " ")
	switch command {
	case "/quit", "/exit":
		return true
	case "/name":
		if err := target.UpdateProfile(arg); err != nil {
			fmt.Fprintf(out, "* %v\n", err)
		}
	case "/who":
		render.ParticipantsTable(out, target.Participants())
	case "/stats":
		s := target.Stats()
		fmt.Fprintf(out, "* sent=%d dropped=%d matched(id)=%d matched(text)=%d unmatched=%d duplicates=%d reconnects=%d\n",
			s.Sent, s.SendDropped, s.TranslationMatchedByID, s.TranslationMatchedByText,
			s.TranslationUnmatched, s.DuplicateChat, s.Reconnect)
	case "/help":
		fmt.Fprintln(out, "* /name <display name>, /who, /stats, /quit; anything else is sent as a message")
	default:
		fmt.Fprintf(out, "* unknown command %s\n", command)
	}
	return false
}
