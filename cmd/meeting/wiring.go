package main

import (
	"log/slog"
	"net/http"

	"github.com/C23038/URITOMO-Frontend/internal/config"
	"github.com/C23038/URITOMO-Frontend/internal/model/meeting"
	"github.com/C23038/URITOMO-Frontend/internal/service/backend"
	"github.com/C23038/URITOMO-Frontend/internal/service/bootstrap"
	"github.com/C23038/URITOMO-Frontend/internal/service/diagnostics"
	"github.com/C23038/URITOMO-Frontend/internal/service/session"
	"github.com/C23038/URITOMO-Frontend/internal/service/transport"
)

func newAPIClient(c *config.Config) *backend.Client {
	return backend.NewClient(c.API.BaseURL, c.API.Token, c.API.BootstrapTimeout, nil)
}

func newBootstrapper(c *config.Config, api *backend.Client, log *slog.Logger) session.Bootstrapper {
	if c.Session.Mode == meeting.ModeDirect {
		return bootstrap.Direct{}
	}
	return bootstrap.NewClient(api, log)
}

func transportOptions(c *config.Config, url string) transport.Options {
	opts := transport.DefaultOptions()
	opts.URL = url
	opts.ConnectTimeout = c.Socket.ConnectTimeout
	opts.ReadTimeout = c.Socket.ReadTimeout
	opts.WriteTimeout = c.Socket.WriteTimeout
	opts.PingInterval = c.Socket.PingInterval
	opts.Reconnect = c.Socket.ReconnectEnabled
	opts.MaxRetries = c.Socket.ReconnectRetries
	opts.RetryBaseDelay = c.Socket.ReconnectBaseDelay
	opts.StableAfter = c.Socket.StableAfter
	if c.API.Token != "" {
		opts.Header = http.Header{"Authorization": []string{"Bearer " + c.API.Token}}
	}
	return opts
}

// newTransportFactory builds one websocket connection per bootstrapped session.
func newTransportFactory(c *config.Config, log *slog.Logger, counters *diagnostics.Counters) session.TransportFactory {
	return func(s meeting.Session) (session.Transport, error) {
		url, err := transport.BuildURL(c.Socket.BaseURL, c.Socket.Path, s.ID)
		if err != nil {
			return nil, err
		}
		return transport.New(transportOptions(c, url), log.With("session", s.ID), counters), nil
	}
}
