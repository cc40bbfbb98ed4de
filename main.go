// Package main provides a voice session service that joins a LiveKit room
// with a remote agent and drives a browser UI from the agent's state and
// audio.
//
// Usage:
//
//	zwfm-voice [-config path/to/config.json]
//
// If -config is not specified, the service looks for config.json in the same
// directory as the binary.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/oszuidwest/zwfm-voice/internal/audio"
	"github.com/oszuidwest/zwfm-voice/internal/auth"
	"github.com/oszuidwest/zwfm-voice/internal/config"
	"github.com/oszuidwest/zwfm-voice/internal/connection"
	"github.com/oszuidwest/zwfm-voice/internal/eventlog"
	"github.com/oszuidwest/zwfm-voice/internal/livekit"
	"github.com/oszuidwest/zwfm-voice/internal/session"
	"github.com/oszuidwest/zwfm-voice/internal/trackstate"
	"github.com/oszuidwest/zwfm-voice/internal/util"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.json next to binary)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		return
	}

	if *configPath == "" {
		execPath, err := os.Executable()
		if err != nil {
			slog.Error("failed to get executable path", "error", err)
			os.Exit(1)
		}
		*configPath = filepath.Join(filepath.Dir(execPath), "config.json")
	}

	slog.Info("using config file", "path", *configPath)

	cfg := config.New(*configPath)
	if err := cfg.Load(); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	snap := cfg.Snapshot()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: snap.SlogLevel()})))

	minter, cloud, err := tokenSources(&snap)
	if err != nil {
		slog.Error("failed to configure token issuing", "error", err)
		os.Exit(1)
	}

	negotiator := connection.NewNegotiator(
		func() connection.Settings { return connectionSettings(cfg.Snapshot()) },
		cloud,
		connection.NewRelayClient(snap.RelayTimeout, snap.RelayAPIKey),
	)

	bands := audio.NewBandProcessor(snap.VisualizerBands, audio.WithInterval(snap.VisualizerInterval))
	controller := session.NewController(negotiator, roomConnector(livekit.NewConnector()), bands, eventlog.NewLogger(eventlog.DefaultCapacity))

	var gate *auth.Gate
	if snap.HasLogin() {
		gate, err = auth.NewGate(snap.SessionSecret, snap.Passwords)
		if err != nil {
			slog.Error("failed to create login gate", "error", err)
			os.Exit(1)
		}
		slog.Info("login gate enabled", "passwords", len(snap.Passwords))
	} else {
		slog.Warn("no login passwords configured - the interface is open")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sessionDone := make(chan struct{})
	go func() {
		controller.Run(ctx)
		close(sessionDone)
	}()

	version := NewVersionChecker(githubAPIBase)
	version.Start()

	srv := NewServer(cfg, negotiator, controller, gate, minter, version)
	httpServer := srv.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, util.ShutdownSignals()...)
	<-sigChan

	slog.Info("shutting down")

	version.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Leave the room before exiting.
	negotiator.Disconnect()
	cancel()
	select {
	case <-sessionDone:
	case <-shutdownCtx.Done():
		slog.Warn("timed out leaving the room")
	}

	slog.Info("shutdown complete")
}

// tokenSources returns the local minter, if LiveKit credentials are set, and
// the issuer used by the cloud mode. A hosted token service takes precedence
// over local minting.
func tokenSources(snap *config.Snapshot) (*livekit.Minter, connection.TokenIssuer, error) {
	var minter *livekit.Minter
	if snap.HasLiveKitCredentials() {
		m, err := livekit.NewMinter(snap.LiveKitKey, snap.LiveKitSecret, snap.LiveKitTTL)
		if err != nil {
			return nil, nil, err
		}
		minter = m
	}

	if snap.HasCloudTokenService() {
		client, err := connection.NewCloudTokenClient(connection.CloudCredentials{
			TokenURL:     snap.CloudTokenURL,
			AuthURL:      snap.CloudAuthURL,
			ClientID:     snap.CloudClientID,
			ClientSecret: snap.CloudSecret,
			Scopes:       snap.CloudScopes,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("cloud mode uses hosted token service", "url", snap.CloudTokenURL)
		return minter, client, nil
	}

	if minter != nil {
		slog.Info("cloud mode mints tokens locally", "url", snap.LiveKitURL)
		return minter, minter, nil
	}
	return nil, nil, nil
}

// connectionSettings maps the configuration to negotiator settings.
func connectionSettings(snap config.Snapshot) connection.Settings {
	return connection.Settings{
		ManualWSURL:  snap.ManualWSURL,
		ManualToken:  snap.ManualToken,
		CloudWSURL:   snap.CloudEndpoint(),
		RelayBaseURL: snap.RelayBaseURL,
	}
}

// roomConnector adapts the LiveKit connector to the session controller.
func roomConnector(c *livekit.Connector) session.ConnectFunc {
	return func(ctx context.Context, url, token string, bus *trackstate.Bus) (session.Room, error) {
		room, err := c.Connect(ctx, url, token, bus)
		if err != nil {
			// Avoid returning a typed nil interface.
			return nil, err
		}
		return room, nil
	}
}
