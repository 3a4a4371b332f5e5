package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"tracker-server/internal/config"
	"tracker-server/internal/db"
	"tracker-server/internal/httpapi"
	"tracker-server/internal/migrate"
	tracker "tracker-server/internal/modules/tracker"
	"tracker-server/internal/mqtt"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqliteDriver", cfg.SQLiteDriver,
		"sqlitePath", cfg.SQLitePath,
		"sqliteMaxOpenConns", cfg.SQLiteMaxOpenConns,
		"sqliteMaxIdleConns", cfg.SQLiteMaxIdleConns,
		"sqliteConnMaxLifetime", cfg.SQLiteConnMaxLifetime,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttGPSTopic", cfg.MQTTGPSTopic,
		"mqttControlTopic", cfg.MQTTControlTopic,
	)

	handle, err := db.Connect(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := handle.Close(); closeErr != nil {
			slog.Error("store close", "error", closeErr)
		}
	}()

	sqlDB, err := handle.DB()
	if err != nil {
		return err
	}
	if err := migrate.Run(sqlDB); err != nil {
		return err
	}
	if err := handle.Ping(); err != nil {
		return err
	}
	slog.Info("store connection successful")

	mqttClient, err := mqtt.NewClient(cfg, slog.Default())
	if err != nil {
		return err
	}

	mux := httpapi.NewMux(handle, cfg.StaticDir)
	trackerService, hub := tracker.RegisterFeature(mux, handle, mqttClient, slog.Default())

	// Attach the pipeline before Connect: the broker may deliver queued
	// telemetry right after CONNACK.
	mqttClient.SetMessageHandler(trackerService.HandleMessage)

	// Short timeout for the initial connect so startup is not blocked when
	// the broker is down; the paho client keeps retrying in the background.
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	err = mqttClient.Connect(connectCtx)
	connectCancel()
	if err != nil {
		slog.Warn("mqtt connection failed (continuing without mqtt)", "error", err)
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop intake first so nothing new enters the pipeline, then drop the
	// viewer sessions, then drain HTTP. The store closes last via defer.
	slog.Info("mqtt disconnecting")
	mqttClient.Disconnect()

	slog.Info("closing viewer sessions")
	hub.Close()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
