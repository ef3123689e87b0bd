package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atharvakonge/papertrade/internal/config"
	"github.com/atharvakonge/papertrade/internal/logger"
)

func testConfig(port string) *config.Config {
	return &config.Config{
		App:    config.AppConfig{Port: port, GinMode: "test"},
		DB:     config.DBConfig{Driver: "memory"},
		Market: config.MarketConfig{Provider: "mock"},
		Auth:   config.AuthConfig{JWTSecret: "secret"},
		Ledger: config.LedgerConfig{StartingCash: 10000, Workers: 1, QueueSize: 1},
	}
}

func TestRun_ListenErrorIsReturned(t *testing.T) {
	done := make(chan error, 1)
	go func() { done <- run(context.Background(), testConfig("-1"), logger.Nop()) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "http server")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after the listener failed")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, testConfig("0"), logger.Nop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancel")
	}
}
