package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/api"
	"github.com/warp/clanpoints/bot"
	"github.com/warp/clanpoints/config"
	"github.com/warp/clanpoints/ledger"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenPersister_Backends(t *testing.T) {
	dir := t.TempDir()

	p, audit, err := openPersister(config.StorageConfig{Backend: "memory"})
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.Nil(t, audit)

	p, audit, err = openPersister(config.StorageConfig{Backend: "json", Path: filepath.Join(dir, "points.json")})
	require.NoError(t, err)
	assert.NotNil(t, p)
	assert.Nil(t, audit)

	p, audit, err = openPersister(config.StorageConfig{Backend: "sqlite", Path: filepath.Join(dir, "ledger.db")})
	require.NoError(t, err)
	assert.NotNil(t, audit)
	require.NoError(t, p.Close())

	p, _, err = openPersister(config.StorageConfig{Backend: "badger", Path: filepath.Join(dir, "badger")})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	_, _, err = openPersister(config.StorageConfig{Backend: "floppy"})
	assert.Error(t, err)
}

func TestOpenStore_CorruptLedgerStartsEmpty(t *testing.T) {
	// GIVEN: a ledger file that is not JSON
	path := filepath.Join(t.TempDir(), "points.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	// WHEN: the store is opened
	st, audit, err := openStore(context.Background(), config.StorageConfig{Backend: "json", Path: path}, discardLogger())

	// THEN: the bot starts with an empty ledger and an in-memory audit log
	require.NoError(t, err)
	assert.NotNil(t, audit)
	communities, err := st.Communities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, communities)

	// AND: closing the store leaves the corrupt bytes recoverable
	require.NoError(t, st.Close())
	aside, err := filepath.Glob(path + ".corrupt-*")
	require.NoError(t, err)
	require.Len(t, aside, 1)
	data, err := os.ReadFile(aside[0])
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(data))
	assert.NoFileExists(t, path)
}

func TestCapabilities(t *testing.T) {
	assert.Nil(t, capabilities(nil))
	assert.Equal(t,
		map[bot.Capability][]string{bot.CapAdmin: {"Mods"}},
		capabilities(map[string][]string{"admin": {"Mods"}}))
}

func TestNewApp_ServesCommandsAndMetrics(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Storage.Path = ""
	cfg.Storage.BackupPath = filepath.Join(t.TempDir(), "backup.txt")
	cfg.Sweep.Enabled = false
	cfg.Log.Format = "text"

	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	router := api.NewRouter(a.handler, a.routerOptions())

	send := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	// GIVEN: Ada is on the roster as a member
	rec := send(http.MethodPut, "/api/communities/guild-1/members/ada", api.MemberRequest{DisplayName: "Ada", Roles: []string{"Member"}})
	require.Equal(t, http.StatusCreated, rec.Code)

	// WHEN: she claims
	rec = send(http.MethodPost, "/api/communities/guild-1/commands", api.CommandRequest{Name: bot.CmdClaim, Actor: "ada"})

	// THEN: the claim succeeds with the default streak reward
	require.Equal(t, http.StatusOK, rec.Code)
	var resp bot.Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.True(t, resp.OK, resp.Message)

	got, found, err := a.store.Get(context.Background(), "guild-1", ledger.MemberID("ada"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(10), got.Balance)

	// AND: the claim shows up in the metrics
	metricsRec := httptest.NewRecorder()
	router.ServeHTTP(metricsRec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, metricsRec.Code)
	body, err := io.ReadAll(metricsRec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `clanpoints_claims_total{result="ok"} 1`)
}
