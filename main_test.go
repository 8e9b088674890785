package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/agentcore-samples/toolgate/internal/permission"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PERMISSIONS_BACKEND", "PERMISSIONS_TABLE", "AWS_REGION", "AWS_DEFAULT_REGION", "INTERCEPTOR_MODE"} {
		t.Setenv(k, "")
	}
	cfg := configFromEnv()
	if cfg.Backend != backendDynamoDB {
		t.Errorf("Backend = %q", cfg.Backend)
	}
	if cfg.Table != "ClientToolPermissions" {
		t.Errorf("Table = %q", cfg.Table)
	}
	if cfg.Region != "" {
		t.Errorf("Region = %q, want empty so the SDK resolves it", cfg.Region)
	}
	if cfg.Mode != "auto" {
		t.Errorf("Mode = %q", cfg.Mode)
	}
}

func TestConfigFromEnv_Overrides(t *testing.T) {
	t.Setenv("PERMISSIONS_TABLE", "Perms")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "eu-west-1")
	t.Setenv("PERMISSIONS_BACKEND", backendSQLite)

	cfg := configFromEnv()
	if cfg.Table != "Perms" || cfg.Region != "eu-west-1" || cfg.Backend != backendSQLite {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestOpenStore_Errors(t *testing.T) {
	ctx := context.Background()
	for _, cfg := range []config{
		{Backend: "redis"},
		{Backend: backendFile},
		{Backend: backendSecret},
	} {
		if _, closeStore, err := openStore(ctx, cfg, testLogger()); err == nil {
			t.Errorf("backend %q: expected error", cfg.Backend)
		} else {
			closeStore()
		}
	}
}

func TestOpenStore_FileIsReadOnly(t *testing.T) {
	cfg := config{Backend: backendFile, File: filepath.Join("testdata", "permissions.yaml")}
	store, closeStore, err := openStore(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	w, ok := store.(permission.Writer)
	if !ok {
		t.Fatal("document store should implement Writer")
	}
	if err := w.Put(context.Background(), permission.Record{}); !errors.Is(err, permission.ErrReadOnly) {
		t.Errorf("Put err = %v", err)
	}
}

func TestHandler_SQLiteEndToEnd(t *testing.T) {
	cfg := config{
		Backend: backendSQLite,
		DBPath:  filepath.Join(t.TempDir(), "toolgate.db"),
		Mode:    "auto",
	}
	ctx := context.Background()

	store, closeStore, err := openStore(ctx, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	store.(permission.Writer).Put(ctx, permission.Record{ClientID: "c1", ToolName: "search", Allowed: true})
	closeStore()

	handler, closeStore, err := buildHandler(ctx, cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	raw, err := readEvent(filepath.Join("testdata", "tools_list_response.json"))
	if err != nil {
		t.Fatal(err)
	}
	out, err := handler.Handle(ctx, raw)
	if err != nil {
		t.Fatal(err)
	}
	body := string(out.MCP.TransformedGatewayResponse.Body)
	if !strings.Contains(body, "tgt___search") || strings.Contains(body, "tgt___delete") {
		t.Errorf("unexpected filtered body %s", body)
	}
}

func TestHandler_FileBackendDeniesCall(t *testing.T) {
	cfg := config{Backend: backendFile, File: filepath.Join("testdata", "permissions.yaml"), Mode: "auto"}
	handler, closeStore, err := buildHandler(context.Background(), cfg, testLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeStore()

	raw, err := readEvent(filepath.Join("testdata", "tools_call_request.json"))
	if err != nil {
		t.Fatal(err)
	}
	out, _ := handler.Handle(context.Background(), raw)
	data, _ := json.Marshal(out)
	if !strings.Contains(string(data), `"isError":true`) || !strings.Contains(string(data), "only_plan") {
		t.Errorf("expected sre execute denial, got %s", data)
	}
}

func TestBuildHandler_BadMode(t *testing.T) {
	if _, closeStore, err := buildHandler(context.Background(), config{Mode: "sideways"}, testLogger()); err == nil {
		t.Fatal("expected error")
	} else {
		closeStore()
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("debug") != slog.LevelDebug || parseLogLevel("bogus") != slog.LevelInfo {
		t.Error("unexpected level mapping")
	}
}
