// ABOUTME: Tests for CLI argument handling and the init and health commands
// ABOUTME: Health checks run against httptest servers and a real gRPC health service

package main

import (
	"bytes"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/coven-botkit/internal/config"
	"github.com/2389/coven-botkit/internal/gateway"
)

func TestParseConfigFlag(t *testing.T) {
	t.Setenv(config.EnvConfigPath, "/env/botkit.yaml")

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr string
	}{
		{"default", nil, "/env/botkit.yaml", ""},
		{"long flag", []string{"--config", "/a.yaml"}, "/a.yaml", ""},
		{"short flag", []string{"-c", "/b.toml"}, "/b.toml", ""},
		{"equals form", []string{"--config=/c.yaml"}, "/c.yaml", ""},
		{"missing value", []string{"--config"}, "", "requires a value"},
		{"unknown flag", []string{"--verbose"}, "", "unknown flag"},
		{"stray argument", []string{"extra"}, "", "unexpected argument"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseConfigFlag(tt.args)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDialAddr(t *testing.T) {
	assert.Equal(t, "127.0.0.1:3978", dialAddr("0.0.0.0:3978"))
	assert.Equal(t, "127.0.0.1:3978", dialAddr(":3978"))
	assert.Equal(t, "127.0.0.1:50051", dialAddr("[::]:50051"))
	assert.Equal(t, "bots.internal:80", dialAddr("bots.internal:80"))
	assert.Equal(t, "no-port", dialAddr("no-port"))
}

func TestRunVersionAndUnknown(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), "version", nil, &out))
	assert.Equal(t, "coven-botkit dev\n", out.String())

	err := run(context.Background(), "frobnicate", nil, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestRunInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "botkit.yaml")
	var out bytes.Buffer

	require.NoError(t, runInit(path, &out))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.Example, string(data))
	assert.Contains(t, out.String(), path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	err = runInit(path, &out)
	assert.ErrorIs(t, err, errConfigExists)
}

func writeHealthConfig(t *testing.T, httpAddr, grpcAddr string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("server:\n")
	b.WriteString("  http_addr: \"" + httpAddr + "\"\n")
	b.WriteString("  grpc_addr: \"" + grpcAddr + "\"\n")
	path := filepath.Join(t.TempDir(), "botkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0600))
	return path
}

func TestRunHealthHTTP(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health/ready", r.URL.Path)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	path := writeHealthConfig(t, srv.Listener.Addr().String(), "")

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), path, &out))
	assert.Equal(t, "healthy\n", out.String())

	status = http.StatusServiceUnavailable
	err := runHealth(context.Background(), path, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestRunHealthGRPC(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	hs := health.NewServer()
	hs.SetServingStatus(gateway.HealthService, healthpb.HealthCheckResponse_SERVING)
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	go func() { _ = srv.Serve(lis) }()
	defer srv.Stop()

	path := writeHealthConfig(t, "127.0.0.1:1", lis.Addr().String())

	var out bytes.Buffer
	require.NoError(t, runHealth(context.Background(), path, &out))
	assert.Equal(t, "healthy\n", out.String())

	hs.SetServingStatus(gateway.HealthService, healthpb.HealthCheckResponse_NOT_SERVING)
	err = runHealth(context.Background(), path, &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_SERVING")
}

func TestRunHealthMissingConfig(t *testing.T) {
	err := runHealth(context.Background(), filepath.Join(t.TempDir(), "none.yaml"), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loading config")
}
