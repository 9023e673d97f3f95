// ABOUTME: Entry point for the coven-botkit bot host
// ABOUTME: Serves a bot over HTTP and provides init, health, and version commands

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/coven-botkit/internal/config"
	"github.com/2389/coven-botkit/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                                   _           _   _    _ _
  ___ _____   _____ _ __          | |__   ___ | |_| | _(_) |_
 / __/ _ \ \ / / _ \ '_ \  _____  | '_ \ / _ \| __| |/ / | __|
| (_| (_) \ V /  __/ | | ||_____| | |_) | (_) | |_|   <| | |_
 \___\___/ \_/ \___|_| |_|        |_.__/ \___/ \__|_|\_\_|\__|
`

const healthTimeout = 5 * time.Second

var errConfigExists = errors.New("config file already exists")

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: coven-botkit <command> [--config PATH]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve     Start the bot host")
	fmt.Fprintln(w, "  init      Write a starter config file")
	fmt.Fprintln(w, "  health    Check a running host")
	fmt.Fprintln(w, "  version   Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stdout)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string, args []string, out io.Writer) error {
	configPath, err := parseConfigFlag(args)
	if err != nil {
		return err
	}

	switch cmd {
	case "serve":
		return runServe(ctx, configPath, out)
	case "init":
		return runInit(configPath, out)
	case "health":
		return runHealth(ctx, configPath, out)
	case "version":
		fmt.Fprintf(out, "coven-botkit %s\n", version)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// parseConfigFlag accepts "--config PATH" and "--config=PATH" and falls back
// to config.DefaultPath.
func parseConfigFlag(args []string) (string, error) {
	path := ""
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--config" || arg == "-c":
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--config="):
			path = strings.TrimPrefix(arg, "--config=")
		case strings.HasPrefix(arg, "-"):
			return "", fmt.Errorf("unknown flag: %s", arg)
		default:
			return "", fmt.Errorf("unexpected argument: %s", arg)
		}
	}
	if path == "" {
		path = config.DefaultPath()
	}
	return path, nil
}

func runServe(ctx context.Context, configPath string, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, out)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", configPath)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	if cfg.Server.GRPCAddr != "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "gRPC:      %s\n", cfg.Server.GRPCAddr)
	}
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Storage:   %s", cfg.Storage.Driver)
	if cfg.Storage.Driver == config.DriverMemory {
		yellow.Fprint(out, " [state is lost on restart]")
	}
	fmt.Fprintln(out)
	if cfg.Auth.JWTSecret == "" {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Auth:      ")
		yellow.Fprintln(out, "disabled")
	}
	fmt.Fprintln(out)

	logger.Info("starting coven-botkit",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"storage", cfg.Storage.Driver,
	)

	gw, err := gateway.New(ctx, cfg, newEchoBot, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

// runInit writes the starter config. An existing file is never overwritten.
func runInit(configPath string, out io.Writer) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%w: %s", errConfigExists, configPath)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(config.Example), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Created config: %s\n", configPath)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "To start the bot host:")
	fmt.Fprintln(out, "  coven-botkit serve")
	return nil
}

// runHealth asks the gRPC health service when one is configured and the HTTP
// readiness endpoint otherwise.
func runHealth(ctx context.Context, configPath string, out io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if cfg.Server.GRPCAddr != "" {
		err = checkGRPC(ctx, dialAddr(cfg.Server.GRPCAddr))
	} else {
		err = checkHTTP(ctx, "http://"+dialAddr(cfg.Server.HTTPAddr)+"/health/ready")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "healthy")
	return nil
}

func checkGRPC(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gateway.HealthService})
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("unhealthy: %s", resp.GetStatus())
	}
	return nil
}

func checkHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// dialAddr rewrites wildcard listen hosts to loopback so a listen address can
// be dialed.
func dialAddr(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "127.0.0.1"
	}
	return net.JoinHostPort(host, port)
}
