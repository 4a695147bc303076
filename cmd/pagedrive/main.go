// Command pagedrive drives a headless navigation session.
//
// Usage:
//
//	pagedrive visit https://example.com/ [-follow "a#next"] [-format markdown]
//	pagedrive -config pagedrive.yaml serve [-addr :8090] [-mcp]
//
// visit loads the page, optionally follows links in order, then prints the
// settled page as JSON. serve exposes the HTTP control API and, with -mcp,
// the MCP tools over stdio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagedrive"
	"github.com/hazyhaar/pagedrive/drive"
	"github.com/hazyhaar/pagedrive/internal/config"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "pagedrive:", err)
		os.Exit(1)
	}
}

// stringList collects a repeated flag.
type stringList []string

func (l *stringList) String() string     { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("pagedrive", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to pagedrive.yaml")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := config.Default()
	if *configPath != "" {
		c, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = c
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: parseLevel(cfg.Log.Level)}))

	rest := fs.Args()
	if len(rest) == 0 {
		return errors.New("usage: pagedrive [-config file] visit <url> | serve")
	}
	switch rest[0] {
	case "visit":
		return runVisit(ctx, cfg, logger, rest[1:], stdout, stderr)
	case "serve":
		return runServe(ctx, cfg, logger, rest[1:], stderr)
	case "version":
		fmt.Fprintln(stdout, version)
		return nil
	}
	return fmt.Errorf("unknown command %q", rest[0])
}

func runVisit(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("visit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var follow stringList
	fs.Var(&follow, "follow", "selector of a link to follow after loading (repeatable)")
	format := fs.String("format", string(pagedrive.FormatMarkdown), "output format: markdown, html, none")
	timeout := fs.Duration("timeout", time.Minute, "overall deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: pagedrive visit [-follow selector]... [-format markdown] <url>")
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	s, err := pagedrive.New(cfg, pagedrive.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Visit(ctx, fs.Arg(0), drive.Advance); err != nil {
		return fmt.Errorf("visit: %w", err)
	}
	for _, sel := range follow {
		if err := s.FollowLink(ctx, sel); err != nil {
			return fmt.Errorf("follow %q: %w", sel, err)
		}
	}
	page, err := s.Page(ctx, pagedrive.Format(*format))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(page)
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	addr := fs.String("addr", cfg.Server.Addr, "HTTP listen address")
	withMCP := fs.Bool("mcp", cfg.Server.MCP, "serve MCP tools over stdio")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := pagedrive.New(cfg, pagedrive.WithLogger(logger))
	if err != nil {
		return err
	}
	defer s.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 2)
	go func() {
		logger.Info("pagedrive: http listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	if *withMCP {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pagedrive", Version: version}, nil)
		s.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("pagedrive: mcp on stdio")
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				errc <- fmt.Errorf("mcp: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err = <-errc:
	}
	logger.Info("pagedrive: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("pagedrive: shutdown", "error", serr)
	}
	return err
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
