package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Zereker/tcpclient"
	"gopkg.in/natefinch/lumberjack.v2"
)

func main() {
	configPath := flag.String("config", "linechat.yaml", "path to the YAML config")
	logFile := flag.String("log-file", "", "write logs to this file, rotated by size")
	verbose := flag.Bool("v", false, "enable debug logging")
	flag.Parse()

	setupLogging(*logFile, *verbose)

	cfg, err := tcpclient.LoadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if flag.NArg() > 0 {
		cfg.Address = flag.Arg(0)
	}

	reader, err := cfg.NewLineReader(func(line string) {
		fmt.Println(line)
	})
	if err != nil {
		slog.Error("failed to create reader", "error", err)
		os.Exit(1)
	}

	opts, err := cfg.Options()
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	done := make(chan error, 1)
	opts = append(opts,
		tcpclient.ReaderOption(reader),
		tcpclient.OnConnectedOption(func() {
			slog.Info("connected", "addr", cfg.Address)
		}),
		tcpclient.OnDisconnectedOption(func(err error) {
			done <- err
		}),
	)

	client, err := tcpclient.NewClient(cfg.Address, opts...)
	if err != nil {
		slog.Error("failed to create client", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err = client.Connect(context.Background()); err != nil {
		slog.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Forward stdin line by line.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			if err := client.WriteText(scanner.Text(), cfg.Delimiter); err != nil {
				slog.Error("write failed", "error", err)
				return
			}
		}

		// Let queued lines drain before hanging up.
		flushed := make(flushMarker)
		if err := client.Enqueue(flushed); err == nil {
			select {
			case <-flushed:
			case <-time.After(5 * time.Second):
				slog.Warn("timed out flushing queued lines")
			}
		}
		client.Disconnect()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		slog.Info("shutting down...")
		client.Disconnect()
	case err := <-done:
		if err != nil {
			slog.Error("disconnected", "error", err)
			return
		}
		slog.Info("disconnected")
	}
}

// flushMarker is a writer that writes nothing. It is closed when the client
// reaches it, after every writer queued before it has drained.
type flushMarker chan struct{}

func (m flushMarker) Drain(io.Writer) (bool, error) {
	close(m)
	return true, nil
}

// setupLogging installs the default slog logger. Without a log file, logs go
// to stderr so they don't mix with received lines on stdout.
func setupLogging(path string, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	if path == "" {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
		return
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     7, // days
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(file, opts)))
}
