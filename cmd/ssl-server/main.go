// Copyright 2025 The Outline Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command ssl-server is a TLS echo server built on the ssl package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path"
	"sync"

	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/Jigsaw-Code/outline-ssl/transport"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags...] -config <file>\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	verboseFlag := flag.Bool("v", false, "Enable debug output")
	configFlag := flag.String("config", "", "YAML configuration file")

	flag.Parse()

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: logLevel},
	)))

	if *configFlag == "" {
		slog.Error("Need to pass the -config flag")
		flag.Usage()
		os.Exit(1)
	}
	configData, err := os.ReadFile(*configFlag)
	if err != nil {
		slog.Error("Failed to read config", "error", err)
		os.Exit(1)
	}
	cfg, err := parseConfig(configData)
	if err != nil {
		slog.Error("Invalid config", "error", err)
		os.Exit(1)
	}
	ctx, err := cfg.newContext(slog.Default())
	if err != nil {
		slog.Error("Failed to create context", "code", ssl.CodeOf(err), "error", err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		os.Exit(1)
	}
	slog.Info("Echo server listening", "address", listener.Addr())

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-sigCtx.Done()
		listener.Close()
	}()
	if err := serve(listener, ctx); err != nil && !errors.Is(err, net.ErrClosed) {
		slog.Error("Server stopped", "error", err)
		os.Exit(1)
	}
}

// serve accepts connections on listener until it is closed, echoing what each
// client sends.
func serve(listener net.Listener, ctx *ssl.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		netConn, err := listener.Accept()
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			log := slog.With("peer", netConn.RemoteAddr())
			if err := echo(ctx, netConn); err != nil {
				log.Warn("Connection failed", "code", ssl.CodeOf(err), "error", err)
				return
			}
			log.Debug("Connection closed")
		}()
	}
}

func echo(ctx *ssl.Context, netConn net.Conn) error {
	conn := ssl.NewConn(ctx)
	defer conn.Close()
	if err := conn.SetTransport(transport.NewConnStream(netConn)); err != nil {
		netConn.Close()
		return err
	}
	if err := conn.Accept(); err != nil {
		return err
	}
	buf := make([]byte, 16*1024)
	for {
		n, err := conn.Read(buf)
		if errors.Is(err, io.EOF) {
			if conn.LastError(0) == ssl.CodeZeroReturn {
				return conn.Shutdown()
			}
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			return err
		}
	}
}
