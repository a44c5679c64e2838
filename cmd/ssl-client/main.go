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

// Command ssl-client fetches a page over HTTPS with the ssl package and
// prints the negotiated parameters and the response.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path"
	"time"

	"github.com/Jigsaw-Code/outline-ssl/ssl"
	"github.com/Jigsaw-Code/outline-ssl/transport"
	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const request = "GET / HTTP/1.0\r\nHost: %s\r\nConnection: close\r\nAccept-Encoding: identity\r\n\r\n"

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags...] <hostname>\n", path.Base(os.Args[0]))
		flag.PrintDefaults()
	}
}

func main() {
	verboseFlag := flag.Bool("v", false, "Enable debug output")
	portFlag := flag.String("port", "443", "Port to connect to")
	versionFlag := flag.String("version", "", "Restrict to one protocol version (1.2 or 1.3)")
	caFlag := flag.String("ca", "", "PEM file with extra trusted roots")
	insecureFlag := flag.Bool("insecure", false, "Skip server certificate verification")
	tlsKeyLogFlag := flag.String("tls-key-log", "", "Filename to write the TLS key log to allow for decryption on Wireshark")
	timeoutSecFlag := flag.Int("timeout", 10, "Timeout in seconds")

	flag.Parse()

	logLevel := slog.LevelInfo
	if *verboseFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(
		os.Stderr,
		&tint.Options{NoColor: !term.IsTerminal(int(os.Stderr.Fd())), Level: logLevel},
	)))

	hostname := flag.Arg(0)
	if hostname == "" {
		slog.Error("Need to pass the hostname in the command-line")
		flag.Usage()
		os.Exit(1)
	}

	method, err := newMethod(*versionFlag)
	if err != nil {
		slog.Error("Invalid version", "version", *versionFlag, "error", err)
		os.Exit(1)
	}
	ctx, err := ssl.NewContext(method)
	if err != nil {
		slog.Error("Failed to create context", "error", err)
		os.Exit(1)
	}
	if *caFlag != "" {
		if err := ctx.LoadVerifyLocationsFile(*caFlag); err != nil {
			slog.Error("Failed to load CA file", "path", *caFlag, "error", err)
			os.Exit(1)
		}
	}
	if *insecureFlag {
		if err := ctx.SetVerify(ssl.VerifyNone); err != nil {
			slog.Error("Failed to disable verification", "error", err)
			os.Exit(1)
		}
	}
	if *tlsKeyLogFlag != "" {
		f, err := os.Create(*tlsKeyLogFlag)
		if err != nil {
			slog.Error("Failed to create TLS key log file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		ctx.SetKeyLogWriter(f)
	}

	if err := fetch(ctx, hostname, *portFlag, time.Duration(*timeoutSecFlag)*time.Second, os.Stdout); err != nil {
		slog.Error("Fetch failed", "code", ssl.CodeOf(err), "error", err)
		os.Exit(1)
	}
}

func newMethod(version string) (*ssl.Method, error) {
	switch version {
	case "":
		return ssl.MethodTLS(), nil
	case "1.2":
		return ssl.MethodTLS12(), nil
	case "1.3":
		return ssl.MethodTLS13(), nil
	}
	return nil, fmt.Errorf("unsupported version %q", version)
}

func fetch(ctx *ssl.Context, hostname, port string, timeout time.Duration, out io.Writer) error {
	netConn, err := net.DialTimeout("tcp", net.JoinHostPort(hostname, port), timeout)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	// Expiry shows up as a retry code, which a blocking client treats as fatal.
	if err := netConn.SetDeadline(time.Now().Add(timeout)); err != nil {
		netConn.Close()
		return err
	}

	conn := ssl.NewConn(ctx)
	defer conn.Close()
	if err := conn.SetTransport(transport.NewConnStream(netConn)); err != nil {
		netConn.Close()
		return err
	}
	if err := conn.SetHostname(hostname); err != nil {
		return err
	}
	if err := conn.Connect(); err != nil {
		return fmt.Errorf("handshake failed: %w", err)
	}

	cipher, err := conn.CurrentCipher()
	if err != nil {
		return err
	}
	version, err := conn.ProtocolVersion()
	if err != nil {
		return err
	}
	slog.Info("Negotiated ciphersuite", "cipher", cipher.Name(), "bits", cipher.Bits(), "version", version)

	req := fmt.Sprintf(request, hostname)
	if _, err := conn.Write([]byte(req)); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	slog.Debug("Sent request", "bytes", len(req))

	total := 0
	buf := make([]byte, 8192)
	for {
		n, err := conn.Read(buf)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		total += n
		if _, err := out.Write(buf[:n]); err != nil {
			return err
		}
	}
	if total == 0 {
		return errors.New("got nothing")
	}
	slog.Info("Received response", "bytes", total, "close_notify", conn.LastError(0) == ssl.CodeZeroReturn)
	return nil
}
