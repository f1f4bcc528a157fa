package main

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Yahir019cx/pool-and-chill-app/internal/log"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/app"
	"github.com/Yahir019cx/pool-and-chill-app/internal/tui/client"
)

func main() {
	wsURL := flag.String("url", "ws://127.0.0.1:8080/ws", "WebSocket URL of the bridge daemon")
	token := flag.String("token", os.Getenv("BRIDGE_AUTH_TOKEN"), "Auth token (if the daemon requires it)")
	logFile := flag.String("log-file", "", "Write debug logs to this file (discarded when empty)")
	logLevel := flag.String("log-level", "debug", "Log level for --log-file")
	flag.Parse()

	// The terminal belongs to Bubble Tea; logs go to a file or nowhere.
	var out io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	log.Configure(log.Config{Level: *logLevel, Output: out, Service: "bridge-tui"})

	// Derive HTTP base URL from WebSocket URL.
	httpBase := deriveHTTPBase(*wsURL)

	ws := client.NewWSClient(*wsURL, *token)
	defer ws.Close()
	httpClient := client.NewHTTPClient(httpBase, *token)

	m := app.New(ws, httpClient)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		log.L().Error().Err(err).Msg("tui exited with error")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// deriveHTTPBase converts ws://host:port/ws → http://host:port
func deriveHTTPBase(wsURL string) string {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "http://127.0.0.1:8080"
	}
	scheme := "http"
	if strings.HasPrefix(u.Scheme, "wss") {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, u.Host)
}
