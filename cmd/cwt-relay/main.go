package main

import (
	"context"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cwt-dev/cwtd/internal/broker"
	"github.com/cwt-dev/cwtd/internal/instance"
)

const shutdownGrace = 10 * time.Second

func main() {
	addr := flag.String("addr", ":8090", "listen address")
	desktopTokens := flag.String("desktop-tokens", "", "comma-separated token=userID:deviceID:deviceName entries")
	mobileTokens := flag.String("mobile-tokens", "", "comma-separated token=userID entries")
	flag.Parse()

	log.Println("===============================================")
	log.Println("  cwt-relay — desktop/mobile broker")
	log.Println("===============================================")
	log.Printf("Listen address: %s", *addr)

	if port, err := portOf(*addr); err == nil && !instance.IsPortAvailable(port) {
		log.Fatalf("[RELAY] port %d is already in use, is another cwt-relay running?", port)
	}

	auth := broker.NewStaticAuthenticator(splitNonEmpty(*desktopTokens), splitNonEmpty(*mobileTokens))
	hub := broker.New(broker.LoggingPushSender{})
	srv := broker.NewServer(hub, auth)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.Router(),
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	log.Println("[RELAY] listening for desktop and mobile connections")
	log.Println("===============================================")

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("[RELAY] server error: %v", err)
		}
	case <-shutdown:
		log.Println("[RELAY] shutting down...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("[RELAY] shutdown error: %v", err)
	}
	log.Println("[RELAY] goodbye")
}

func portOf(addr string) (int, error) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(portStr)
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
