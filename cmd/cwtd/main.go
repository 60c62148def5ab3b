package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cwt-dev/cwtd/internal/activeagents"
	"github.com/cwt-dev/cwtd/internal/chatroute"
	"github.com/cwt-dev/cwtd/internal/daemonlock"
	"github.com/cwt-dev/cwtd/internal/engine"
	"github.com/cwt-dev/cwtd/internal/eventbus"
	"github.com/cwt-dev/cwtd/internal/history"
	"github.com/cwt-dev/cwtd/internal/ipc"
	"github.com/cwt-dev/cwtd/internal/jobstore"
	"github.com/cwt-dev/cwtd/internal/monitor"
	"github.com/cwt-dev/cwtd/internal/notify"
	"github.com/cwt-dev/cwtd/internal/paneops"
	"github.com/cwt-dev/cwtd/internal/relayclient"
	"github.com/cwt-dev/cwtd/internal/scheduler"
	"github.com/cwt-dev/cwtd/internal/statustable"
)

const version = "1"

func main() {
	jobsPath := flag.String("jobs", "jobs.yaml", "job configuration file")
	dataDir := flag.String("data", "data", "directory for history.db, logs, lock and PID files")
	socketPath := flag.String("socket", "", "IPC socket path (default "+ipc.DefaultSocketPath()+")")
	relayURL := flag.String("relay-url", "", "broker WebSocket URL (ws://host:port/ws/desktop), empty disables the relay client")
	deviceToken := flag.String("relay-token", "", "device auth token sent to the broker")
	slackToken := flag.String("slack-token", "", "Slack bot token for the chat route, empty disables chat")
	discordWebhook := flag.String("discord-webhook", "", "Discord webhook URL for the chat route, used when -slack-token is empty")
	flag.Parse()

	basePath, err := getBasePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to determine base path: %v\n", err)
		os.Exit(1)
	}

	*jobsPath = resolvePath(basePath, *jobsPath)
	*dataDir = resolvePath(basePath, *dataDir)

	if err := os.MkdirAll(*dataDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create data directory: %v\n", err)
		os.Exit(1)
	}
	logsDir := filepath.Join(*dataDir, "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logs directory: %v\n", err)
		os.Exit(1)
	}

	lockPath := filepath.Join(*dataDir, "cwtd.lock")
	pidPath := filepath.Join(*dataDir, "cwtd.pid")
	lock, err := daemonlock.Acquire(lockPath, pidPath, version, basePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer lock.Release()

	printBanner()

	jobs := jobstore.Open(*jobsPath)
	log.Printf("[CWTD] loaded %d job(s) from %s", len(jobs.Jobs()), *jobsPath)

	historyPath := filepath.Join(*dataDir, "history.db")
	historyStore, err := history.Open(historyPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open history store: %v\n", err)
		os.Exit(1)
	}
	defer historyStore.Close()

	bus, err := eventbus.Start(eventbus.ServerConfig{Port: -1})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start event bus: %v\n", err)
		os.Exit(1)
	}
	defer bus.Close()
	relay := &eventbus.PublishRelay{Bus: bus}

	statuses := statustable.New()
	agents := activeagents.New()
	panes := paneops.Get()

	var chat monitor.ChatSink
	switch {
	case *slackToken != "":
		chat = chatroute.NewSlackRoute(chatroute.SlackConfig{BotToken: *slackToken})
	case *discordWebhook != "":
		chat = chatroute.NewDiscordRoute(chatroute.DiscordConfig{WebhookURL: *discordWebhook})
	}
	notifier := notify.New("cwtd", "")

	mon := monitor.New(panes, historyStore, statuses, agents, relay, chat, notifier, logsDir)
	eng := engine.New(panes, historyStore, statuses, agents, relay, mon, engine.EnvSecrets{}, engine.NoopWindowMover{}, logsDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Println("[CWTD] scanning for panes left running from a previous instance...")
	eng.Reattach(ctx, jobs.Jobs())

	sched := scheduler.New(jobs, eng)
	go sched.Run(ctx)
	log.Println("[CWTD] scheduler started")

	var relayClient *relayclient.Client
	if *relayURL != "" {
		relayClient = relayclient.New(*relayURL, *deviceToken, jobs, statuses, eng, historyStore, panes)
		unsubscribe, err := eventbus.WireRelay(bus, relayClient)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to wire relay client to event bus: %v\n", err)
			os.Exit(1)
		}
		defer unsubscribe()
		go relayClient.Run(ctx)
		log.Printf("[CWTD] relay client connecting to %s", *relayURL)
	} else {
		log.Println("[CWTD] relay disabled (-relay-url not set)")
	}

	executor := &ipc.Executor{Jobs: jobs, Statuses: statuses, Engine: eng, Panes: panes}
	ipcServer := ipc.NewServer(*socketPath, executor)
	if err := ipcServer.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start IPC server: %v\n", err)
		os.Exit(1)
	}
	defer ipcServer.Stop()
	log.Printf("[CWTD] IPC listening on %s", ipcServer.Address())

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	<-shutdown

	fmt.Println()
	log.Println("[CWTD] shutting down...")
	cancel()
	time.Sleep(200 * time.Millisecond)
	log.Println("[CWTD] goodbye")
}

func resolvePath(basePath, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(basePath, p)
}

func getBasePath() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return os.Getwd()
	}
	dir := filepath.Dir(exe)
	if filepath.Base(dir) == "exe" || filepath.Base(filepath.Dir(dir)) == "go-build" {
		return os.Getwd()
	}
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir), nil
	}
	return dir, nil
}

func printBanner() {
	fmt.Println()
	fmt.Println("  cwtd — local job orchestrator for terminal-hosted AI agents")
	fmt.Println()
}
