package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/suPer8Hu/leadchat/internal/catalog"
	"github.com/suPer8Hu/leadchat/internal/flow"
	"github.com/suPer8Hu/leadchat/internal/store/redisstore"
	"github.com/suPer8Hu/leadchat/internal/widgetclient"
)

func main() {
	var (
		apiURL      = flag.String("api", "http://localhost:8080", "chat API base url")
		identifier  = flag.String("config", "default", "widget configuration identifier")
		startURL    = flag.String("start-url", "", "page the widget was opened on")
		token       = flag.String("token", "", "optional dashboard JWT")
		catalogPath = flag.String("catalog", os.Getenv("CATALOG_PATH"), "product catalog yaml (built-in when empty)")
		sessionPath = flag.String("session", defaultSessionPath(), "session file")
		redisAddr   = flag.String("redis", "", "keep the session in redis instead of a file")
		redisNS     = flag.String("redis-namespace", "cli", "redis session namespace")
	)
	flag.Parse()

	// chatter goes to stderr so the conversation stays readable
	log.SetOutput(os.Stderr)

	cat, err := catalog.LoadOrDefault(*catalogPath)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}

	var sessions flow.SessionStore = widgetclient.NewFileSessions(*sessionPath)
	if *redisAddr != "" {
		rds := redisstore.New(*redisAddr, "", 0).WithNamespace(*redisNS)
		defer rds.Close()
		sessions = rds
	}

	client := widgetclient.New(*apiURL)
	client.Token = *token

	c := flow.NewController(flow.Deps{
		Exchanger: client,
		Config:    client,
		Sessions:  sessions,
		Events:    client,
		Opener:    printOpener{w: os.Stdout},
		Catalog:   cat,
	}, flow.Options{
		ConfigIdentifier: *identifier,
		Channel:          flow.DefaultChannel,
		StartURL:         *startURL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newUI(c, os.Stdin, os.Stdout).run(ctx); err != nil {
		log.Fatalf("widget: %v", err)
	}
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".leadchat-session.json"
	}
	return filepath.Join(dir, "leadchat", "session.json")
}
