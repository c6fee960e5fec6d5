package main

import (
	"context"
	"errors"
	"flag"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wordflight/internal/api"
	"wordflight/internal/chat"
	"wordflight/internal/commands"
	"wordflight/internal/config"
	"wordflight/internal/docstore"
	"wordflight/internal/http"
	"wordflight/internal/notify"
	"wordflight/internal/session"
	"wordflight/internal/storage"
	"wordflight/internal/ws"

	"golang.org/x/sync/errgroup"
)

const toneSampleRate = 44100

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("wordflight", flag.ContinueOnError)
	addRoom := fs.String("add-room", "", "Room name to create through the admin API of a running server")
	description := fs.String("description", "", "Description of the room created with -add-room")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*addRoom != "")
	if err != nil {
		return err
	}

	if *addRoom != "" {
		return commands.AddRoom(*addRoom, *description, cfg)
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	store := docstore.New(bbStorage)

	// HTTP handlers share one store client; sessions get their own.
	apiClient := store.NewClient()
	defer apiClient.Close()
	chatService := chat.NewService(apiClient)

	push := notify.NewWebPush(notify.VAPIDConfig{
		PublicKey:  cfg.VAPIDPublicKey,
		PrivateKey: cfg.VAPIDPrivateKey,
		Subscriber: cfg.VAPIDSubscriber,
		BaseURL:    cfg.BaseURL,
	})
	if !cfg.PushEnabled() {
		log.Println("VAPID keys not set, native notifications are disabled")
	}

	hub := ws.NewHub(store, session.Options{
		Title:    cfg.Title,
		ToastTTL: cfg.ToastTTL,
		Pusher:   push,
	})
	defer hub.Close()

	apiHandlers := api.New(chatService, push, notify.DefaultTone.WAV(toneSampleRate))
	adminServer := http.NewAdminServer(api.NewAdminHandler(chatService), cfg.AdminAddr)
	apiServer := http.NewAPIServer(hub, apiHandlers, cfg.APIAddr)

	g, gCtx := errgroup.WithContext(ctx)

	// Start Admin Server
	g.Go(func() error {
		err := adminServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Start API Server
	g.Go(func() error {
		err := apiServer.Start()
		if err != nil && err != oshttp.ErrServerClosed {
			return err
		}
		return nil
	})

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		log.Println("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Admin server shutdown error: %v", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Application error: %v", err)
	}
}
