package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	oshttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"parley/internal/account"
	"parley/internal/api"
	"parley/internal/auth"
	"parley/internal/commands"
	"parley/internal/config"
	"parley/internal/conversation"
	"parley/internal/filestore"
	"parley/internal/group"
	"parley/internal/http"
	"parley/internal/logging"
	"parley/internal/media"
	"parley/internal/notify"
	"parley/internal/social"
	"parley/internal/storage"
	"parley/internal/ws"
)

func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := flag.NewFlagSet("parley", flag.ContinueOnError)
	addUser := flags.String("add-user", "", "Username to create (creates user with random password and prints details)")
	deleteUser := flags.String("delete-user", "", "User ID to delete together with everything the account owns")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cliMode := *addUser != "" || *deleteUser != ""
	cfg, err := config.Load(cliMode)
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, cfg, stdout)
	}
	if *deleteUser != "" {
		return commands.DeleteUser(*deleteUser, cfg, stdout)
	}

	logger, err := logging.New(stdout, cfg.LogLevel)
	if err != nil {
		return err
	}

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}
	library := media.NewLibrary(files, bbStorage)

	hub := ws.NewHub(ws.Config{
		Members: bbStorage.GroupMemberIDs,
		Logger:  logger,
	})

	authService, err := auth.NewAuthService(ctx, auth.Config{TokenExpiry: cfg.TokenExpiry}, bbStorage)
	if err != nil {
		return err
	}

	senders := []notify.Sender{notify.NewLogSender(logger)}
	if cfg.WebPushEnabled() {
		senders = append(senders, notify.NewWebPushSender(notify.WebPushConfig{
			PublicKey:  cfg.VAPIDPublicKey,
			PrivateKey: cfg.VAPIDPrivateKey,
			Subject:    cfg.VAPIDSubject,
		}, bbStorage, logger))
	}
	queue := notify.NewQueue(cfg.NotifyQueueSize, logger, senders...)

	accounts := account.NewService(bbStorage, library, hub, queue, authService, logger)
	socialService := social.NewService(bbStorage, hub, queue, logger)
	conversations := conversation.NewService(bbStorage, library, hub, queue, logger)
	groups := group.NewRegistry(bbStorage, library, hub, queue, logger)

	gateway := api.NewGateway(accounts, socialService, conversations, groups, hub, logger)
	apiHandlers := api.New(api.Deps{
		Auth:          authService,
		Accounts:      accounts,
		Social:        socialService,
		Conversations: conversations,
		Groups:        groups,
		Files:         library,
		Notifier:      queue,
		Logger:        logger,
		MaxUpload:     cfg.MaxUploadBytes,
	})
	wsServer := ws.NewServer(authService, hub, gateway, logger)

	adminServer := http.NewAdminServer(api.NewAdminHandler(accounts, logger), cfg.AdminAddr, logger)
	apiServer := http.NewAPIServer(apiHandlers, wsServer, cfg.APIAddr, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return queue.Run(gCtx, cfg.NotifyWorkers)
	})

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
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("admin server shutdown", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("API server shutdown", "error", err)
		}
		for _, userID := range hub.OnlineUsers() {
			hub.Disconnect(userID)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, flag.ErrHelp) {
		log.Fatalf("Application error: %v", err)
	}
}
