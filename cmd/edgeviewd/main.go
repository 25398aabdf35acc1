package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/tacusci/logging/v2"
	"github.com/takama/daemon"
	"github.com/tauraamui/edgeview/pkg/api/auth"
	"github.com/tauraamui/edgeview/pkg/config"
	"github.com/tauraamui/edgeview/pkg/configdef"
	db "github.com/tauraamui/edgeview/pkg/database"
	"github.com/tauraamui/edgeview/pkg/edgeview"
	"github.com/tauraamui/edgeview/pkg/log"
)

const (
	name        = "edgeview_daemon"
	description = "Edgeview service daemon which runs edge detection over a live camera feed"
)

type Service struct {
	daemon.Daemon
}

// Setup writes the default config, asks for the api password and creates
// the stats history DB.
func (service *Service) Setup() (string, error) {
	log.Info("Setting up edgeview service...")

	err := config.DefaultCreator().Create()
	if err != nil {
		if !errors.Is(err, configdef.ErrConfigAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	if logging.CurrentLoggingLevel != logging.SilentLevel {
		fmt.Println("Please enter a password for the control API...")
	}
	password, err := auth.AskForPassword()
	if err != nil {
		return "", err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return "", err
	}
	if err := config.DefaultPasswordUpdater().UpdatePasswordHash(hash); err != nil {
		return "", err
	}

	err = db.Setup()
	if err != nil {
		if !errors.Is(err, db.ErrDBAlreadyExists) {
			return "", err
		}
		log.Error(err.Error())
	}

	return "Setup successful...", nil
}

func (service *Service) RemoveSetup() (string, error) {
	log.Info("Removing setup for edgeview service...")
	err := db.Destroy()
	if err != nil {
		log.Error("unable to delete database file: %s", err.Error())
	}

	err = config.DefaultDestroyer().Destroy()
	if err != nil {
		log.Error("unable to delete config file: %s", err.Error())
	}

	return "Removing setup successful...", nil
}

func (service *Service) Manage() (string, error) {
	usage := "Usage: edgeviewd setup | remove-setup | install | remove | start | stop | status"

	if len(os.Args) > 1 {
		command := os.Args[1]
		switch command {
		case "setup":
			return service.Setup()
		case "remove-setup":
			return service.RemoveSetup()
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	log.Info("Starting edgeview daemon...")

	server, err := edgeview.NewServer(config.DefaultResolver(), nil)
	if err != nil {
		log.Fatal(err.Error())
	}
	server.NotifyOnRemoteShutdown(interrupt)

	ctx, cancelStartup := context.WithCancel(context.Background())
	go startupServer(ctx, server)

	killSignal := <-interrupt
	fmt.Print("\r")
	log.Error("Received signal: %s", killSignal)

	cancelStartup()
	log.Info("Shutting down server...")
	<-server.Shutdown()

	return "Shutdown successful... BYE! 👋", nil
}

func startupServer(ctx context.Context, server *edgeview.Server) {
	if err := server.Run(ctx); err != nil {
		log.Error(err.Error())
	}
}

func init() {
	log.SetLevel(os.Getenv("EDGEVIEW_LOGGING_LEVEL"))
}

func main() {
	daemonType := daemon.SystemDaemon
	if runtime.GOOS == "darwin" {
		daemonType = daemon.UserAgent
	}

	srv, err := daemon.New(name, description, daemonType)
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		logging.Error(err.Error()) //nolint
		os.Exit(1)
	}

	logging.Info(status) //nolint
}
