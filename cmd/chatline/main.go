package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/chatline/internal/app"
	"github.com/matheus3301/chatline/internal/config"
	"github.com/matheus3301/chatline/internal/profile"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	chatFlag := flag.String("chat", "", "conversation to open on start")
	sendFlag := flag.String("send", "", "message to send once the conversation is open")
	flag.Parse()

	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	profileName := profile.Resolve(*profileFlag, cfg)
	if err := profile.ValidateName(profileName); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fxApp := fx.New(
		app.Module(app.Params{
			Profile:        profileName,
			Config:         cfg,
			ConversationID: *chatFlag,
		}),
		fx.Supply(consoleParams{Send: *sendFlag}),
		fx.Invoke(registerConsole),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
	)

	fxApp.Run()
}
