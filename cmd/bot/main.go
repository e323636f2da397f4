package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"throttlebot/internal/app"
	logx "throttlebot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		token   string
		console bool
		help    bool
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config (yaml or json)")
	flag.StringVar(&token, "p", "", "telegram bot token")
	flag.StringVar(&token, "password", "", "telegram bot token")
	flag.BoolVar(&console, "console", false, "read commands from stdin instead of telegram")
	flag.BoolVar(&help, "h", false, "show help")
	flag.BoolVar(&help, "help", false, "show help")
	flag.Parse()
	if help {
		flag.Usage()
		return
	}

	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	if token == "" {
		token = strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{
		Token:       token,
		PromptToken: promptToken,
		Console:     console,
	})
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	a.Logger().Info(fmt.Sprintf("%s v%s", a.Name(), a.Version()), logx.String("config", cfgPath))

	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}

// promptToken reads the token from the terminal without echo.
func promptToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, "Telegram bot token: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
