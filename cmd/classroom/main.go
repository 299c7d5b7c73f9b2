// Command classroom is an interactive terminal client. It runs one session,
// as a teacher or as a student, against a handsup server.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"handsup/backend/internal/config"
	"handsup/backend/internal/localization"
	"handsup/backend/internal/logger"
	"handsup/backend/internal/remote"
	"handsup/backend/internal/session"
	"handsup/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	server := flag.String("server", cfg.ServerURL, "handsup server URL")
	lang := flag.String("lang", localization.DefaultLang, "language of the messages")
	teacher := flag.String("teach", "", "start as the teacher with this display name")
	statePath := flag.String("state", defaultStatePath(), "file remembering the joined room across restarts")
	flag.Parse()

	// the terminal belongs to the REPL, so logs go to stderr and only warnings show
	logger.Init(logger.Config{
		Service: "handsup-classroom",
		Env:     logger.EnvDev,
		Backend: logger.BackendStd,
		Level:   slog.LevelWarn,
		Output:  os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := remote.Dial(ctx, *server)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cannot reach %s: %v\n", *server, err)
		os.Exit(1)
	}
	defer client.Close()

	ui := &terminal{
		out:       os.Stdout,
		loc:       localization.Default(),
		lang:      *lang,
		publicURL: cfg.PublicURL,
		state:     stateFile(*statePath),
	}

	hooks := ui.hooks()
	var notifier *telegram.Notifier
	if *teacher != "" && cfg.TelegramToken != "" {
		notifier, err = telegram.NewNotifier(cfg.TelegramToken, cfg.TelegramChatID, ui.loc, *lang)
		if err != nil {
			slog.Warn("telegram disabled", "err", err)
		} else {
			show := hooks.Notify
			hooks.Notify = func(n session.Notification) {
				show(n)
				notifier.Notify(n)
			}
		}
	}

	sess := session.New(client, session.Options{
		TeacherName:     *teacher,
		ForceLeaveDelay: cfg.ForceLeaveDelay,
		Hooks:           hooks,
	})
	defer sess.Close()
	ui.sess = sess

	if notifier != nil {
		notifier.Hands = sess.Hands
		go notifier.Run(ctx)
		go notifier.Listen(ctx)
	}

	if *teacher != "" {
		ui.exec(ctx, "create")
	} else {
		ui.resume(ctx)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	ui.help()
	ui.prompt()
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			fmt.Fprintln(os.Stderr, "connection to the server lost")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if !ui.exec(ctx, line) {
				return
			}
			ui.prompt()
		}
	}
}
