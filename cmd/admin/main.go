package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"handsup/backend/internal/app"
	"handsup/backend/internal/config"
	"handsup/backend/internal/logger"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"
)

func usage() {
	fmt.Println("Usage: admin <command> [args]")
	fmt.Println()
	fmt.Println("  rooms                  list active rooms")
	fmt.Println("  end <CODE>             end a room and remove its participants")
	fmt.Println("  purge -older <dur>     end every room created more than <dur> ago")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	logger.Init(logger.Config{
		Service: "handsup-admin",
		Env:     logger.ParseEnv(cfg.Env),
		Backend: logger.BackendStd,
		Level:   logger.ParseLevel(cfg.LogLevel),
		Output:  os.Stderr,
	})

	ctx := context.Background()
	deps, err := app.Open(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open storage: %v", err)
	}
	defer deps.Close()
	gw := deps.Gateway

	switch os.Args[1] {
	case "rooms":
		if err := listRooms(ctx, gw); err != nil {
			log.Fatalf("Error listing rooms: %v", err)
		}
	case "end":
		if len(os.Args) != 3 {
			fmt.Println("Usage: admin end <CODE>")
			os.Exit(1)
		}
		code := models.NormalizeRoomCode(os.Args[2])
		if !models.ValidRoomCode(code) {
			fmt.Println("Invalid room code. Codes have 6 letters or digits.")
			os.Exit(1)
		}
		if err := endRoom(ctx, gw, code); err != nil {
			log.Fatalf("Error ending room: %v", err)
		}
	case "purge":
		fs := flag.NewFlagSet("purge", flag.ExitOnError)
		older := fs.Duration("older", 24*time.Hour, "end rooms created longer ago than this")
		dryRun := fs.Bool("n", false, "only print what would be ended")
		fs.Parse(os.Args[2:])
		if err := purge(ctx, gw, time.Now().Add(-*older), *dryRun); err != nil {
			log.Fatalf("Error purging rooms: %v", err)
		}
	default:
		fmt.Println("Unknown command")
		usage()
		os.Exit(1)
	}
}

func listRooms(ctx context.Context, gw *storage.Gateway) error {
	rooms, err := gw.ListActiveRooms(ctx)
	if err != nil {
		return err
	}
	if len(rooms) == 0 {
		fmt.Println("No active rooms.")
		return nil
	}
	for _, r := range rooms {
		fmt.Printf("%s  %-24s  %3d connected  created %s\n",
			r.Code, r.TeacherName, len(r.ConnectedParticipants), r.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func endRoom(ctx context.Context, gw session.Terminator, code string) error {
	report, err := session.Terminate(ctx, gw, code)
	if err != nil {
		return err
	}
	fmt.Printf("Room %s: %d participants removed", code, len(report.Participants.Succeeded))
	if !report.RoomDeleted {
		fmt.Print(" (room was already gone)")
	}
	fmt.Println()
	for _, f := range report.Participants.Failed {
		fmt.Printf("  failed to remove %s: %v\n", f.ID, f.Err)
	}
	return report.Participants.Err()
}

// purge ends the rooms created before cutoff. Rooms are left behind when a
// teacher generates a new code without ending the old room.
func purge(ctx context.Context, gw *storage.Gateway, cutoff time.Time, dryRun bool) error {
	rooms, err := gw.ListActiveRooms(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, r := range rooms {
		if !r.CreatedAt.Before(cutoff) {
			continue
		}
		if dryRun {
			fmt.Printf("would end %s (%s, created %s)\n", r.Code, r.TeacherName, r.CreatedAt.Format(time.RFC3339))
			continue
		}
		if err := endRoom(ctx, gw, r.Code); err != nil {
			fmt.Printf("  %s: %v\n", r.Code, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d rooms could not be ended", failed)
	}
	return nil
}
