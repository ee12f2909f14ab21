package main

import (
	"checkin/backend/internal/config"
	"checkin/backend/internal/history"
	"checkin/backend/internal/models"
	"checkin/backend/internal/storage"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const usage = `Usage: admin <command> [args]

Commands:
  history [room] [limit]   print a room's messages, oldest first
  rooms                    list rooms by most recent activity`

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	storageSvc := storage.NewStorageService(db, nil) // No redis needed for admin CLI

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "history":
		room := cfg.DefaultRoom
		if len(os.Args) > 2 {
			room = os.Args[2]
		}
		limit := 0
		if len(os.Args) > 3 {
			limit, err = strconv.Atoi(os.Args[3])
			if err != nil || limit < 0 {
				fmt.Println("Invalid limit. Please provide a non-negative integer.")
				os.Exit(1)
			}
		}
		msgs, err := history.NewService(storageSvc).Backfill(ctx, room, limit)
		if err != nil {
			log.Fatalf("Error reading history: %v", err)
		}
		printHistory(os.Stdout, msgs)

	case "rooms":
		rooms, err := storageSvc.ListRooms(ctx)
		if err != nil {
			log.Fatalf("Error listing rooms: %v", err)
		}
		printRooms(os.Stdout, rooms)

	default:
		fmt.Printf("Unknown command: %s\n\n%s\n", os.Args[1], usage)
		os.Exit(1)
	}
}

func printHistory(w io.Writer, msgs []models.ChatMessage) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tAUTHOR\tBODY\tATTACHMENT")
	for _, m := range msgs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.CreatedAt.Format(time.RFC3339), m.Author, m.Body, m.Attachment)
	}
	tw.Flush()
}

func printRooms(w io.Writer, rooms []models.RoomSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ROOM\tMESSAGES\tLAST MESSAGE")
	for _, r := range rooms {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.Room, r.MessageCount, r.LastMessageAt.Format(time.RFC3339))
	}
	tw.Flush()
}
