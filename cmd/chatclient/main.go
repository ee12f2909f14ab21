package main

import (
	"bufio"
	"checkin/backend/internal/chatclient"
	"checkin/backend/internal/echo"
	"checkin/backend/internal/localization"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"
)

// printer renders view entries and status lines for one terminal.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	loc  *localization.Localizer
	lang string
}

func (p *printer) entry(e chatclient.Entry) {
	switch e.Kind {
	case chatclient.EntryMessage:
		p.message(e)
	case chatclient.EntryStatus:
		p.status(e.Key, e.Args...)
	}
}

func (p *printer) message(e chatclient.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m := e.Message
	stamp := "--:--"
	if !m.CreatedAt.IsZero() {
		stamp = m.CreatedAt.Local().Format("15:04")
	}
	line := fmt.Sprintf("[%s] %s: %s", stamp, m.Author, m.Body)
	if m.Attachment != "" {
		line += " 📎 " + m.Attachment
	}
	fmt.Fprintf(p.w, "\r%s\n> ", line)
}

func (p *printer) status(key string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r* %s\n> ", p.loc.Format(p.lang, key, args...))
}

func main() {
	addr := flag.String("addr", "localhost:8080", "relay server address")
	author := flag.String("author", "", "display name to post as")
	room := flag.String("room", "", "room to join after connecting (default: the server's default room)")
	echoMode := flag.String("echo", "single", "echo suppression: single or queue")
	lang := flag.String("lang", localization.DefaultLanguage, "interface language (en, uk)")
	flag.Parse()

	if *author == "" {
		log.Fatal("-author is required")
	}
	mode, err := echo.ParseMode(*echoMode)
	if err != nil {
		log.Fatal(err)
	}
	loc, err := localization.Default()
	if err != nil {
		log.Fatalf("Failed to load translations: %v", err)
	}
	if !loc.Has(*lang) {
		log.Printf("WARNING: no translations for %q, using %s", *lang, localization.DefaultLanguage)
	}

	out := &printer{w: os.Stdout, loc: loc, lang: *lang}
	view := chatclient.NewView(*author, mode, out.entry)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := chatclient.Dial(ctx, *addr)
	cancel()
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer conn.Close()
	out.status("status.connected", *addr, *author)
	out.status("help.commands")

	if *room != "" {
		if err := conn.JoinRoom(*room); err != nil {
			log.Fatal("join:", err)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for env := range conn.Events() {
			if err := view.Handle(env); err != nil {
				log.Printf("Ignoring event: %v", err)
			}
		}
		if err := conn.Err(); err != nil {
			log.Println("read:", err)
		}
		out.status("status.disconnected")
	}()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-interrupt:
			return
		case <-done:
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(conn, view, out, *addr, strings.TrimSpace(text)); quit {
				return
			}
		}
	}
}

// handleLine runs one line of user input and reports whether to quit.
func handleLine(conn *chatclient.Conn, view *chatclient.View, out *printer, addr, text string) bool {
	if text == "" {
		return false
	}
	if !strings.HasPrefix(text, "/") {
		send(conn, view, out, text, "")
		return false
	}

	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/quit":
		return true

	case "/join":
		if arg == "" {
			out.status("error.usage_join")
			return false
		}
		if err := conn.JoinRoom(arg); err != nil {
			log.Println("write:", err)
		}

	case "/attach":
		path, caption, _ := strings.Cut(arg, " ")
		if path == "" {
			out.status("error.usage_attach")
			return false
		}
		out.status("status.uploading", path)
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		res, err := chatclient.Upload(ctx, nil, addr, path)
		cancel()
		if err != nil {
			out.status("status.upload_failed", err)
			return false
		}
		out.status("status.attached", res.Path)
		send(conn, view, out, strings.TrimSpace(caption), res.Path)

	default:
		out.status("error.unknown_command", cmd)
	}
	return false
}

func send(conn *chatclient.Conn, view *chatclient.View, out *printer, body, attachment string) {
	p, err := view.Compose(body, attachment)
	if err != nil {
		out.status("error.not_joined")
		return
	}
	if err := conn.SendMessage(p); err != nil {
		log.Println("write:", err)
	}
}
