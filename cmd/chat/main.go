package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Trimesters-ai/ester/internal/analysis/temporal"
	"github.com/Trimesters-ai/ester/internal/config"
	"github.com/Trimesters-ai/ester/internal/model/persona"
	"github.com/Trimesters-ai/ester/internal/render"
	"github.com/Trimesters-ai/ester/internal/service/ai"
	"github.com/Trimesters-ai/ester/internal/service/chat"
)

var (
	personaID = flag.String("persona", persona.DefaultID, "Persona to talk to")
	timezone  = flag.String("tz", "", "Viewer timezone, defaults to ESTER_TIMEZONE")
	debug     = flag.Bool("debug", false, "Log session internals to stderr")
)

var (
	boldGreen  = color.New(color.FgGreen, color.Bold).SprintFunc()
	boldCyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	faint      = color.New(color.Faint).SprintFunc()
	errorColor = color.New(color.FgRed).SprintFunc()
)

const help = `Commands:
  /name <name>     set your name
  /date <date>     set your delivery date
  /key <api key>   use your own completion key
  /profile         show what Ester knows
  /suggest         show suggested prompts
  /quit            leave`

// replyPrinter writes the growing assistant entry to stdout as log events
// arrive, printing only the part not yet shown.
type replyPrinter struct {
	mu      sync.Mutex
	id      string
	printed int
}

func (p *replyPrinter) onEvent(ev chat.Event) {
	if ev.Type != chat.EventLog || len(ev.Log) == 0 {
		return
	}
	last := ev.Log[len(ev.Log)-1]
	if !last.IsAssistant {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if last.ID != p.id {
		p.id = last.ID
		p.printed = 0
		fmt.Print(boldCyan("Ester: "))
	}
	if len(last.Content) > p.printed {
		fmt.Print(last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func main() {
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("config:"), err)
		os.Exit(1)
	}

	logger := zap.NewNop()
	if *debug {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
		}
	}
	defer logger.Sync()

	streamer, err := ai.NewStreamer(ctx, cfg.AI, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("completion backend:"), err)
		os.Exit(1)
	}

	opts := []chat.Option{chat.WithLocation(cfg.Session.Location), chat.WithWelcome(true)}
	if cfg.Session.RelativeDates {
		opts = append(opts, chat.WithDateExtractor(temporal.New(temporal.WithRelative())))
	}
	svc := chat.NewService(persona.NewMemoryStore(persona.Seed()), streamer, logger, opts...)

	session, err := svc.CreateSession(ctx, *personaID, *timezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("session:"), err)
		os.Exit(1)
	}

	snap := session.Snapshot()
	fmt.Println(boldGreen(snap.Persona.Name))
	fmt.Println(faint(snap.Persona.Description))
	fmt.Println(faint("Type /help for commands."))
	fmt.Println()
	for _, msg := range snap.Log {
		fmt.Printf("%s %s\n\n", boldCyan(snap.Persona.Name+":"), render.Markdown(msg.Content, session.Location()))
	}
	printSuggestions(snap.Suggestions)

	printer := &replyPrinter{}
	unsubscribe := session.Subscribe(printer.onEvent)
	defer unsubscribe()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print(boldGreen("You: "))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(session, line); quit {
				break
			}
			continue
		}

		err := session.Submit(ctx, line)
		fmt.Println()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Println()
		printSuggestions(session.Snapshot().Suggestions)
	}
}

func runCommand(session *chat.Session, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Println(help)
	case "/name":
		updateProfile(session, chat.ProfileUpdate{Name: &arg})
	case "/date":
		updateProfile(session, chat.ProfileUpdate{PostpartumDate: &arg})
	case "/key":
		updateProfile(session, chat.ProfileUpdate{APIKey: &arg})
	case "/profile":
		printProfile(session)
	case "/suggest":
		printSuggestions(session.Snapshot().Suggestions)
	default:
		fmt.Fprintf(os.Stderr, "%s unknown command %s\n", errorColor("error:"), name)
	}
	return false
}

func updateProfile(session *chat.Session, update chat.ProfileUpdate) {
	if _, err := session.UpdateProfile(update); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor("error:"), err)
		return
	}
	printProfile(session)
}

func printProfile(session *chat.Session) {
	profile := session.Snapshot().Profile
	name := profile.Name
	if name == "" {
		name = "(not set)"
	}
	key := "server default"
	if profile.HasAPIKey() {
		key = "your own"
	}
	fmt.Printf("%s %s\n", faint("Name:"), name)
	fmt.Println(faint(render.ProfileDate(profile, session.Location())))
	fmt.Printf("%s %s\n", faint("Key:"), key)
}

func printSuggestions(suggestions []string) {
	if len(suggestions) == 0 {
		return
	}
	fmt.Println(faint("Try:"))
	for _, s := range suggestions {
		fmt.Printf("  %s\n", faint("· "+s))
	}
	fmt.Println()
}
