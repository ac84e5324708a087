package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"

	"chat-core/domain"
	"chat-core/domain/event"
	"chat-core/infrastructure/storage"
	"chat-core/internal"
	"chat-core/moderation"
	"chat-core/observability"
	"chat-core/runtime"
	"chat-core/services"
	"chat-core/sink"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
	exitUsage   = 3
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chatcore terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, executes the requested operation, and
// centralizes error reporting so deferred cleanup (like the database
// close) always executes before the program exits.
func run() (int, error) {
	op := flag.String("op", "channels", "operation: channels|history|send|unread|mark-read|watch")
	channelHandle := flag.String("channel", domain.GroupChannelName, "channel handle or canonical name")
	from := flag.String("from", "", "participant identifier acting as the caller")
	content := flag.String("content", "", "message content for -op send")
	limit := flag.Int("limit", 0, "history limit (0 uses the configured default)")
	includeDeleted := flag.Bool("include-deleted", false, "include soft-deleted messages in history")
	flag.Parse()

	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	roster, err := config.Roster()
	if err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Core wiring
	var sanitizer *moderation.Sanitizer
	if words := config.MaskedWordList(); len(words) > 0 {
		maskChar, err := internal.CharacterRune(config.CharReplacement)
		if err != nil {
			return exitConfig, err
		}
		if sanitizer, err = moderation.NewSanitizer(words, maskChar); err != nil {
			return exitConfig, fmt.Errorf("sanitizer init failed: %w", err)
		}
	}

	broadcaster := runtime.NewBroadcaster(logger, config.SinkTimeout)
	service := services.NewChatService(
		logger, roster,
		storage.NewChannelRepository(db, logger),
		storage.NewMessageRepository(db, logger, config.MaxContentLength),
		storage.NewReadPositionRepository(db, logger),
		broadcaster, sanitizer, config.DefaultMessageLimit,
	)
	if err = service.SeedChannels(ctx); err != nil {
		return exitRuntime, fmt.Errorf("channel seeding failed: %w", err)
	}

	// 4. Dispatch
	switch *op {
	case "channels":
		return runChannels(ctx, service)
	case "history":
		return runHistory(ctx, service, *channelHandle, *limit, *includeDeleted)
	case "send":
		return runSend(ctx, service, *channelHandle, *from, *content)
	case "unread":
		return runUnread(ctx, service, *channelHandle, *from)
	case "mark-read":
		return runMarkRead(ctx, service, *channelHandle, *from)
	case "watch":
		return runWatch(ctx, logger, service, config, *channelHandle, *from)
	default:
		return exitUsage, fmt.Errorf("unknown operation %q", *op)
	}
}

func runChannels(ctx context.Context, service *services.ChatService) (int, error) {
	channels, err := service.ListChannels(ctx)
	if err != nil {
		return exitRuntime, err
	}
	table := newTable([]string{"Name", "Type", "Participants", "Last Activity"})
	for _, c := range channels {
		lastActivity := "-"
		if !c.LastActivityAt.IsZero() {
			lastActivity = c.LastActivityAt.Format(time.RFC3339)
		}
		table.Append([]string{c.Name, string(c.Type), joinParticipants(c.Participants), lastActivity})
	}
	table.Render()
	return exitOK, nil
}

func runHistory(ctx context.Context, service *services.ChatService, handle string, limit int, includeDeleted bool) (int, error) {
	messages, err := service.GetMessages(ctx, handle, services.HistoryQuery{Limit: limit, IncludeDeleted: includeDeleted})
	if err != nil {
		return exitRuntime, err
	}
	table := newTable([]string{"Time", "Sender", "Type", "Content"})
	for _, m := range messages {
		text := m.Content
		if m.Deleted {
			text = "(deleted) " + text
		}
		table.Append([]string{m.CreatedAt.Format(time.RFC3339), string(m.Sender), string(m.Type), text})
	}
	table.Render()
	return exitOK, nil
}

func runSend(ctx context.Context, service *services.ChatService, handle, from, content string) (int, error) {
	if from == "" || content == "" {
		return exitUsage, fmt.Errorf("-op send requires -from and -content")
	}
	message, err := service.SendMessage(ctx, handle, domain.Participant(from), content, services.SendOptions{})
	if err != nil {
		return exitRuntime, err
	}
	fmt.Printf("sent %s to %s at %s\n", message.ID, message.ChannelName, message.CreatedAt.Format(time.RFC3339))
	return exitOK, nil
}

func runUnread(ctx context.Context, service *services.ChatService, handle, from string) (int, error) {
	if from == "" {
		return exitUsage, fmt.Errorf("-op unread requires -from")
	}
	count, err := service.UnreadCount(ctx, handle, domain.Participant(from))
	if err != nil {
		return exitRuntime, err
	}
	fmt.Printf("%d unread in %s for %s\n", count, handle, from)
	return exitOK, nil
}

func runMarkRead(ctx context.Context, service *services.ChatService, handle, from string) (int, error) {
	if from == "" {
		return exitUsage, fmt.Errorf("-op mark-read requires -from")
	}
	if err := service.MarkRead(ctx, handle, domain.Participant(from), nil); err != nil {
		return exitRuntime, err
	}
	fmt.Printf("marked %s read for %s\n", handle, from)
	return exitOK, nil
}

// runWatch subscribes a buffered sink on the channel's topic and prints
// incoming messages until interrupted. A heartbeat reporter runs
// alongside so long watch sessions surface their own resource usage.
func runWatch(ctx context.Context, logger *slog.Logger, service *services.ChatService,
	config internal.Config, handle, from string) (int, error) {
	if from == "" {
		return exitUsage, fmt.Errorf("-op watch requires -from")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	buffered := sink.NewBuffered(logger, config.SinkBufferSize)
	service.Subscribe(from, handle, buffered)
	defer service.Unsubscribe(from, handle)

	heartbeat := observability.NewHeartbeat(logger, config.MetricInterval)
	go func() {
		if err := heartbeat.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Heartbeat stopped", "err", err)
		}
	}()

	logger.Info("Watching channel", "handle", handle, "subscriber", from)
	for {
		select {
		case <-ctx.Done():
			logger.Info("Watch stopped")
			return exitOK, nil
		case e := <-buffered.Events():
			printEvent(e)
		}
	}
}

func printEvent(e event.DomainEvent) {
	posted, ok := e.(event.MessagePosted)
	if !ok {
		return
	}
	m := posted.Message
	stamp := m.CreatedAt.Format("15:04:05")
	switch m.Type {
	case domain.MessageSystem:
		color.Yellow.Printf("[%s] %s: %s\n", stamp, m.Sender, m.Content)
	case domain.MessageCode:
		color.Cyan.Printf("[%s] %s:\n%s\n", stamp, m.Sender, m.Content)
	default:
		color.Green.Printf("[%s] %s: ", stamp, m.Sender)
		fmt.Println(m.Content)
	}
}

func newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")
	return table
}

func joinParticipants(participants []domain.Participant) string {
	names := make([]string, len(participants))
	for i, p := range participants {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
