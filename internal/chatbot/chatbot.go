package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"PickleChat/internal/backend"
	"PickleChat/internal/cache"
	"PickleChat/internal/call"
	"PickleChat/internal/chat"
	"PickleChat/internal/config"
	"PickleChat/internal/console"
	"PickleChat/internal/conversation"
	"PickleChat/internal/eventfeed"
	"PickleChat/internal/events"
	"PickleChat/internal/speech"
	"PickleChat/internal/storage"
	"PickleChat/internal/telemetry"
)

// Deps are the collaborators a ChatBot is assembled from
type Deps struct {
	KV          storage.KV
	Completer   chat.Completer
	Synthesizer speech.Synthesizer // nil prints utterances to Out
	Logger      *slog.Logger
	In          io.Reader
	Out         io.Writer
}

// ChatBot represents the main application
type ChatBot struct {
	config     *config.Config
	logger     *slog.Logger
	in         io.Reader
	out        io.Writer
	kv         storage.KV
	bus        *events.Bus
	store      *conversation.Store
	controller *chat.Controller
	call       *call.Session
	recognizer *console.Recognizer
	feed       *eventfeed.Server
	httpServer *http.Server
	closers    []func()
}

// NewChatBot creates a ChatBot backed by SQLite, the completion service and
// the terminal.
func NewChatBot(cfg *config.Config) (*ChatBot, error) {
	if err := cfg.ValidateCompletion(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, logFile, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(context.Background(), cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	kv, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		shutdown()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	clientOpts := []backend.ClientOption{
		backend.WithTelemetry(tracer, meter),
		backend.WithLogger(logger),
	}
	if cfg.CacheResponses {
		clientOpts = append(clientOpts, backend.WithCache(cache.New()))
	}
	client := backend.NewClient(backend.ClientConfig{
		Endpoint: cfg.Endpoint,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Timeout:  cfg.RequestTimeout,
	}, clientOpts...)

	cb, err := New(cfg, Deps{
		KV:        kv,
		Completer: client,
		Logger:    logger,
		In:        os.Stdin,
		Out:       os.Stdout,
	})
	if err != nil {
		kv.Close()
		shutdown()
		return nil, err
	}
	cb.closers = append(cb.closers, shutdown, func() { logFile.Close() })
	return cb, nil
}

// New assembles a ChatBot from deps
func New(cfg *config.Config, deps Deps) (*ChatBot, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	out := deps.Out
	if out == nil {
		out = io.Discard
	}

	bus := events.NewBus()
	store, err := conversation.NewStore(deps.KV, cfg.StorageKey, bus, conversation.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}

	if cfg.ConversationID != "" {
		if _, err := store.Load(cfg.ConversationID); err != nil {
			logger.Warn("failed to load conversation, keeping current", "conversation_id", cfg.ConversationID, "error", err)
		} else {
			logger.Info("loaded existing conversation", "conversation_id", cfg.ConversationID)
		}
	}

	renderer := console.NewRenderer(out, store)
	bus.Subscribe(renderer.Render)

	synth := deps.Synthesizer
	if synth == nil {
		synth = console.NewSynthesizer(out, cfg.SpeechCommand, logger)
	}
	recognizer := console.NewRecognizer()
	session := call.NewSession(
		deps.Completer,
		recognizer,
		speech.NewSpeaker(synth, logger),
		bus,
		logger,
		call.WithConversation(store.CurrentID),
	)

	controller := chat.NewController(store, deps.Completer, session, bus, chat.Options{
		RevealDelay: cfg.RevealDelay,
		TitleOptions: backend.Options{
			Temperature:     backend.Float(cfg.TitleTemperature),
			PresencePenalty: backend.Float(cfg.TitlePresencePenalty),
			MaxTokens:       cfg.TitleMaxTokens,
		},
	}, logger)

	cb := &ChatBot{
		config:     cfg,
		logger:     logger,
		in:         deps.In,
		out:        out,
		kv:         deps.KV,
		bus:        bus,
		store:      store,
		controller: controller,
		call:       session,
		recognizer: recognizer,
	}

	if cfg.EventsAddr != "" {
		cb.startEventFeed(cfg.EventsAddr)
	}
	return cb, nil
}

func (cb *ChatBot) startEventFeed(addr string) {
	cb.feed = eventfeed.NewServer(cb.store.List, cb.logger)
	unsubscribe := cb.bus.Subscribe(cb.feed.Publish)

	mux := http.NewServeMux()
	mux.Handle("/events", cb.feed)
	cb.httpServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		cb.logger.Info("event feed listening", "addr", addr)
		if err := cb.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cb.logger.Error("event feed server failed", "error", err)
		}
	}()

	cb.closers = append(cb.closers, func() {
		unsubscribe()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		cb.feed.Close()
		if err := cb.httpServer.Shutdown(ctx); err != nil {
			cb.logger.Error("failed to shutdown event feed", "error", err)
		}
	})
}

// handleCommand handles special commands
func (cb *ChatBot) handleCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/new":
		if cb.call.Active() {
			return false, fmt.Errorf("end the call before starting a new chat")
		}
		if _, err := cb.controller.NewChat(); err != nil {
			return false, fmt.Errorf("failed to save new chat: %w", err)
		}
		return false, nil

	case "/list":
		console.PrintList(cb.out, cb.store.List())
		return false, nil

	case "/load":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /load <id>")
		}
		if _, err := cb.controller.LoadConversation(parts[1]); err != nil {
			return false, err
		}
		return false, nil

	case "/delete":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /delete <id>")
		}
		if err := cb.controller.DeleteConversation(parts[1]); err != nil {
			return false, err
		}
		fmt.Fprintf(cb.out, "Deleted %s\n", parts[1])
		return false, nil

	case "/delete-all":
		if err := cb.controller.DeleteAll(); err != nil {
			return false, err
		}
		fmt.Fprintln(cb.out, "All chats deleted")
		return false, nil

	case "/call":
		if err := cb.call.Start(ctx); err != nil {
			return false, err
		}
		fmt.Fprintln(cb.out, "Call started. Type what you would say; /end hangs up.")
		return false, nil

	case "/end":
		if _, err := cb.call.End(); err != nil {
			return false, err
		}
		return false, nil

	case "/transcript":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /transcript <n>")
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return false, fmt.Errorf("invalid transcript number: %s", parts[1])
		}
		if _, err := cb.call.ToggleTranscript(n - 1); err != nil {
			return false, err
		}
		return false, nil

	case "/help":
		fmt.Fprintln(cb.out, "Available commands:")
		fmt.Fprintln(cb.out, "  /new             - Start a new chat")
		fmt.Fprintln(cb.out, "  /list            - List chats (* marks the current one)")
		fmt.Fprintln(cb.out, "  /load <id>       - Open a chat")
		fmt.Fprintln(cb.out, "  /delete <id>     - Delete a chat")
		fmt.Fprintln(cb.out, "  /delete-all      - Delete every chat")
		fmt.Fprintln(cb.out, "  /call            - Start a voice call")
		fmt.Fprintln(cb.out, "  /end             - End the voice call")
		fmt.Fprintln(cb.out, "  /transcript <n>  - Show or hide call transcript n")
		fmt.Fprintln(cb.out, "  /quit, /exit     - Exit")
		fmt.Fprintln(cb.out, "  /help            - Show this help message")
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

// handleLine routes a non-command line to the call or the text chat
func (cb *ChatBot) handleLine(ctx context.Context, line string) error {
	if cb.call.Active() {
		if !cb.recognizer.Feed(line) {
			fmt.Fprintln(cb.out, "(Pickle is not listening yet)")
		}
		return nil
	}
	return cb.controller.SendUserMessage(ctx, line)
}

// Run starts the chat bot and blocks until input ends or /quit
func (cb *ChatBot) Run(ctx context.Context) error {
	defer cb.Close()

	fmt.Fprintln(cb.out, "=== PickleChat ===")
	fmt.Fprintln(cb.out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(cb.out)
	cb.store.Announce()

	scanner := bufio.NewScanner(cb.in)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(cb.out, "Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.handleLine(ctx, input); err != nil {
			fmt.Fprintf(cb.out, "Error: %v\n", err)
			cb.logger.Error("failed to send message", "error", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Fprintln(cb.out, "Goodbye!")
	return nil
}

// Store exposes the conversation store
func (cb *ChatBot) Store() *conversation.Store {
	return cb.store
}

// Close ends any call and releases storage, the event feed and telemetry
func (cb *ChatBot) Close() {
	if cb.call.Active() {
		if _, err := cb.call.End(); err != nil {
			cb.logger.Error("failed to end call", "error", err)
		}
	}
	for i := len(cb.closers) - 1; i >= 0; i-- {
		cb.closers[i]()
	}
	cb.closers = nil
	if cb.kv != nil {
		if err := cb.kv.Close(); err != nil {
			cb.logger.Error("failed to close database", "error", err)
		}
		cb.kv = nil
	}
}

// OpenStore opens the conversation store for offline commands that do not
// contact the completion service. close releases the database.
func OpenStore(cfg *config.Config, logger *slog.Logger) (store *conversation.Store, closeStore func(), err error) {
	kv, err := storage.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store, err = conversation.NewStore(kv, cfg.StorageKey, events.Discard{}, conversation.WithLogger(logger))
	if err != nil {
		kv.Close()
		return nil, nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	return store, func() { kv.Close() }, nil
}
