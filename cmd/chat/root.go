package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"chat-session/internal/conversation"
	"chat-session/internal/repository"
	"chat-session/internal/session"
)

type options struct {
	store        string
	storePath    string
	redisAddr    string
	redisPrefix  string
	table        string
	key          string
	sender       string
	apiURL       string
	model        string
	openaiURL    string
	systemPrompt string
	paramPrefix  string
	verbose      bool
}

// app holds what the subcommands share for one invocation.
type app struct {
	opts    options
	out     io.Writer
	errOut  io.Writer
	backend repository.Backend
	store   *session.Store
	ctrl    *conversation.Controller
}

var openBackend = repository.Open

// execute runs one CLI invocation. The backend is closed on every exit path,
// including failed commands, which cobra's post-run hooks skip.
func execute(ctx context.Context, out, errOut io.Writer, args []string) error {
	a := &app{out: out, errOut: errOut}
	defer func() {
		if err := a.close(); err != nil {
			slog.Warn("failed to close session store", "err", err)
		}
	}()
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func newRootCmd(a *app) *cobra.Command {

	root := &cobra.Command{
		Use:   "chat",
		Short: "Keep a local history of chats with a language model",
		Long: `Keep a local history of chats with a language model.

Every chat gets an address of the form /chat/<id> once its first turn
completes. History is persisted after every change to the configured store.

Quick Start:
  chat send "What is a goroutine?"   # talk in the current chat
  chat list                          # list chats, newest first
  chat open <id>                     # switch to an earlier chat
  chat new                           # start over`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelInfo
			if a.opts.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(a.errOut, &slog.HandlerOptions{Level: level})))
			return a.open(cmd)
		},
	}
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.opts.store, "store", envOr("CHAT_STORE", repository.KindFile), "Session store backend (file, sqlite, redis, dynamodb, memory)")
	flags.StringVar(&a.opts.storePath, "store-path", envOr("CHAT_STORE_PATH", defaultStorePath()), "Directory for the file store or database file for sqlite")
	flags.StringVar(&a.opts.redisAddr, "redis-addr", envOr("CHAT_REDIS_ADDR", "localhost:6379"), "Redis address")
	flags.StringVar(&a.opts.redisPrefix, "redis-prefix", envOr("CHAT_REDIS_PREFIX", "chat-session:"), "Prefix for Redis keys")
	flags.StringVar(&a.opts.table, "table", envOr("CHAT_TABLE", ""), "DynamoDB table name")
	flags.StringVar(&a.opts.key, "key", envOr("CHAT_KEY", session.DefaultKey), "Key the session state is stored under")
	flags.StringVar(&a.opts.sender, "sender", envOr("CHAT_SENDER", senderOpenAI), "Reply backend (openai, api)")
	flags.StringVar(&a.opts.apiURL, "api-url", envOr("CHAT_API_URL", ""), "Chat endpoint URL for --sender api")
	flags.StringVar(&a.opts.model, "model", envOr("CHAT_MODEL", ""), "OpenAI model for --sender openai")
	flags.StringVar(&a.opts.openaiURL, "openai-url", envOr("CHAT_OPENAI_URL", ""), "OpenAI-compatible API base URL for --sender openai")
	flags.StringVar(&a.opts.systemPrompt, "system-prompt", envOr("CHAT_SYSTEM_PROMPT", ""), "System prompt sent before every message with --sender openai")
	flags.StringVar(&a.opts.paramPrefix, "param-prefix", envOr("CHAT_PARAM_PREFIX", ""), "SSM parameter prefix holding the OpenAI token")
	flags.BoolVarP(&a.opts.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newNewCmd(a),
		newOpenCmd(a),
		newSendCmd(a),
		newListCmd(a),
		newShowCmd(a),
		newDeleteCmd(a),
		newExportCmd(a),
	)
	return root
}

func (a *app) open(cmd *cobra.Command) error {
	ctx := cmd.Context()
	path, err := a.resolveStorePath(cmd)
	if err != nil {
		return err
	}
	backend, err := openBackend(ctx, repository.Config{
		Kind:        a.opts.store,
		Path:        path,
		RedisAddr:   a.opts.redisAddr,
		RedisPrefix: a.opts.redisPrefix,
		Table:       a.opts.table,
	})
	if err != nil {
		return fmt.Errorf("open %s store: %w", a.opts.store, err)
	}

	store, err := session.Open(ctx, backend, session.WithKey(a.opts.key))
	if err != nil {
		_ = backend.Close()
		return fmt.Errorf("load session: %w", err)
	}

	sender := &lazySender{build: func() (conversation.Sender, error) {
		return newSender(ctx, a.opts)
	}}
	ctrl, err := conversation.NewController(store, sender, conversation.WithRouter(printRouter{w: a.out}))
	if err != nil {
		_ = backend.Close()
		return err
	}

	a.backend = backend
	a.store = store
	a.ctrl = ctrl
	return nil
}

// resolveStorePath turns the default store directory into a database file
// for sqlite and makes sure its parent directory exists.
func (a *app) resolveStorePath(cmd *cobra.Command) (string, error) {
	path := a.opts.storePath
	if a.opts.store != repository.KindSQLite {
		return path, nil
	}
	if !cmd.Flags().Changed("store-path") && os.Getenv("CHAT_STORE_PATH") == "" {
		path = filepath.Join(path, "session.db")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create store directory: %w", err)
	}
	return path, nil
}

func (a *app) close() error {
	if a.backend == nil {
		return nil
	}
	err := a.backend.Close()
	a.backend = nil
	return err
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func defaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chat-session"
	}
	return filepath.Join(home, ".chat-session")
}
