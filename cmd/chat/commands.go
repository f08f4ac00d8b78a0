package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"chat-session/internal/domain"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

func newNewCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new chat and make it current",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.ctrl.NewChat(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "new chat %s\n", id)
			return nil
		},
	}
}

func newOpenCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "open [id]",
		Short: "Open a chat by id, or a fresh one when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id string
			if len(args) == 1 {
				id = strings.TrimSpace(args[0])
			}
			if err := a.ctrl.OpenChat(cmd.Context(), id); err != nil {
				return err
			}
			if id != "" {
				if _, ok := a.store.GetChat(id); !ok {
					fmt.Fprintln(a.out, dimStyle.Render(fmt.Sprintf("chat %s not found, current chat unchanged", id)))
					return nil
				}
			}
			chat, ok := a.store.CurrentChat()
			if !ok {
				return nil
			}
			renderChat(a.out, chat)
			return nil
		},
	}
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <text...>",
		Short: "Send a message in the current chat and print the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			text := strings.Join(args, " ")
			if strings.TrimSpace(text) == "" {
				return errors.New("message must not be empty")
			}
			// Sending from a fresh install behaves like opening the chat root.
			if _, ok := a.store.CurrentChat(); !ok {
				if err := a.ctrl.OpenChat(ctx, ""); err != nil {
					return err
				}
			}
			res, err := a.ctrl.SubmitMessage(ctx, text)
			if res.Sent {
				renderMessage(a.out, domain.ChatMessage{Role: domain.RoleAssistant, Content: res.Reply})
			}
			return err
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List chats with at least one message, newest first",
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			renderHistory(a.out, a.store.History(), a.store.State().CurrentChatID)
			return nil
		},
	}
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Print a chat transcript, the current chat by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var (
				chat domain.Chat
				ok   bool
			)
			if len(args) == 1 {
				chat, ok = a.store.GetChat(strings.TrimSpace(args[0]))
				if !ok {
					return fmt.Errorf("chat %s not found", args[0])
				}
			} else {
				chat, ok = a.store.CurrentChat()
				if !ok {
					return errors.New("no current chat")
				}
			}
			renderChat(a.out, chat)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a chat; deleting the current chat starts a new one",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := strings.TrimSpace(args[0])
			if err := a.ctrl.DeleteChat(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted %s\n", id)
			return nil
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the whole session state to stdout",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			state := a.store.State()
			switch strings.ToLower(format) {
			case formatJSON:
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			case formatYAML:
				enc := yaml.NewEncoder(a.out)
				enc.SetIndent(2)
				if err := enc.Encode(state); err != nil {
					return fmt.Errorf("encode yaml: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("unsupported format %q (use json or yaml)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "Output format (json, yaml)")
	return cmd
}
