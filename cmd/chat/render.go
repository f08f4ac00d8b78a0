package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"chat-session/internal/domain"
)

const titleWidth = 60

var (
	userStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))
	assistantStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))
	addressStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
	currentStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
	messageStyle = lipgloss.NewStyle().
			PaddingLeft(2)
)

func chatAddress(id string) string {
	return "/chat/" + id
}

// printRouter prints the address the surface would navigate to.
type printRouter struct {
	w io.Writer
}

func (r printRouter) ChatAddressable(chatID string) {
	fmt.Fprintln(r.w, addressStyle.Render(chatAddress(chatID)))
}

func (r printRouter) Navigate(chatID string) {
	fmt.Fprintln(r.w, addressStyle.Render(chatAddress(chatID)))
}

func (r printRouter) NavigateHome() {
	fmt.Fprintln(r.w, addressStyle.Render("/"))
}

func renderHistory(w io.Writer, entries []domain.HistoryEntry, currentID string) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No chats yet"))
		return
	}
	for _, e := range entries {
		marker := "  "
		id := e.ID
		if e.ID == currentID {
			marker = "* "
			id = currentStyle.Render(e.ID)
		}
		fmt.Fprintf(w, "%s%s  %s %s\n", marker, id, truncate(e.Title, titleWidth), dimStyle.Render(fmt.Sprintf("(%d)", e.Messages)))
	}
}

func renderChat(w io.Writer, chat domain.Chat) {
	fmt.Fprintln(w, dimStyle.Render(chatAddress(chat.ID)))
	if chat.IsEmpty() {
		fmt.Fprintln(w, dimStyle.Render("No messages yet"))
		return
	}
	for _, m := range chat.Turns() {
		renderMessage(w, m)
	}
}

func renderMessage(w io.Writer, m domain.ChatMessage) {
	label := userStyle.Render("You")
	if m.Role == domain.RoleAssistant {
		label = assistantStyle.Render("Assistant")
	}
	fmt.Fprintln(w, label)
	fmt.Fprintln(w, messageStyle.Render(m.Content))
}

// truncate shortens s to a single line of at most n runes.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
