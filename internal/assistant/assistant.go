// Package assistant answers chat messages: bot commands, session memory
// management and free-text questions backed by the generator.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
	"github.com/abduznik/AI-PR-Analyzer/internal/llm"
	"github.com/abduznik/AI-PR-Analyzer/internal/logfields"
	"github.com/abduznik/AI-PR-Analyzer/internal/memory"
	"github.com/abduznik/AI-PR-Analyzer/internal/metrics"
	"github.com/abduznik/AI-PR-Analyzer/internal/notify"
	"github.com/abduznik/AI-PR-Analyzer/internal/telegram"
)

const systemPrompt = `You are a helpful AI Assistant integrated with the user's GitHub.
Answer the user.
- If they asked about issues and you have the list, summarize them.
- If they asked about code, write code.
- If context is missing, ask them to specify the repository name.`

const helpText = `Commands:
/check - run a PR check now
/clear - forget the current conversation
/wipe - delete everything stored for this chat
/save <name> - save the current conversation
/load <name> - restore a saved conversation
/delete <name> - delete a saved conversation
/sessions - list saved conversations
Anything else is answered by the assistant.`

// Checker starts a review pass on request. It returns once the pass is
// accepted, not when it finishes.
type Checker interface {
	TriggerCheck(ctx context.Context, chatID string) error
}

// ChatActions shows transient chat status.
type ChatActions interface {
	SendChatAction(ctx context.Context, chatID, action string) error
}

// Handler routes incoming messages.
type Handler struct {
	memory    *memory.Store
	generator llm.Generator
	sink      notify.Sink
	issues    IssueSource
	actions   ChatActions
	checker   Checker
	recorder  metrics.Recorder
	logger    *slog.Logger
	schedule  string
	ownedScan int
	maxIssues int
}

// Option configures a Handler.
type Option func(*Handler)

// WithIssueSource enables GitHub issue context for free-text questions.
func WithIssueSource(s IssueSource) Option { return func(h *Handler) { h.issues = s } }

// WithChatActions enables the typing indicator.
func WithChatActions(a ChatActions) Option { return func(h *Handler) { h.actions = a } }

// WithChecker enables /check.
func WithChecker(c Checker) Option { return func(h *Handler) { h.checker = c } }

// WithRecorder sets the metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(h *Handler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithIssueLimits bounds the owned repositories scanned for a name match
// and the issues placed in the prompt.
func WithIssueLimits(ownedRepos, issues int) Option {
	return func(h *Handler) {
		if ownedRepos > 0 {
			h.ownedScan = ownedRepos
		}
		if issues > 0 {
			h.maxIssues = issues
		}
	}
}

// WithSchedule sets the cron expression reported by /start.
func WithSchedule(cron string) Option { return func(h *Handler) { h.schedule = cron } }

// NewHandler creates a Handler.
func NewHandler(store *memory.Store, gen llm.Generator, sink notify.Sink, opts ...Option) *Handler {
	h := &Handler{
		memory:    store,
		generator: gen,
		sink:      sink,
		recorder:  metrics.NoopRecorder{},
		logger:    slog.Default(),
		schedule:  "0 7,13,19 * * *",
		ownedScan: defaultOwnedScan,
		maxIssues: defaultMaxIssues,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleUpdate is a telegram.HandlerFunc.
func (h *Handler) HandleUpdate(ctx context.Context, u telegram.Update) {
	if u.Message == nil || strings.TrimSpace(u.Message.Text) == "" {
		return
	}
	h.Handle(ctx, strconv.FormatInt(u.Message.Chat.ID, 10), u.Message.Text)
}

// Handle answers one message from chatID.
func (h *Handler) Handle(ctx context.Context, chatID, text string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		h.recorder.IncAssistantCommand("message")
		h.answer(ctx, chatID, text)
		return
	}

	cmd, arg := parseCommand(text)
	h.recorder.IncAssistantCommand(cmd)
	h.logger.Info("Command received", logfields.ChatID(chatID), logfields.Command(cmd))

	switch cmd {
	case "start":
		h.reply(ctx, chatID, "I am running! I will check your PRs "+DescribeSchedule(h.schedule)+".", false)
	case "help":
		h.reply(ctx, chatID, helpText, false)
	case "check":
		h.check(ctx, chatID)
	case "clear":
		h.outcome(ctx, chatID, "clear", "", func() (memory.Outcome, error) { return h.memory.ClearCurrent(ctx, chatID) },
			"🧹 Current conversation cleared.", "Nothing to clear.")
	case "wipe":
		h.outcome(ctx, chatID, "wipe", "", func() (memory.Outcome, error) { return h.memory.WipeAll(ctx, chatID) },
			"🗑 All memory for this chat deleted.", "Nothing stored for this chat.")
	case "save":
		h.outcome(ctx, chatID, "save", arg, func() (memory.Outcome, error) { return h.memory.SaveSnapshot(ctx, chatID, arg) },
			fmt.Sprintf("💾 Saved conversation %q.", arg), "Nothing to save yet.")
	case "load":
		h.outcome(ctx, chatID, "load", arg, func() (memory.Outcome, error) { return h.memory.LoadSnapshot(ctx, chatID, arg) },
			fmt.Sprintf("📂 Loaded conversation %q.", arg), fmt.Sprintf("No saved conversation named %q.", arg))
	case "delete":
		h.outcome(ctx, chatID, "delete", arg, func() (memory.Outcome, error) { return h.memory.RemoveSnapshot(ctx, chatID, arg) },
			fmt.Sprintf("Deleted conversation %q.", arg), fmt.Sprintf("No saved conversation named %q.", arg))
	case "sessions":
		h.sessions(ctx, chatID)
	default:
		h.reply(ctx, chatID, "Unknown command. Try /help.", false)
	}
}

// parseCommand splits "/cmd@bot arg" into ("cmd", "arg").
func parseCommand(text string) (string, string) {
	head, arg, _ := strings.Cut(strings.TrimPrefix(text, "/"), " ")
	head, _, _ = strings.Cut(head, "@")
	return strings.ToLower(head), strings.TrimSpace(arg)
}

func (h *Handler) check(ctx context.Context, chatID string) {
	if h.checker == nil {
		h.reply(ctx, chatID, "PR checks are not available.", false)
		return
	}
	h.reply(ctx, chatID, "🚀 Manually starting PR check...", false)
	if err := h.checker.TriggerCheck(ctx, chatID); err != nil {
		h.logger.Warn("Manual check not started", logfields.ChatID(chatID), logfields.Error(err))
		h.reply(ctx, chatID, fmt.Sprintf("⚠️ Error running check: %v", err), false)
	}
}

// outcome runs a memory mutation and replies with ok or missing.
func (h *Handler) outcome(ctx context.Context, chatID, cmd, arg string, op func() (memory.Outcome, error), ok, missing string) {
	needsName := cmd == "save" || cmd == "load" || cmd == "delete"
	if needsName && arg == "" {
		h.reply(ctx, chatID, fmt.Sprintf("Usage: /%s <name>", cmd), false)
		return
	}

	res, err := op()
	if err != nil {
		if ferrors.HasCategory(err, ferrors.CategoryValidation) {
			h.reply(ctx, chatID, fmt.Sprintf("Invalid name %q: use 1-%d characters.", arg, memory.MaxSnapshotName), false)
			return
		}
		h.logger.Error("Memory operation failed",
			logfields.ChatID(chatID), logfields.Command(cmd), logfields.Snapshot(arg), logfields.Error(err))
		h.recorder.IncStoreWriteFailure("sessions")
		h.reply(ctx, chatID, "⚠️ Could not update memory, please try again.", false)
		return
	}
	if res == memory.NotFound {
		h.reply(ctx, chatID, missing, false)
		return
	}
	h.reply(ctx, chatID, ok, false)
}

func (h *Handler) sessions(ctx context.Context, chatID string) {
	names, err := h.memory.ListSnapshots(ctx, chatID)
	if err != nil {
		h.logger.Error("Failed to list snapshots", logfields.ChatID(chatID), logfields.Error(err))
		h.reply(ctx, chatID, "⚠️ Could not read memory, please try again.", false)
		return
	}
	if len(names) == 0 {
		h.reply(ctx, chatID, "No saved conversations.", false)
		return
	}
	h.reply(ctx, chatID, "Saved conversations:\n- "+strings.Join(names, "\n- "), false)
}

// answer replies to free text. Turns are stored only after the reply was delivered.
func (h *Handler) answer(ctx context.Context, chatID, text string) {
	log := h.logger.With(logfields.ChatID(chatID))
	log.Info("User message", slog.Int("length", len(text)))

	issueContext := ""
	if h.issues != nil && mentionsIssues(text) {
		issueContext = h.lookupIssues(ctx, chatID, text)
	}

	history, err := h.memory.Context(ctx, chatID)
	if err != nil {
		log.Warn("Failed to load conversation context", logfields.Error(err))
		history = nil
	}

	prompt := buildPrompt(history, text, issueContext)
	answer, err := h.generator.Generate(ctx, prompt)
	if err != nil {
		log.Error("Assistant generation failed",
			logfields.Error(err),
			logfields.Category(string(ferrors.GetCategory(err))),
			logfields.External(ferrors.IsExternal(err)))
		h.reply(ctx, chatID, fmt.Sprintf("Error getting AI response: %v", err), false)
		return
	}

	if err := h.sink.Notify(ctx, notify.Message{ChatID: chatID, Text: answer, Markdown: true, Kind: notify.KindReply}); err != nil {
		log.Error("Failed to deliver reply", logfields.Error(err))
		return
	}

	err = h.memory.AppendTurns(ctx, chatID,
		memory.Turn{Role: memory.RoleUser, Content: text},
		memory.Turn{Role: memory.RoleAssistant, Content: answer})
	if err != nil {
		log.Error("Failed to store exchange", logfields.Error(err))
		h.recorder.IncStoreWriteFailure("sessions")
	}
}

func (h *Handler) lookupIssues(ctx context.Context, chatID, text string) string {
	if h.actions != nil {
		if err := h.actions.SendChatAction(ctx, chatID, telegram.ChatActionTyping); err != nil {
			h.logger.Debug("Chat action failed", logfields.ChatID(chatID), logfields.Error(err))
		}
	}

	repo, ok := h.findRepository(ctx, text)
	if !ok {
		return ""
	}
	h.reply(ctx, chatID, fmt.Sprintf("🔍 Found repository: %s. Fetching issues...", repo.FullName), false)

	issues, err := h.issues.OpenIssues(ctx, repo.FullName, h.maxIssues)
	if err != nil {
		h.logger.Error("Failed fetching issues", logfields.Repository(repo.FullName), logfields.Error(err))
		return ""
	}
	return formatIssues(repo.FullName, issues)
}

func buildPrompt(history []memory.Turn, text, issueContext string) llm.Prompt {
	msgs := make([]llm.Message, 0, len(history)+1)
	for _, t := range history {
		msgs = append(msgs, llm.Message{Role: llm.Role(t.Role), Content: t.Content})
	}

	query := "User Query: " + text
	if issueContext != "" {
		query += "\n\nContext Information:\n" + issueContext
	}
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: query})
	return llm.Prompt{System: systemPrompt, Messages: msgs}
}

func (h *Handler) reply(ctx context.Context, chatID, text string, markdown bool) {
	err := h.sink.Notify(ctx, notify.Message{ChatID: chatID, Text: text, Markdown: markdown, Kind: notify.KindReply})
	if err != nil {
		h.logger.Error("Failed to send reply", logfields.ChatID(chatID), logfields.Error(err))
	}
}
