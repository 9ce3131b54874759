package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/koyomidev/koyomi/internal/calendar"
	"github.com/koyomidev/koyomi/internal/checkin"
	"github.com/koyomidev/koyomi/internal/config"
	"github.com/koyomidev/koyomi/internal/daemon"
	"github.com/koyomidev/koyomi/internal/errors"
	"github.com/koyomidev/koyomi/internal/nlp"
	"github.com/koyomidev/koyomi/internal/notify"
	"github.com/koyomidev/koyomi/internal/session"
	"github.com/koyomidev/koyomi/internal/store"
	"github.com/koyomidev/koyomi/internal/sync"
	"github.com/koyomidev/koyomi/internal/task"
)

const contextTypeCapture = "task-capture"

// TelegramAdapter is the chat surface: command dispatch plus free-text task
// capture through short-lived sessions. Any inbound message acknowledges
// pending notifications, so replying to a check-in stops its escalation.
type TelegramAdapter struct {
	cfg      config.TelegramConfig
	loc      *time.Location
	tasks    *task.Service
	parser   *nlp.Parser
	finder   *calendar.SlotFinder
	engine   *sync.Engine
	sessions *session.Manager
	notify   *notify.Manager
	checkins *checkin.Service
	store    *store.Store

	bot     *tgbotapi.BotAPI
	updates tgbotapi.UpdatesChannel
}

type Options struct {
	Config   config.TelegramConfig
	Location *time.Location
	Tasks    *task.Service
	Parser   *nlp.Parser
	Finder   *calendar.SlotFinder
	Engine   *sync.Engine
	Sessions *session.Manager
	Notify   *notify.Manager
	Checkins *checkin.Service
	Store    *store.Store
}

func NewTelegramAdapter(opts Options) *TelegramAdapter {
	cfg := opts.Config
	if cfg.UpdateTimeout <= 0 {
		cfg.UpdateTimeout = config.DefaultTelegramUpdateTimeout
	}
	return &TelegramAdapter{
		cfg:      cfg,
		loc:      opts.Location,
		tasks:    opts.Tasks,
		parser:   opts.Parser,
		finder:   opts.Finder,
		engine:   opts.Engine,
		sessions: opts.Sessions,
		notify:   opts.Notify,
		checkins: opts.Checkins,
		store:    opts.Store,
	}
}

func (t *TelegramAdapter) Name() string { return "telegram" }

func (t *TelegramAdapter) Dependencies() []string { return []string{"store"} }

func (t *TelegramAdapter) Init(ctx context.Context) error {
	var err error
	t.bot, err = tgbotapi.NewBotAPI(t.cfg.BotToken)
	if err != nil {
		return errors.Wrap(err, "init telegram bot")
	}
	slog.Info("Telegram adapter initialized", "user", t.bot.Self.UserName)
	return nil
}

func (t *TelegramAdapter) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = t.cfg.UpdateTimeout
	t.updates = t.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case update := <-t.updates:
				t.handleUpdate(ctx, update)
			}
		}
	}()
	return nil
}

func (t *TelegramAdapter) Stop(ctx context.Context) error {
	if t.bot != nil {
		t.bot.StopReceivingUpdates()
	}
	return nil
}

func (t *TelegramAdapter) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	health := &daemon.ComponentHealth{Name: t.Name()}
	if t.bot == nil {
		health.Error = errors.Transient("telegram bot not initialized")
		return health, nil
	}
	if _, err := t.bot.GetMe(); err != nil {
		health.Error = errors.Transient("telegram connection failed: " + err.Error())
		return health, nil
	}
	health.Healthy = true
	return health, nil
}

func (t *TelegramAdapter) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	msg := update.Message
	if t.cfg.AdminChatID != 0 && msg.Chat.ID != t.cfg.AdminChatID {
		slog.Warn("Ignoring message from unknown chat", "chat_id", msg.Chat.ID)
		return
	}

	t.acknowledgePending(ctx, msg.Text)

	var reply string
	var err error
	if msg.IsCommand() {
		reply, err = t.dispatch(ctx, msg)
	} else {
		reply, err = t.captureTask(ctx, msg)
	}
	if err != nil {
		slog.Error("Failed to handle message", "command", msg.Command(), "error", err)
		reply = "Something went wrong: " + err.Error()
	}
	if reply != "" {
		t.reply(msg.Chat.ID, reply)
	}
}

func (t *TelegramAdapter) dispatch(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	args := strings.TrimSpace(msg.CommandArguments())

	switch msg.Command() {
	case "task":
		return t.cmdTask(ctx, msg, args)
	case "slots":
		return t.cmdSlots(ctx, args)
	case "schedule":
		return t.cmdSchedule(ctx, args)
	case "done":
		return t.cmdDone(ctx, args)
	case "cancel":
		return t.cmdCancel(ctx, args)
	case "checkin":
		return t.cmdCheckin(ctx)
	case "habit":
		return t.cmdHabit(ctx, args)
	case "energy":
		return t.cmdEnergy(ctx, args)
	case "sync":
		return t.cmdSync(ctx)
	case "status":
		return t.cmdStatus(ctx)
	case "end":
		return t.cmdEnd(ctx, msg)
	case "start", "help":
		return helpText, nil
	default:
		return "Unknown command. Try /help.", nil
	}
}

const helpText = `Commands:
/task <text> - create a task from a description
/slots [minutes] - list free slots
/schedule <task-id> [minutes] - book the first free slot
/done <task-id> - complete a task
/cancel <task-id> - cancel a task
/checkin - what is coming up
/habit <name> [skip] - mark a habit done (or skipped)
/energy <1-10> [evening] - record an energy level
/sync - run a calendar sync now
/status - task counts
/end - end the current capture session

Plain text also creates a task.`

func (t *TelegramAdapter) cmdTask(ctx context.Context, msg *tgbotapi.Message, args string) (string, error) {
	if args == "" {
		return "Usage: /task <description>", nil
	}
	return t.createTask(ctx, msg, args)
}

func (t *TelegramAdapter) captureTask(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	return t.createTask(ctx, msg, msg.Text)
}

// createTask runs free text through the parser inside a capture session so
// the exchange is bounded in both time and message count.
func (t *TelegramAdapter) createTask(ctx context.Context, msg *tgbotapi.Message, text string) (string, error) {
	sess, err := t.sessions.GetOrCreateSession(ctx, msg.From.ID, msg.Chat.ID, contextTypeCapture, "")
	if err != nil {
		return "", err
	}
	if t.sessions.IsAtMessageLimit(sess) {
		return "This conversation is full. Send /end and start over.", nil
	}
	if _, err := t.sessions.AddMessage(ctx, sess.SessionID, store.RoleUser, text); err != nil {
		return "", err
	}

	parsed, err := t.parser.ParseTask(ctx, text, time.Now().In(t.loc))
	if err != nil {
		return "", err
	}
	created, err := t.tasks.Create(ctx, parsed)
	if err != nil {
		return "", err
	}

	reply := fmt.Sprintf("Created %s: %s", created.ID, created.Title)
	if created.DueDate != "" {
		reply += "\nDue " + created.DueDate
	}
	if created.TimeEstimateMinutes != nil {
		reply += fmt.Sprintf("\nEstimate %d min", *created.TimeEstimateMinutes)
	}
	if _, err := t.sessions.AddMessage(ctx, sess.SessionID, store.RoleAssistant, reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (t *TelegramAdapter) cmdSlots(ctx context.Context, args string) (string, error) {
	duration := config.DefaultSlotsDurationMinutes
	if args != "" {
		n, err := strconv.Atoi(args)
		if err != nil || n <= 0 {
			return "Usage: /slots [minutes]", nil
		}
		duration = n
	}

	slots, err := t.finder.FindFreeSlots(ctx, calendar.SlotRequest{DurationMinutes: duration})
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "No free slots in the next week.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Free %d-minute slots:", duration)
	for i, slot := range slots {
		fmt.Fprintf(&b, "\n%d. %s", i+1, slot.Start.Format("Mon Jan 2 15:04"))
	}
	return b.String(), nil
}

func (t *TelegramAdapter) cmdSchedule(ctx context.Context, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "Usage: /schedule <task-id> [minutes]", nil
	}
	taskID := fields[0]

	target, err := t.tasks.Get(ctx, taskID)
	if err != nil {
		if errors.IsCategory(err, errors.ErrNotFound) {
			return "No task with id " + taskID + ".", nil
		}
		return "", err
	}

	duration := config.DefaultSlotsDurationMinutes
	if target.TimeEstimateMinutes != nil {
		duration = *target.TimeEstimateMinutes
	}
	if len(fields) > 1 {
		n, err := strconv.Atoi(fields[1])
		if err != nil || n <= 0 {
			return "Usage: /schedule <task-id> [minutes]", nil
		}
		duration = n
	}

	slots, err := t.finder.FindFreeSlots(ctx, calendar.SlotRequest{
		DurationMinutes: duration,
		MaxSlots:        1,
	})
	if err != nil {
		return "", err
	}
	if len(slots) == 0 {
		return "No free slot found for that duration.", nil
	}

	if _, err := t.engine.ScheduleTask(ctx, taskID, slots[0]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Scheduled %s for %s.",
		target.Title, slots[0].Start.Format("Mon Jan 2 15:04")), nil
}

func (t *TelegramAdapter) cmdDone(ctx context.Context, args string) (string, error) {
	if args == "" {
		return "Usage: /done <task-id>", nil
	}
	completed, err := t.tasks.Complete(ctx, args)
	if err != nil {
		if errors.IsCategory(err, errors.ErrNotFound) {
			return "No task with id " + args + ".", nil
		}
		return "", err
	}
	return "Done: " + completed.Title, nil
}

func (t *TelegramAdapter) cmdCancel(ctx context.Context, args string) (string, error) {
	if args == "" {
		return "Usage: /cancel <task-id>", nil
	}
	cancelled, err := t.tasks.Cancel(ctx, args)
	if err != nil {
		if errors.IsCategory(err, errors.ErrNotFound) {
			return "No task with id " + args + ".", nil
		}
		return "", err
	}
	return "Cancelled: " + cancelled.Title, nil
}

func (t *TelegramAdapter) cmdCheckin(ctx context.Context) (string, error) {
	if err := t.checkins.Periodic(ctx); err != nil {
		return "", err
	}
	return "Check-in sent.", nil
}

func (t *TelegramAdapter) cmdHabit(ctx context.Context, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "Usage: /habit <name> [skip]", nil
	}
	completed := !(len(fields) > 1 && strings.EqualFold(fields[1], "skip"))
	if err := t.checkins.RecordHabit(ctx, fields[0], completed); err != nil {
		return "", err
	}
	if completed {
		return "Habit " + fields[0] + " done.", nil
	}
	return "Habit " + fields[0] + " skipped.", nil
}

func (t *TelegramAdapter) cmdEnergy(ctx context.Context, args string) (string, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return "Usage: /energy <1-10> [evening]", nil
	}
	level, err := strconv.Atoi(fields[0])
	if err != nil {
		return "Usage: /energy <1-10> [evening]", nil
	}
	evening := len(fields) > 1 && strings.EqualFold(fields[1], "evening")
	if err := t.checkins.RecordEnergy(ctx, evening, level); err != nil {
		if errors.IsCategory(err, errors.ErrInvalidInput) {
			return "Energy level must be between 1 and 10.", nil
		}
		return "", err
	}
	return fmt.Sprintf("Energy level %d recorded.", level), nil
}

func (t *TelegramAdapter) cmdSync(ctx context.Context) (string, error) {
	result, err := t.engine.RunBidirectionalSync(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sync complete: %d pulled, %d pushed.", result.Pulled, result.Pushed), nil
}

func (t *TelegramAdapter) cmdStatus(ctx context.Context) (string, error) {
	active, err := t.store.TasksByStatus(ctx, store.TaskStatusActive)
	if err != nil {
		return "", err
	}
	total, err := t.store.CountTasks(ctx)
	if err != nil {
		return "", err
	}
	scheduled := 0
	for _, task := range active {
		if task.ScheduledStart != nil {
			scheduled++
		}
	}
	return fmt.Sprintf("%d active tasks (%d scheduled), %d indexed in total.",
		len(active), scheduled, total), nil
}

func (t *TelegramAdapter) cmdEnd(ctx context.Context, msg *tgbotapi.Message) (string, error) {
	sess, err := t.sessions.GetOrCreateSession(ctx, msg.From.ID, msg.Chat.ID, contextTypeCapture, "")
	if err != nil {
		return "", err
	}
	if err := t.sessions.EndSession(ctx, sess.SessionID); err != nil {
		return "", err
	}
	n, err := t.store.CountSessionMessages(ctx, sess.SessionID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Session ended after %d messages.", n), nil
}

// acknowledgePending treats any inbound message as a response to whatever is
// still waiting, so escalation stops.
func (t *TelegramAdapter) acknowledgePending(ctx context.Context, text string) {
	pending, err := t.store.PendingNotifications(ctx)
	if err != nil {
		slog.Error("Failed to list pending notifications", "error", err)
		return
	}
	summary := text
	if len(summary) > 200 {
		summary = summary[:200]
	}
	for _, n := range pending {
		if err := t.notify.Acknowledge(ctx, n.ID, summary); err != nil {
			slog.Error("Failed to acknowledge notification",
				"notification_id", n.ID, "error", err)
		}
	}
}

func (t *TelegramAdapter) reply(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := t.bot.Send(msg); err != nil {
		slog.Error("Failed to send telegram message", "chat_id", chatID, "error", err)
	}
}
