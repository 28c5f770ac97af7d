package telegram

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"fiskeat/internal/backend"
	"fiskeat/internal/chat"
	"fiskeat/internal/config"
	"fiskeat/internal/flag"
	"fiskeat/internal/menu"
	"fiskeat/internal/metrics"
	"fiskeat/internal/selection"
	"fiskeat/internal/session"
	"fiskeat/internal/shared"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = `🍽 FiskEat

/menu [date] - show the menu (YYYY-MM-DD, default today)
/food <id> - item details
/filter vegan vegetarian -Allergen - filter the menu (empty clears)
/flag <meal> <id> - toggle an item's availability
/add <meal> <id> - add an item to your selection
/remove <n> - remove entry n from your selection
/clear - empty your selection
/selection - show your selection
/totals - progress against your goals
/goals - show your goals
/setgoal <nutrient> <value> - edit a goal
/savegoals, /resetgoals - save or reset the draft
/reset - forget the chat conversation
/metrics - usage and health report

Anything else is sent to the menu assistant.`

// reply is the answer to one message.
type reply struct {
	Text     string
	Markdown bool
	Keyboard *tgbotapi.InlineKeyboardMarkup
}

func markdown(format string, a ...interface{}) reply {
	return reply{Text: fmt.Sprintf(format, a...), Markdown: true}
}

func plain(text string) reply {
	return reply{Text: text}
}

// Bot wraps the Telegram API and the client session.
type Bot struct {
	api          *tgbotapi.BotAPI
	session      *session.Session
	metricsStore *metrics.Store
	history      *HistoryStore
	cfg          *config.Config
}

// NewBot initializes the Telegram Bot and sets the Webhook. metricsStore may be nil.
func NewBot(cfg *config.Config, sess *session.Session, history *HistoryStore, metricsStore *metrics.Store) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", api.Self.UserName)

	wh, err := tgbotapi.NewWebhook(cfg.TelegramWebhookURL)
	if err != nil {
		return nil, fmt.Errorf("failed to build webhook for %s: %w", cfg.TelegramWebhookURL, err)
	}
	resp, err := api.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", cfg.TelegramWebhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	return newBot(api, cfg, sess, history, metricsStore), nil
}

func newBot(api *tgbotapi.BotAPI, cfg *config.Config, sess *session.Session, history *HistoryStore, metricsStore *metrics.Store) *Bot {
	return &Bot{
		api:          api,
		session:      sess,
		metricsStore: metricsStore,
		history:      history,
		cfg:          cfg,
	}
}

// RegisterHandlers registers the webhook, health and metrics handlers on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if b.metricsStore != nil {
		mux.Handle("/metrics", b.metricsStore.Handler())
	}
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	update, err := b.api.HandleUpdate(r)
	if err != nil {
		log.Printf("Error parsing update: %v", err)
		return
	}

	if update.CallbackQuery != nil {
		if b.allowed(update.CallbackQuery.From) {
			go b.handleCallbackQuery(update.CallbackQuery)
		}
		return
	}

	if update.Message == nil || !b.allowed(update.Message.From) {
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) allowed(user *tgbotapi.User) bool {
	if user == nil {
		return false
	}
	if !b.cfg.IsUserAllowed(user.ID) {
		log.Printf("⚠️ Unauthorized access attempt from UserID: %d (@%s)", user.ID, user.UserName)
		return false
	}
	return true
}

func recoverUpdate(kind string) {
	if r := recover(); r != nil {
		log.Printf("Recovered from panic while handling %s: %v", kind, r)
	}
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	defer recoverUpdate("message")
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, _, isCmd := parseCommand(msg.Text); !isCmd {
		b.api.Send(tgbotapi.NewChatAction(msg.Chat.ID, tgbotapi.ChatTyping))
	}
	b.send(msg.Chat.ID, b.respond(ctx, msg.Chat.ID, msg.Text))
}

func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	defer recoverUpdate("callback")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Answer callback to remove spinner
	b.api.Request(tgbotapi.NewCallback(query.ID, ""))

	action, date, ok := strings.Cut(query.Data, "|")
	if !ok || action != "menu" || query.Message == nil {
		return
	}

	r := b.showMenu(ctx, date)
	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, splitMessage(r.Text, maxMessageLen)[0])
	if r.Markdown {
		edit.ParseMode = tgbotapi.ModeMarkdown
	}
	edit.ReplyMarkup = r.Keyboard
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Failed to edit menu message: %v", err)
	}
}

func (b *Bot) send(chatID int64, r reply) {
	chunks := splitMessage(r.Text, maxMessageLen)
	for i, chunk := range chunks {
		msg := tgbotapi.NewMessage(chatID, chunk)
		if r.Markdown {
			msg.ParseMode = tgbotapi.ModeMarkdown
		}
		if i == len(chunks)-1 && r.Keyboard != nil {
			msg.ReplyMarkup = *r.Keyboard
		}
		if _, err := b.api.Send(msg); err != nil {
			log.Printf("Failed to send reply to chat %d: %v", chatID, err)
			return
		}
	}
}

// respond computes the answer to one message without touching the Telegram API.
func (b *Bot) respond(ctx context.Context, chatID int64, text string) reply {
	cmd, args, isCmd := parseCommand(text)
	if !isCmd {
		return b.handleChat(ctx, chatID, text)
	}

	switch cmd {
	case "start", "help":
		return plain(helpText)
	case "menu", "today":
		date := ""
		if len(args) > 0 {
			date = args[0]
		}
		return b.showMenu(ctx, date)
	case "food":
		return b.handleFood(ctx, args)
	case "filter":
		return b.handleFilter(strings.Join(args, " "))
	case "flag":
		return b.handleFlag(ctx, args)
	case "add":
		return b.handleAdd(args)
	case "remove":
		return b.handleRemove(args)
	case "clear":
		b.session.ClearSelection()
		return plain("🧺 Selection cleared.")
	case "selection":
		return markdown("%s", formatSelection(b.session.Selection(), b.session.Totals()))
	case "totals", "progress":
		return markdown("%s", formatProgress(b.session.Progress()))
	case "goals":
		return markdown("%s", formatGoals(b.session.Goals(), b.session.DraftGoals()))
	case "setgoal":
		return b.handleSetGoal(args)
	case "savegoals":
		b.session.SaveGoals()
		return plain("✅ Goals saved.")
	case "resetgoals":
		b.session.ResetDraftGoals()
		return markdown("%s", formatGoals(b.session.Goals(), b.session.DraftGoals()))
	case "reset":
		if err := b.history.Clear(ctx, chatID); err != nil {
			log.Printf("Warning: failed to clear history for chat %d: %v", chatID, err)
		}
		return plain("🧹 Conversation cleared.")
	case "metrics":
		return b.handleMetrics()
	default:
		return plain("Unknown command. Send /help for the list of commands.")
	}
}

func (b *Bot) showMenu(ctx context.Context, date string) reply {
	if date == "" {
		date = b.session.Today()
	}

	loaded, err := b.session.Navigate(ctx, date)
	switch {
	case errors.Is(err, session.ErrSuperseded):
		return plain("⏳ A newer menu request replaced this one.")
	case errors.Is(err, backend.ErrNotFound):
		return markdown("📭 No menu available for *%s*.", escapeMarkdown(date))
	case err != nil:
		log.Printf("Error loading menu for %s: %v", date, err)
		if bn, ok := b.session.Banner(); ok {
			return plain("❌ " + bn.Message)
		}
		return plain("❌ Failed to load menu. Please try again.")
	}

	r := markdown("%s", formatMenu(b.session.FilteredView(loaded), !b.session.Criteria().IsZero(), b.session.IsUpdating))
	if loaded != nil {
		r.Keyboard = navKeyboard(loaded.Date)
	}
	return r
}

// navKeyboard offers the previous and next day.
func navKeyboard(date string) *tgbotapi.InlineKeyboardMarkup {
	day, err := time.Parse(menu.DateLayout, date)
	if err != nil {
		return nil
	}
	prev := day.AddDate(0, 0, -1).Format(menu.DateLayout)
	next := day.AddDate(0, 0, 1).Format(menu.DateLayout)

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("◀️ "+prev, "menu|"+prev),
			tgbotapi.NewInlineKeyboardButtonData(next+" ▶️", "menu|"+next),
		),
	)
	return &keyboard
}

func (b *Bot) handleFood(ctx context.Context, args []string) reply {
	if len(args) != 1 {
		return plain("Usage: /food <id>")
	}
	item, err := b.session.FoodDetail(ctx, args[0])
	if errors.Is(err, backend.ErrNotFound) {
		return plain("Food item not found.")
	}
	if err != nil {
		log.Printf("Error fetching food %s: %v", args[0], err)
		return plain("❌ Failed to load item details.")
	}
	return markdown("%s", formatFood(item))
}

func (b *Bot) handleFilter(raw string) reply {
	c, err := parseFilterArgs(raw)
	if err != nil {
		return plain("❌ " + err.Error() + ". Example: /filter vegan -Peanuts")
	}
	b.session.SetCriteria(c)

	snap := b.session.FilteredMenu()
	if snap == nil {
		if c.IsZero() {
			return plain("Filters cleared.")
		}
		return plain("Filters set. Use /menu to see the menu.")
	}
	r := markdown("%s", formatMenu(snap, !c.IsZero(), b.session.IsUpdating))
	r.Keyboard = navKeyboard(snap.Date)
	return r
}

func (b *Bot) handleFlag(ctx context.Context, args []string) reply {
	meal, id, err := parseItemArgs(args)
	if err != nil {
		return plain("Usage: /flag <meal> <id>")
	}
	if b.session.Menu() == nil {
		return plain("No menu loaded. Use /menu first.")
	}

	res, err := b.session.ToggleFlag(ctx, meal, id)
	if err != nil {
		var fe *flag.Error
		if errors.As(err, &fe) {
			if fe.Kind == flag.KindBusy {
				return plain("⏳ That item is already being updated.")
			}
			return plain("❌ " + fe.Message)
		}
		return plain("❌ Failed to update flag status. Please try again.")
	}

	text := "✅ " + res.Message
	if res.Removed > 0 {
		text += fmt.Sprintf("\nRemoved %d serving(s) from your selection.", res.Removed)
	}
	return plain(text)
}

func (b *Bot) handleAdd(args []string) reply {
	meal, id, err := parseItemArgs(args)
	if err != nil {
		return plain("Usage: /add <meal> <id>")
	}

	item, err := b.session.AddItem(meal, id)
	switch {
	case errors.Is(err, selection.ErrFlagged):
		return plain("🚫 That item is marked as unavailable.")
	case errors.Is(err, session.ErrItemNotFound):
		return plain("Item not found in the current menu.")
	case err != nil:
		return plain("❌ " + err.Error())
	}
	return plain(fmt.Sprintf("➕ Added %s (%d in selection).", item.Name, len(b.session.Selection())))
}

func (b *Bot) handleRemove(args []string) reply {
	if len(args) != 1 {
		return plain("Usage: /remove <n>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return plain("Usage: /remove <n>")
	}
	if err := b.session.RemoveEntry(n - 1); err != nil {
		return plain(fmt.Sprintf("No entry %d in your selection.", n))
	}
	return plain(fmt.Sprintf("➖ Removed entry %d.", n))
}

func (b *Bot) handleSetGoal(args []string) reply {
	if len(args) != 2 {
		return plain("Usage: /setgoal <nutrient> <value>")
	}
	value, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		return plain("❌ Goal must be a number.")
	}
	if err := b.session.SetDraftGoal(args[0], value); err != nil {
		return plain("❌ " + err.Error())
	}
	return markdown("%s", formatGoals(b.session.Goals(), b.session.DraftGoals()))
}

func (b *Bot) handleMetrics() reply {
	if b.metricsStore == nil {
		return plain("Metrics are not enabled.")
	}
	usage, err := b.metricsStore.GetDailyUsage(7)
	if err != nil {
		log.Printf("Error fetching metrics: %v", err)
		return plain("❌ Error fetching metrics.")
	}
	return markdown("%s", formatMetrics(usage, metrics.GetSysHealth(b.cfg.StatePath)))
}

func (b *Bot) handleChat(ctx context.Context, chatID int64, text string) reply {
	history, err := b.history.Load(ctx, chatID)
	if err != nil {
		log.Printf("Warning: %v", err)
	}

	userMsg := chat.Message{Role: chat.RoleUser, Content: text}
	res, err := b.session.Chat(ctx, append(history, userMsg))
	b.recordChat(res.Meta)
	if errors.Is(err, session.ErrChatUnavailable) {
		return plain("The menu assistant is not configured.")
	}
	if err != nil || !res.Success {
		return plain("❌ Sorry, I could not answer that right now.")
	}

	if err := b.history.Append(ctx, chatID, userMsg, chat.Message{Role: chat.RoleAssistant, Content: res.Response}); err != nil {
		log.Printf("Warning: failed to save history for chat %d: %v", chatID, err)
	}
	return plain(res.Response)
}

func (b *Bot) recordChat(meta shared.CallMeta) {
	if b.metricsStore == nil || meta.Operation == "" {
		return
	}
	if err := b.metricsStore.RecordMeta(meta); err != nil {
		log.Printf("Warning: failed to record chat metrics: %v", err)
	}
	if meta.Usage.PromptTokens > 4000 {
		log.Printf("⚠️ Context bloat: model %s used %d prompt tokens", meta.Usage.Model, meta.Usage.PromptTokens)
	}
}
