package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"

	"fiskeat/internal/chat"
	"fiskeat/internal/storage"
)

const (
	historyKeyPrefix  = "fiskeat.telegram.history."
	maxStoredMessages = 20
)

// HistoryStore keeps the chat conversation of each Telegram chat.
type HistoryStore struct {
	kv storage.KV
}

// NewHistoryStore creates a HistoryStore backed by kv.
func NewHistoryStore(kv storage.KV) *HistoryStore {
	return &HistoryStore{kv: kv}
}

func historyKey(chatID int64) string {
	return historyKeyPrefix + strconv.FormatInt(chatID, 10)
}

// Load returns the stored conversation for chatID, oldest first. An unreadable
// record is logged and treated as an empty conversation.
func (h *HistoryStore) Load(ctx context.Context, chatID int64) ([]chat.Message, error) {
	data, ok, err := h.kv.Get(ctx, historyKey(chatID))
	if err != nil {
		return nil, fmt.Errorf("failed to load history for chat %d: %w", chatID, err)
	}
	if !ok {
		return nil, nil
	}

	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Printf("Warning: discarding unreadable history for chat %d: %v", chatID, err)
		return nil, nil
	}
	return msgs, nil
}

// Append adds msgs to the conversation, keeping only the most recent messages.
func (h *HistoryStore) Append(ctx context.Context, chatID int64, msgs ...chat.Message) error {
	history, err := h.Load(ctx, chatID)
	if err != nil {
		return err
	}

	history = append(history, msgs...)
	if len(history) > maxStoredMessages {
		history = history[len(history)-maxStoredMessages:]
	}

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return h.kv.Set(ctx, historyKey(chatID), data)
}

// Clear forgets the conversation for chatID.
func (h *HistoryStore) Clear(ctx context.Context, chatID int64) error {
	return h.kv.Delete(ctx, historyKey(chatID))
}
