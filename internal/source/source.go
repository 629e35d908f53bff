// Package source delivers raw channel messages to the pipeline.
package source

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"signal-trading-bot/internal/types"
)

// ErrClosed is returned by Next after Close.
var ErrClosed = errors.New("source closed")

// record is the wire form of one message. Telegram exports name the text
// field "message" and the time "date", so both spellings are accepted.
type record struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Date      time.Time `json:"date"`
	Channel   string    `json:"channel"`
}

// decode parses one JSON record, or treats data as plain message text when
// it is not a JSON object.
func decode(data []byte, now time.Time, fallbackID string) (types.Message, error) {
	data = bytes.TrimSpace(data)
	msg := types.Message{}
	if len(data) > 0 && data[0] == '{' {
		var r record
		if err := json.Unmarshal(data, &r); err != nil {
			return types.Message{}, err
		}
		msg = types.Message{ID: r.ID, Text: r.Text, Timestamp: r.Timestamp, Channel: r.Channel}
		if msg.Text == "" {
			msg.Text = r.Message
		}
		if msg.Timestamp.IsZero() {
			msg.Timestamp = r.Date
		}
	} else {
		msg.Text = string(data)
	}

	if strings.TrimSpace(msg.Text) == "" {
		return types.Message{}, errors.New("empty message text")
	}
	if msg.ID == "" {
		msg.ID = fallbackID
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	msg.Timestamp = msg.Timestamp.UTC()
	return msg, nil
}
