package simplified

import (
	"math"
	"time"

	"github.com/poiesic/vellum/core"
)

// Conversation is one exported thread in the simplified export format.
// Timestamps are fractional Unix seconds.
type Conversation struct {
	ConversationID string    `json:"conversation_id"`
	Title          string    `json:"title,omitempty"`
	CreateTime     *float64  `json:"create_time,omitempty"`
	UpdateTime     *float64  `json:"update_time,omitempty"`
	Messages       []Message `json:"messages"`
}

// Message is a single message of a simplified conversation.
type Message struct {
	Role        string   `json:"role"`
	Name        string   `json:"name,omitempty"`
	CreateTime  *float64 `json:"create_time,omitempty"`
	ContentType string   `json:"content_type,omitempty"`
	Text        string   `json:"text,omitempty"`

	Domain string `json:"domain,omitempty"`
	Title  string `json:"title,omitempty"`
	URL    string `json:"url,omitempty"`
}

// toCore drops messages without text; they carry nothing to summarize.
func (c *Conversation) toCore() *core.Conversation {
	conv := &core.Conversation{
		ID:       c.ConversationID,
		Title:    c.Title,
		Messages: make([]core.Message, 0, len(c.Messages)),
	}
	for _, m := range c.Messages {
		if m.Text == "" {
			continue
		}
		conv.Messages = append(conv.Messages, core.Message{
			Role:       m.Role,
			Text:       m.Text,
			CreateTime: fromUnix(m.CreateTime),
		})
	}
	return conv
}

func fromCore(conv *core.Conversation) *Conversation {
	c := &Conversation{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Messages:       make([]Message, len(conv.Messages)),
	}
	for i, m := range conv.Messages {
		c.Messages[i] = Message{
			Role:        m.Role,
			CreateTime:  toUnix(m.CreateTime),
			ContentType: "text",
			Text:        m.Text,
		}
	}
	if n := len(conv.Messages); n > 0 {
		c.CreateTime = c.Messages[0].CreateTime
		c.UpdateTime = c.Messages[n-1].CreateTime
	}
	return c
}

func fromUnix(secs *float64) *time.Time {
	if secs == nil {
		return nil
	}
	whole, frac := math.Modf(*secs)
	t := time.Unix(int64(whole), int64(frac*1e9)).UTC()
	return &t
}

func toUnix(t *time.Time) *float64 {
	if t == nil {
		return nil
	}
	secs := float64(t.UnixMicro()) / 1e6
	return &secs
}
