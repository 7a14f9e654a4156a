package chatclient

import (
	"strconv"
	"sync"
	"time"
)

const (
	DefaultWelcomeMessage = "Hi, how can I help you?"
	welcomeMessageID      = "welcome"
)

// MessageLog is the ordered message sequence of the active session. It is never
// empty: an empty conversation holds a single welcome message.
//
// While an exchange is in flight the last entry is the assistant placeholder and
// building is set; only MutateLast may touch the log until Seal is called.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
	building bool
	seq      uint64
	welcome  string
	now      func() time.Time
}

type MessageLogOption func(*MessageLog)

// WithLogClock sets the clock used for message timestamps.
func WithLogClock(now func() time.Time) MessageLogOption {
	return func(l *MessageLog) { l.now = now }
}

func NewMessageLog(welcome string, opts ...MessageLogOption) *MessageLog {
	if welcome == "" {
		welcome = DefaultWelcomeMessage
	}
	l := &MessageLog{welcome: welcome, now: time.Now}
	for _, o := range opts {
		o(l)
	}
	l.messages = []Message{l.welcomeMessage()}
	return l
}

func (l *MessageLog) welcomeMessage() Message {
	return Message{
		ID:        welcomeMessageID,
		Role:      RoleAssistant,
		Content:   l.welcome,
		Timestamp: NewTimestamp(l.now()),
	}
}

func (l *MessageLog) nextIDLocked() string {
	l.seq++
	return "local-" + strconv.FormatUint(l.seq, 10)
}

// Reset replaces the log with the single welcome message.
func (l *MessageLog) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.building {
		return invariantf("reset while an assistant reply is under construction")
	}
	l.messages = []Message{l.welcomeMessage()}
	return nil
}

// Replace swaps in the messages of another session.
func (l *MessageLog) Replace(messages []Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.building {
		return invariantf("replace while an assistant reply is under construction")
	}
	if len(messages) == 0 {
		l.messages = []Message{l.welcomeMessage()}
		return nil
	}
	l.messages = append(make([]Message, 0, len(messages)), messages...)
	return nil
}

func (l *MessageLog) AppendUser(content string) (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.building {
		return Message{}, invariantf("append user message while an assistant reply is under construction")
	}
	m := Message{
		ID:          l.nextIDLocked(),
		Role:        RoleUser,
		Content:     content,
		Timestamp:   NewTimestamp(l.now()),
		Provisional: true,
	}
	l.messages = append(l.messages, m)
	return m, nil
}

// AppendAssistantPlaceholder appends the empty reply that MutateLast fills in.
func (l *MessageLog) AppendAssistantPlaceholder() (Message, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.building {
		return Message{}, invariantf("placeholder already under construction")
	}
	m := Message{
		ID:          l.nextIDLocked(),
		Role:        RoleAssistant,
		Timestamp:   NewTimestamp(l.now()),
		Provisional: true,
	}
	l.messages = append(l.messages, m)
	l.building = true
	return m, nil
}

// MutateLast appends delta to the placeholder under construction.
func (l *MessageLog) MutateLast(delta string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.building || len(l.messages) == 0 {
		return invariantf("mutate last: no assistant placeholder under construction")
	}
	last := &l.messages[len(l.messages)-1]
	if last.Role != RoleAssistant {
		return invariantf("mutate last: last message has role %q", last.Role)
	}
	last.Content += delta
	return nil
}

// Seal ends construction of the placeholder; its content is kept as-is.
func (l *MessageLog) Seal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.building = false
}

func (l *MessageLog) Building() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.building
}

// Messages returns a copy of the log.
func (l *MessageLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Message(nil), l.messages...)
}

func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *MessageLog) Last() Message {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.messages[len(l.messages)-1]
}
