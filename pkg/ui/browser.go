package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/streamchat/pkg/chatclient"
)

const listWidth = 60

var (
	listPane   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
	detailPane = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	keyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF"))
	emptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
)

type recordItem struct {
	rec chatclient.ExchangeRecord
}

func (i recordItem) Title() string {
	return firstLine(i.rec.Prompt, 40)
}

func (i recordItem) Description() string {
	return fmt.Sprintf("%s  %s", i.rec.StartedAt.Local().Format("2006-01-02 15:04"), i.rec.State)
}

func (i recordItem) FilterValue() string { return i.rec.Prompt + " " + i.rec.Reply }

func firstLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n-1]) + "…"
	}
	return s
}

// FormatRecord renders one journal entry for the detail pane.
func FormatRecord(r chatclient.ExchangeRecord) string {
	var b strings.Builder
	field := func(k, v string) {
		if v != "" {
			b.WriteString(keyStyle.Render(k+": ") + v + "\n")
		}
	}
	field("exchange", r.ExchangeID)
	field("session", r.SessionID)
	field("state", r.State.String())
	field("model", r.Model)
	field("mode", r.Mode)
	field("started", r.StartedAt.Local().Format(time.RFC3339))
	field("took", r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String())
	b.WriteString("\n" + userStyle.Render("you") + "\n" + r.Prompt + "\n")
	if r.Reply != "" {
		b.WriteString("\n" + assistantStyle.Render("assistant") + "\n" + r.Reply + "\n")
	}
	if r.Error != "" {
		b.WriteString("\n" + errorStyle.Render(r.Error) + "\n")
	}
	return b.String()
}

// Browser is a two-pane view over journal entries. Enter zooms the detail pane.
type Browser struct {
	list     list.Model
	detail   viewport.Model
	selected int
	zoomed   bool
	width    int
	height   int
}

func NewBrowser(records []chatclient.ExchangeRecord) Browser {
	items := make([]list.Item, 0, len(records))
	for _, r := range records {
		items = append(items, recordItem{rec: r})
	}
	l := list.New(items, list.NewDefaultDelegate(), listWidth, 20)
	l.Title = "Exchanges"
	l.SetShowHelp(false)

	b := Browser{list: l, detail: viewport.New(60, 20), selected: -1}
	b.sync()
	return b
}

func (b Browser) Init() tea.Cmd { return nil }

func (b Browser) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch ev := msg.(type) {
	case tea.WindowSizeMsg:
		b.width, b.height = ev.Width, ev.Height
		b.list.SetSize(listWidth, max(ev.Height-2, 1))
		b.resizeDetail()
		return b, nil

	case tea.KeyMsg:
		if b.list.FilterState() == list.Filtering {
			break
		}
		switch ev.String() {
		case "q", "ctrl+c":
			return b, tea.Quit
		case "enter":
			if b.selected >= 0 {
				b.zoomed = !b.zoomed
				b.resizeDetail()
			}
			return b, nil
		case "esc":
			if b.zoomed {
				b.zoomed = false
				b.resizeDetail()
				return b, nil
			}
		}
		if b.zoomed {
			var cmd tea.Cmd
			b.detail, cmd = b.detail.Update(ev)
			return b, cmd
		}
	}

	var cmd tea.Cmd
	b.list, cmd = b.list.Update(msg)
	b.sync()
	return b, cmd
}

// sync points the detail pane at the list selection when it moved.
func (b *Browser) sync() {
	idx := b.list.Index()
	if _, ok := b.list.SelectedItem().(recordItem); !ok {
		idx = -1
	}
	if idx == b.selected {
		return
	}
	b.selected = idx
	if item, ok := b.list.SelectedItem().(recordItem); ok {
		b.detail.SetContent(FormatRecord(item.rec))
		b.detail.GotoTop()
	}
}

func (b *Browser) resizeDetail() {
	if b.width == 0 {
		return
	}
	w := b.width - listWidth - 6
	if b.zoomed {
		w = b.width - 4
	}
	b.detail.Width = max(w, 10)
	b.detail.Height = max(b.height-4, 1)
}

func (b Browser) View() string {
	if b.selected < 0 {
		return lipgloss.JoinHorizontal(lipgloss.Top,
			listPane.Render(b.list.View()),
			detailPane.Render(emptyStyle.Render("journal is empty")))
	}
	if b.zoomed {
		return detailPane.Render(b.detail.View())
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, listPane.Render(b.list.View()), detailPane.Render(b.detail.View()))
}
