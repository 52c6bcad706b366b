package tui_test

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"docqa/internal/domain"
	"docqa/internal/service"
	"docqa/internal/tui"
)

type stubChat struct {
	asked   []string
	cleared int
	err     error
}

func (s *stubChat) Ask(_ context.Context, q string) (service.Answer, error) {
	s.asked = append(s.asked, q)
	if s.err != nil {
		return service.Answer{}, s.err
	}
	return service.Answer{
		Text: "It is blue",
		Sources: []domain.SearchResult{
			{Chunk: domain.Chunk{Source: "sky.pdf", Text: "The sky is blue."}, Score: 0.9},
			{Chunk: domain.Chunk{Source: "grass.pdf", Text: "Grass is green."}, Score: 0.1},
		},
	}, nil
}

func (s *stubChat) ClearHistory() { s.cleared++ }

func update(m tea.Model, msg tea.Msg) (tea.Model, tea.Cmd) {
	return m.Update(msg)
}

func typeText(m tea.Model, text string) tea.Model {
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

var _ = Describe("Model", func() {
	var (
		chat *stubChat
		m    tea.Model
	)

	BeforeEach(func() {
		chat = &stubChat{}
		m = tui.New(context.Background(), chat, "2 documents indexed")
		m, _ = update(m, tea.WindowSizeMsg{Width: 100, Height: 30})
	})

	ask := func(q string) {
		m = typeText(m, q)
		var cmd tea.Cmd
		m, cmd = update(m, tea.KeyMsg{Type: tea.KeyEnter})
		Expect(cmd).NotTo(BeNil())
		m, _ = update(m, cmd())
	}

	It("shows the summary before any question", func() {
		Expect(m.View()).To(ContainSubstring("2 documents indexed"))
		Expect(m.View()).To(ContainSubstring("No answer yet."))
	})

	It("asks the service and shows the answer with its first source", func() {
		ask("What color is the sky?")
		Expect(chat.asked).To(Equal([]string{"What color is the sky?"}))

		view := m.View()
		Expect(view).To(ContainSubstring("It is blue"))
		Expect(view).To(ContainSubstring("Source 1/2: sky.pdf"))
		Expect(view).To(ContainSubstring("Answered from 2 source(s)"))
	})

	It("cycles through sources", func() {
		ask("What color is the sky?")
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
		Expect(m.View()).To(ContainSubstring("Source 2/2: grass.pdf"))
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
		Expect(m.View()).To(ContainSubstring("Source 1/2: sky.pdf"))
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
		Expect(m.View()).To(ContainSubstring("Source 2/2: grass.pdf"))
	})

	It("ignores an empty question", func() {
		_, cmd := update(m, tea.KeyMsg{Type: tea.KeyEnter})
		Expect(cmd).To(BeNil())
		Expect(chat.asked).To(BeEmpty())
	})

	It("explains a missing index", func() {
		chat.err = domain.ErrIndexNotFound
		ask("anything")
		Expect(m.View()).To(ContainSubstring("Not ready"))
	})

	It("clears history on ctrl+l", func() {
		ask("What color is the sky?")
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlL})
		Expect(chat.cleared).To(Equal(1))
		Expect(m.View()).To(ContainSubstring("History cleared."))
		Expect(m.View()).To(ContainSubstring("No answer yet."))
	})
})
