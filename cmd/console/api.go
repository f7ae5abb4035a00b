package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jwebster45206/story-relay/pkg/chat"
	"github.com/jwebster45206/story-relay/pkg/relayclient"
	"github.com/jwebster45206/story-relay/pkg/scenario"
)

type scenariosLoadedMsg struct {
	scenarios []scenario.Summary
	err       error
}

type scenarioLoadedMsg struct {
	scenario *scenario.Scenario
	err      error
}

// fragmentMsg carries one piece of streamed narrator text.
type fragmentMsg struct {
	text string
}

// streamDoneMsg ends a turn; err is nil on a clean finish.
type streamDoneMsg struct {
	err error
}

func loadScenarios(client *relayclient.Client) tea.Cmd {
	return func() tea.Msg {
		list, err := client.ListScenarios(context.Background())
		return scenariosLoadedMsg{list, err}
	}
}

func loadScenario(client *relayclient.Client, id string) tea.Cmd {
	return func() tea.Msg {
		sc, err := client.GetScenario(context.Background(), id)
		return scenarioLoadedMsg{sc, err}
	}
}

// startStream runs one turn on its own goroutine and returns the channel
// its messages arrive on. The channel ends with a streamDoneMsg and is
// then closed. Once ctx is cancelled nothing more is sent, so an abandoned
// channel never pins the goroutine.
func startStream(ctx context.Context, client *relayclient.Client, req chat.TurnRequest) <-chan tea.Msg {
	ch := make(chan tea.Msg)
	go func() {
		defer close(ch)
		err := client.Stream(ctx, req, func(text string) {
			select {
			case ch <- fragmentMsg{text}:
			case <-ctx.Done():
			}
		})
		select {
		case ch <- streamDoneMsg{err}:
		case <-ctx.Done():
		}
	}()
	return ch
}

// waitForStream delivers the next message of a running turn. A channel
// closed without a streamDoneMsg means the turn was cancelled.
func waitForStream(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return streamDoneMsg{context.Canceled}
		}
		return msg
	}
}
