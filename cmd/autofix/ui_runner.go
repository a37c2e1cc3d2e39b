package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"autofix/internal/driver"
	"autofix/internal/fix"
	"autofix/internal/ui"
)

type fixOutcome struct {
	out *driver.Outcome
	err error
}

// runFixWithUI runs fn with a progress sink feeding the Bubble Tea view and
// waits for both.
func runFixWithUI(ctx context.Context, title string, rules []string, fn func(ctx context.Context, sink fix.ProgressSink) (*driver.Outcome, error)) (*driver.Outcome, error) {
	events := make(chan fix.Event, 256)
	outcomeCh := make(chan fixOutcome, 1)

	go func() {
		out, err := fn(ctx, fix.ChannelSink{Ch: events})
		outcomeCh <- fixOutcome{out: out, err: err}
		close(events)
	}()

	model := ui.NewProgressModel(title, rules, events)
	program := tea.NewProgram(model, tea.WithOutput(os.Stdout), tea.WithContext(ctx))
	_, uiErr := program.Run()
	if uiErr != nil {
		// the view is gone, keep the engine from blocking on the channel
		go func() {
			for range events {
			}
		}()
	}
	outcome := <-outcomeCh
	if uiErr != nil && outcome.err == nil {
		return outcome.out, uiErr
	}
	return outcome.out, outcome.err
}
