package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"

	"gpuconsole/api"
	"gpuconsole/failover"
	"gpuconsole/reserve"
	"gpuconsole/toast"
)

// Model is the bubbletea model for the console.
type Model struct {
	ctx          context.Context
	client       *api.Client
	watcher      *failover.Watcher
	negotiator   *reserve.Negotiator
	toasts       *toast.Queue
	stats        *api.PollStats
	failoverCh   <-chan failover.Event
	startWatcher func() // called once from Init to start the watcher
	started      bool

	instanceID string
	offers     []api.GPUOffer
	offerIdx   int
	banner     failover.State
	submitErr  string
	width      int
	height     int
	frame      int // spinner frame, advanced by TickMsg
}

// NewModel creates the console model.
func NewModel(ctx context.Context, client *api.Client, watcher *failover.Watcher, negotiator *reserve.Negotiator, toasts *toast.Queue, stats *api.PollStats, instanceID string, startWatcher func()) Model {
	return Model{
		ctx:          ctx,
		client:       client,
		watcher:      watcher,
		negotiator:   negotiator,
		toasts:       toasts,
		stats:        stats,
		failoverCh:   watcher.Subscribe(),
		startWatcher: startWatcher,
		instanceID:   instanceID,
	}
}

// Init returns the initial commands.
func (m Model) Init() tea.Cmd {
	// Start the watcher now that the TUI is ready to receive messages.
	if m.startWatcher != nil && !m.started {
		m.startWatcher()
	}
	return tea.Batch(
		waitForFailover(m.failoverCh),
		waitForUpdate(m.negotiator.Updates(), QuoteUpdatedMsg{}),
		waitForUpdate(m.toasts.Updates(), ToastsChangedMsg{}),
		m.loadOffers(),
		tickCmd(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case OffersLoadedMsg:
		if msg.Err != nil {
			m.toasts.Error("Failed to load GPU catalog: " + msg.Err.Error())
			return m, nil
		}
		m.offers = msg.Offers
		if len(m.offers) > 0 {
			m.negotiator.SetGPUType(m.offers[0].GPUType)
		}
		return m, nil

	case FailoverEventMsg:
		m.banner = msg.Event.State
		return m, waitForFailover(m.failoverCh)

	case QuoteUpdatedMsg:
		return m, waitForUpdate(m.negotiator.Updates(), QuoteUpdatedMsg{})

	case ToastsChangedMsg:
		return m, waitForUpdate(m.toasts.Updates(), ToastsChangedMsg{})

	case SubmitResultMsg:
		if msg.Err != nil {
			m.submitErr = msg.Err.Error()
			return m, nil
		}
		m.submitErr = ""
		m.toasts.Success(fmt.Sprintf("Reservation %s created", msg.Reservation.ID))
		return m, nil

	case TickMsg:
		m.frame++
		return m, tickCmd()
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	params := m.negotiator.Snapshot().Params

	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "g":
		if len(m.offers) > 0 {
			m.offerIdx = (m.offerIdx + 1) % len(m.offers)
			m.negotiator.SetGPUType(m.offers[m.offerIdx].GPUType)
		}
		return m, nil

	case "+", "=":
		m.negotiator.SetGPUCount(params.GPUCount + 1)
		return m, nil

	case "-", "_":
		if params.GPUCount > 1 {
			m.negotiator.SetGPUCount(params.GPUCount - 1)
		}
		return m, nil

	case "s":
		m.negotiator.SetStart(params.Start.Add(-time.Hour))
		return m, nil
	case "S":
		m.negotiator.SetStart(params.Start.Add(time.Hour))
		return m, nil
	case "e":
		m.negotiator.SetEnd(params.End.Add(-time.Hour))
		return m, nil
	case "E":
		m.negotiator.SetEnd(params.End.Add(time.Hour))
		return m, nil

	case "enter":
		m.submitErr = ""
		return m, m.submit()

	case "x":
		m.watcher.Dismiss()
		return m, nil
	}

	return m, nil
}

// submit runs the reservation submission off the UI loop.
func (m Model) submit() tea.Cmd {
	negotiator := m.negotiator
	ctx := m.ctx
	return func() tea.Msg {
		res, err := negotiator.Submit(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("tui: reservation submit failed")
		}
		return SubmitResultMsg{Reservation: res, Err: err}
	}
}

func (m Model) loadOffers() tea.Cmd {
	client := m.client
	ctx := m.ctx
	return func() tea.Msg {
		offers, err := client.ListOffers(ctx)
		return OffersLoadedMsg{Offers: offers, Err: err}
	}
}

// waitForFailover returns a command that waits for the next watcher event.
func waitForFailover(ch <-chan failover.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		if !ok {
			return nil
		}
		return FailoverEventMsg{Event: evt}
	}
}

// waitForUpdate returns a command that waits for a coalesced change signal
// and forwards msg to the update loop.
func waitForUpdate(ch <-chan struct{}, msg tea.Msg) tea.Cmd {
	return func() tea.Msg {
		_, ok := <-ch
		if !ok {
			return nil
		}
		return msg
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
