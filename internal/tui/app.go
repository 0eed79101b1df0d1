package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mpataki/cadence/internal/control"
	"github.com/mpataki/cadence/internal/models"
	"github.com/mpataki/cadence/internal/orchestrator"
)

type View int

const (
	ViewRunList View = iota
	ViewRunDetail
	ViewNewRun
)

// Controller is the slice of control.Service the UI drives.
type Controller interface {
	Start(ctx context.Context, typeID string, mode models.Mode, opts control.StartOptions) (*models.RunSnapshot, error)
	Pause(id string) error
	Resume(id string) error
	Stop(id string) error
	Discard(id string) error
	Annotate(id, text string) error
	Get(id string) (*models.RunSnapshot, error)
	List(filter orchestrator.ListFilter) []*models.RunSnapshot
	Types() []*models.RunType
}

type App struct {
	ctx     context.Context
	ctrl    Controller
	keys    KeyMap
	refresh time.Duration

	view        View
	runs        []*models.RunSnapshot
	selectedIdx int
	selectedRun *models.RunSnapshot
	detail      viewport.Model
	bar         progress.Model

	annotating bool
	input      textinput.Model

	types    []*models.RunType
	typeIdx  int
	mode     models.Mode
	autoFail bool

	width  int
	height int
	notice string
	err    error
}

func NewApp(ctx context.Context, ctrl Controller, refresh time.Duration) *App {
	if refresh <= 0 {
		refresh = 250 * time.Millisecond
	}

	input := textinput.New()
	input.Placeholder = "note or screenshot reference"
	input.CharLimit = 200

	return &App{
		ctx:     ctx,
		ctrl:    ctrl,
		keys:    DefaultKeyMap,
		refresh: refresh,
		view:    ViewRunList,
		detail:  viewport.New(80, 20),
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithoutPercentage(),
			progress.WithWidth(20),
		),
		input: input,
		mode:  models.ModeFull,
	}
}

func (a *App) Init() tea.Cmd {
	return tea.Batch(a.loadRuns, a.tickCmd())
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(a.refresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type tickMsg time.Time

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.detail.Width = msg.Width
		a.detail.Height = max(msg.Height-6, 5)
		return a, nil

	case tickMsg:
		cmds := []tea.Cmd{a.loadRuns, a.tickCmd()}
		if a.view == ViewRunDetail && a.selectedRun != nil {
			cmds = append(cmds, a.loadRunDetail(a.selectedRun.ID, false))
		}
		return a, tea.Batch(cmds...)

	case runsLoadedMsg:
		a.runs = msg.runs
		if a.selectedIdx >= len(a.runs) {
			a.selectedIdx = max(len(a.runs)-1, 0)
		}
		return a, nil

	case runDetailMsg:
		if msg.err != nil {
			a.err = msg.err
			a.view = ViewRunList
			a.selectedRun = nil
			return a, nil
		}
		if !msg.open && a.view != ViewRunDetail {
			return a, nil
		}
		a.selectedRun = msg.run
		a.detail.SetContent(a.renderDetail(msg.run))
		if msg.open {
			a.detail.GotoTop()
			a.view = ViewRunDetail
		}
		return a, nil

	case actionMsg:
		a.err = msg.err
		if msg.err == nil {
			a.notice = fmt.Sprintf("%s %s", msg.done, msg.runID)
		}
		cmds := []tea.Cmd{a.loadRuns}
		if a.view == ViewRunDetail && a.selectedRun != nil {
			cmds = append(cmds, a.loadRunDetail(a.selectedRun.ID, false))
		}
		return a, tea.Batch(cmds...)

	case runStartedMsg:
		a.err = msg.err
		if msg.err == nil {
			a.notice = "started " + msg.run.ID
			a.view = ViewRunList
			a.selectedIdx = 0
		}
		return a, a.loadRuns
	}

	return a, nil
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if a.annotating {
		return a.handleAnnotateKey(msg)
	}

	switch a.view {
	case ViewRunList:
		return a.handleRunListKey(msg)
	case ViewRunDetail:
		return a.handleRunDetailKey(msg)
	case ViewNewRun:
		return a.handleNewRunKey(msg)
	}
	return a, nil
}

func (a *App) handleRunListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Up):
		if a.selectedIdx > 0 {
			a.selectedIdx--
		}

	case key.Matches(msg, a.keys.Down):
		if a.selectedIdx < len(a.runs)-1 {
			a.selectedIdx++
		}

	case key.Matches(msg, a.keys.Open):
		if run := a.current(); run != nil {
			return a, a.loadRunDetail(run.ID, true)
		}

	case key.Matches(msg, a.keys.New):
		a.types = a.ctrl.Types()
		a.typeIdx = 0
		a.err = nil
		a.view = ViewNewRun

	case key.Matches(msg, a.keys.Pause, a.keys.Resume, a.keys.Stop, a.keys.Discard):
		if run := a.current(); run != nil {
			return a, a.control(msg, run.ID)
		}

	case key.Matches(msg, a.keys.Annotate):
		if run := a.current(); run != nil {
			return a, a.startAnnotate()
		}
	}

	return a, nil
}

func (a *App) handleRunDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Back), msg.String() == "q":
		a.view = ViewRunList
		a.selectedRun = nil
		return a, nil

	case msg.String() == "ctrl+c":
		return a, tea.Quit

	case key.Matches(msg, a.keys.Pause, a.keys.Resume, a.keys.Stop):
		return a, a.control(msg, a.selectedRun.ID)

	case key.Matches(msg, a.keys.Discard):
		id := a.selectedRun.ID
		a.view = ViewRunList
		a.selectedRun = nil
		return a, a.action("discarded", id, a.ctrl.Discard)

	case key.Matches(msg, a.keys.Annotate):
		return a, a.startAnnotate()
	}

	var cmd tea.Cmd
	a.detail, cmd = a.detail.Update(msg)
	return a, cmd
}

func (a *App) handleNewRunKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Back):
		a.view = ViewRunList

	case msg.String() == "ctrl+c":
		return a, tea.Quit

	case key.Matches(msg, a.keys.Up):
		if a.typeIdx > 0 {
			a.typeIdx--
		}

	case key.Matches(msg, a.keys.Down):
		if a.typeIdx < len(a.types)-1 {
			a.typeIdx++
		}

	case key.Matches(msg, a.keys.Mode):
		if a.mode == models.ModeFull {
			a.mode = models.ModeDry
		} else {
			a.mode = models.ModeFull
		}

	case key.Matches(msg, a.keys.Policy):
		a.autoFail = !a.autoFail

	case key.Matches(msg, a.keys.Open):
		if len(a.types) == 0 {
			return a, nil
		}
		return a, a.startRun(a.types[a.typeIdx].ID)
	}

	return a, nil
}

func (a *App) handleAnnotateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.stopAnnotate()
		return a, nil

	case tea.KeyEnter:
		text := strings.TrimSpace(a.input.Value())
		a.stopAnnotate()
		id := a.targetID()
		if text == "" || id == "" {
			return a, nil
		}
		return a, a.action("added evidence to", id, func(id string) error {
			return a.ctrl.Annotate(id, text)
		})

	case tea.KeyCtrlC:
		return a, tea.Quit
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	return a, cmd
}

func (a *App) startAnnotate() tea.Cmd {
	a.annotating = true
	a.input.Reset()
	return a.input.Focus()
}

func (a *App) stopAnnotate() {
	a.annotating = false
	a.input.Blur()
	a.input.Reset()
}

// targetID is the run control keys apply to in the current view.
func (a *App) targetID() string {
	if a.view == ViewRunDetail && a.selectedRun != nil {
		return a.selectedRun.ID
	}
	if run := a.current(); run != nil {
		return run.ID
	}
	return ""
}

func (a *App) current() *models.RunSnapshot {
	if len(a.runs) == 0 || a.selectedIdx >= len(a.runs) {
		return nil
	}
	return a.runs[a.selectedIdx]
}

// Messages

type runsLoadedMsg struct {
	runs []*models.RunSnapshot
}

type runDetailMsg struct {
	run  *models.RunSnapshot
	open bool
	err  error
}

type actionMsg struct {
	done  string
	runID string
	err   error
}

type runStartedMsg struct {
	run *models.RunSnapshot
	err error
}

// Commands

func (a *App) loadRuns() tea.Msg {
	return runsLoadedMsg{runs: a.ctrl.List(orchestrator.ListFilter{Limit: 50})}
}

func (a *App) loadRunDetail(id string, open bool) tea.Cmd {
	return func() tea.Msg {
		run, err := a.ctrl.Get(id)
		return runDetailMsg{run: run, open: open, err: err}
	}
}

func (a *App) control(msg tea.KeyMsg, id string) tea.Cmd {
	switch {
	case key.Matches(msg, a.keys.Pause):
		return a.action("paused", id, a.ctrl.Pause)
	case key.Matches(msg, a.keys.Resume):
		return a.action("resumed", id, a.ctrl.Resume)
	case key.Matches(msg, a.keys.Stop):
		return a.action("stopped", id, a.ctrl.Stop)
	case key.Matches(msg, a.keys.Discard):
		return a.action("discarded", id, a.ctrl.Discard)
	}
	return nil
}

func (a *App) action(done, id string, fn func(string) error) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{done: done, runID: id, err: fn(id)}
	}
}

func (a *App) startRun(typeID string) tea.Cmd {
	mode := a.mode
	var opts control.StartOptions
	if a.autoFail {
		opts.BlockPolicy = orchestrator.BlockPolicyFail
	}
	return func() tea.Msg {
		run, err := a.ctrl.Start(a.ctx, typeID, mode, opts)
		return runStartedMsg{run: run, err: err}
	}
}
