package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	lipgloss "github.com/charmbracelet/lipgloss"

	"github.com/pepperpark/imapcopy/internal/syncer"
)

type folderProgress struct {
	total int
	done  int
}

type model struct {
	ctx      context.Context
	cancel   context.CancelFunc
	worker   *syncer.Syncer
	current  string
	scanning string
	prog     map[string]folderProgress
	totalAll int
	doneAll  int
	spinner  spinner.Model
	bar      progress.Model
	runErr   error
	finished bool
	started  time.Time
	// Smoothed ETA
	emaRate  float64 // msgs/sec (EMA)
	lastDone int
	lastAt   time.Time
}

type tickMsg time.Time
type doneMsg struct{ err error }

func newModel(ctx context.Context, worker *syncer.Syncer) *model {
	cctx, cancel := context.WithCancel(ctx)
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	now := time.Now()
	return &model{ctx: cctx, cancel: cancel, worker: worker, prog: map[string]folderProgress{}, spinner: s, bar: bar, started: now, lastAt: now}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick(), m.startSync())
}

func tick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) startSync() tea.Cmd {
	return func() tea.Msg {
		return doneMsg{err: m.worker.Run(m.ctx)}
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cancel()
			return m, nil // quit arrives via doneMsg once the run unwinds
		}
	case doneMsg:
		m.runErr = msg.err
		m.finished = true
		if m.runErr == nil {
			m.doneAll = m.totalAll
		}
		return m, tea.Quit
	case tickMsg:
		m.updateEMARate()
		return m, tea.Batch(m.spinner.Tick, tick())
	}
	// Drain events
	for {
		select {
		case ev, ok := <-m.worker.Events():
			if !ok {
				return m, nil
			}
			switch ev.Type {
			case syncer.EventScanFolder:
				m.scanning = ev.Folder
			case syncer.EventFolderStart:
				m.scanning = ""
				m.current = fmt.Sprintf("%s -> %s", ev.Folder, ev.Target)
				fp := m.prog[ev.Folder]
				fp.total = ev.Total
				m.prog[ev.Folder] = fp
				m.recomputeTotals()
			case syncer.EventFolderProgress, syncer.EventFolderDone:
				fp := m.prog[ev.Folder]
				fp.total, fp.done = ev.Total, ev.Done
				m.prog[ev.Folder] = fp
				m.recomputeTotals()
			}
		default:
			return m, nil
		}
	}
}

func (m *model) recomputeTotals() {
	total, done := 0, 0
	for _, p := range m.prog {
		total += p.total
		done += p.done
	}
	m.totalAll, m.doneAll = total, done
}

func (m *model) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("Imapcopy")
	s := title + "\n\nPress q to quit\n\n"
	if m.scanning != "" {
		s += fmt.Sprintf("%s Scanning %s\n", m.spinner.View(), m.scanning)
		return s
	}
	if m.current != "" {
		s += fmt.Sprintf("Folder: %s\n", m.current)
	}
	pct := 0.0
	if m.totalAll > 0 {
		pct = float64(m.doneAll) / float64(m.totalAll)
	}
	s += fmt.Sprintf("%s Overall %d/%d   %s\n", m.spinner.View(), m.doneAll, m.totalAll, m.formatETA())
	s += m.bar.ViewAs(pct) + "\n\n"
	if m.finished && m.runErr != nil {
		s += lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("Error: "+m.runErr.Error()) + "\n"
	}
	return s
}

func (m *model) formatETA() string {
	if m.totalAll == 0 {
		return "ETA --"
	}
	remaining := m.totalAll - m.doneAll
	if remaining <= 0 {
		return "ETA 0s"
	}
	// Prefer smoothed rate if available; fallback to average rate
	rate := m.emaRate
	if rate <= 0.01 {
		elapsed := time.Since(m.started)
		if elapsed <= 0 {
			return "ETA --"
		}
		rate = float64(m.doneAll) / elapsed.Seconds()
	}
	if rate <= 0.01 {
		return "ETA --"
	}
	return formatDuration(float64(remaining) / rate)
}

func formatDuration(secs float64) string {
	if secs < 1 {
		return "ETA <1s"
	}
	d := time.Duration(secs) * time.Second
	if d > 99*time.Hour {
		return "ETA >99h"
	}
	if d >= time.Hour {
		h := int(d / time.Hour)
		rem := d - time.Duration(h)*time.Hour
		return fmt.Sprintf("ETA %dh%dm", h, int(rem/time.Minute))
	}
	if d >= time.Minute {
		return fmt.Sprintf("ETA %dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("ETA %ds", int(d.Seconds()))
}

// updateEMARate updates the EMA of processing rate based on deltas since last tick.
func (m *model) updateEMARate() {
	now := time.Now()
	dt := now.Sub(m.lastAt).Seconds()
	if dt <= 0 {
		return
	}
	delta := m.doneAll - m.lastDone
	inst := float64(delta) / dt
	// EMA with half-life ~3s -> alpha depends on dt
	halfLife := 3.0
	alpha := 1 - math.Exp(-math.Ln2*dt/halfLife)
	if m.emaRate == 0 {
		m.emaRate = inst
	} else {
		m.emaRate = alpha*inst + (1-alpha)*m.emaRate
	}
	m.lastDone = m.doneAll
	m.lastAt = now
}

// runTUI runs the Bubble Tea UI and returns the run's fatal error, if any.
func runTUI(ctx context.Context, worker *syncer.Syncer) error {
	m := newModel(ctx, worker)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		// Fallback to non-TUI execution
		fmt.Println("TUI failed:", err)
		return runPlain(ctx, worker)
	}
	return m.runErr
}

// --- Simplified TUI for count-based operations (mbox import) ---

type countModel struct {
	title    string
	total    int
	done     int
	spinner  spinner.Model
	bar      progress.Model
	runErr   error
	finished bool
	emaRate  float64
	lastDone int
	lastAt   time.Time
	started  time.Time
}

type countMsg int

func newCountModel(title string, total int) *countModel {
	s := spinner.New()
	s.Spinner = spinner.Line
	bar := progress.New(progress.WithDefaultGradient())
	now := time.Now()
	return &countModel{title: title, total: total, spinner: s, bar: bar, started: now, lastAt: now}
}

func (m *countModel) Init() tea.Cmd { return tea.Batch(m.spinner.Tick, tick()) }

func (m *countModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case doneMsg:
		m.runErr = msg.err
		m.finished = true
		if m.runErr == nil {
			m.done = m.total
		}
		return m, tea.Quit
	case countMsg:
		m.done += int(msg)
		return m, nil
	case tickMsg:
		now := time.Now()
		dt := now.Sub(m.lastAt).Seconds()
		if dt > 0 {
			delta := m.done - m.lastDone
			inst := float64(delta) / dt
			halfLife := 3.0
			alpha := 1 - math.Exp(-math.Ln2*dt/halfLife)
			if m.emaRate == 0 {
				m.emaRate = inst
			} else {
				m.emaRate = alpha*inst + (1-alpha)*m.emaRate
			}
			m.lastDone = m.done
			m.lastAt = now
		}
		return m, tea.Batch(m.spinner.Tick, tick())
	}
	return m, nil
}

func (m *countModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Render("Imapcopy")
	s := title + "\n\nPress q to quit\n\n"
	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	eta := "ETA --"
	if remaining := m.total - m.done; remaining > 0 && m.emaRate > 0.01 {
		eta = formatDuration(float64(remaining) / m.emaRate)
	}
	s += fmt.Sprintf("%s %s %d/%d   %s\n", m.spinner.View(), m.title, m.done, m.total, eta)
	s += m.bar.ViewAs(pct) + "\n\n"
	if m.finished && m.runErr != nil {
		s += lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Render("Error: "+m.runErr.Error()) + "\n"
	}
	return s
}

// runCountTUI displays a simple progress bar driven by a progress channel.
func runCountTUI(title string, total int, progressCh <-chan int, errc <-chan error) error {
	m := newCountModel(title, total)
	p := tea.NewProgram(m)
	go func() {
		for inc := range progressCh {
			p.Send(countMsg(inc))
		}
		p.Send(doneMsg{err: <-errc})
	}()
	if _, err := p.Run(); err != nil {
		fmt.Println("TUI failed:", err)
		return runPlainCount(title, total, progressCh, errc)
	}
	return m.runErr
}
