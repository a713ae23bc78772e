// Command miassistant-tui is an interactive bubbletea front-end over the
// same core the flag-based CLI drives: it probes the device, requests a
// flash token, then streams the payload with a live progress bar, mirroring
// the teacher's chat TUI's Model/Update/View shape and its use of
// clipboard.WriteAll for copy-to-clipboard affordances.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"miassistant/internal/apiserver"
	"miassistant/internal/config"
	"miassistant/internal/deviceinfo"
	"miassistant/internal/md5sum"
	"miassistant/internal/protocol"
	"miassistant/internal/sideload"
	"miassistant/internal/usbhost"
	"miassistant/internal/validate"
)

var apiAddr = flag.String("api", "", "serve live status/cancel API on this address while flashing, e.g. :8787 (disabled if empty)")

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Bold(true).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	promptStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#2563EB"))
)

// stage tracks where the session is in its one-way progression.
type stage int

const (
	stageProbing stage = iota
	stageAwaitingEraseConfirm
	stageFlashing
	stageDone
	stageError
)

type deviceProbedMsg struct {
	info deviceinfo.DeviceInfo
	dev  usbhost.OpenDevice
	tr   *protocol.Transport
}

type tokenObtainedMsg struct{ token validate.FlashToken }
type sideloadDoneMsg struct{}
type progressMsg struct{ sent, total uint64 }
type errMsg struct{ err error }

// transferProgress is shared between the goroutine driving sideload.Run and
// the Update loop's polling ticker: sideload.Run's progress callback runs
// on its own goroutine and cannot safely call back into bubbletea's
// message loop directly, so it only stores the latest counters here.
type transferProgress struct {
	sent  atomic.Uint64
	total atomic.Uint64
}

// Model is the TUI's bubbletea state. One Model drives exactly one flash
// session end to end.
type Model struct {
	path   string
	cfg    *config.Config
	cancel *atomic.Bool

	stage    stage
	info     deviceinfo.DeviceInfo
	token    validate.FlashToken
	progress progress.Model
	sent     uint64
	total    uint64
	err      error

	tr  *protocol.Transport
	dev usbhost.OpenDevice

	prog  *transferProgress
	width int
	api   *apiserver.Server
}

func newModel(path string, cfg *config.Config, cancel *atomic.Bool, api *apiserver.Server) Model {
	return Model{
		path:     path,
		cfg:      cfg,
		cancel:   cancel,
		stage:    stageProbing,
		progress: progress.New(progress.WithDefaultGradient()),
		prog:     &transferProgress{},
		width:    80,
		api:      api,
	}
}

func (m Model) Init() tea.Cmd {
	return m.probeCmd()
}

func (m Model) probeCmd() tea.Cmd {
	return func() tea.Msg {
		dev, err := usbhost.FindFirstADB()
		if err != nil {
			return errMsg{err}
		}
		eps := dev.Endpoints()
		tr := protocol.NewTransport(dev, eps.BulkIn, eps.BulkOut, int(m.cfg.BulkTimeout.Milliseconds()))
		if _, err := protocol.Connect(tr); err != nil {
			dev.Close()
			return errMsg{err}
		}
		info, err := deviceinfo.Probe(tr)
		if err != nil {
			dev.Close()
			return errMsg{err}
		}
		if m.api != nil {
			m.api.SetDeviceInfo(info)
		}
		return deviceProbedMsg{info: info, dev: dev, tr: tr}
	}
}

func (m Model) requestTokenCmd() tea.Cmd {
	return func() tea.Msg {
		sum, err := md5sum.File(m.path)
		if err != nil {
			return errMsg{err}
		}
		client := validate.New()
		client.Endpoint = m.cfg.ValidationEndpoint
		result, err := client.Validate(m.info, sum, true)
		if err != nil {
			return errMsg{err}
		}
		token, ok := result.(validate.FlashToken)
		if !ok {
			return errMsg{fmt.Errorf("expected a flash token, got %T", result)}
		}
		return tokenObtainedMsg{token: token}
	}
}

func (m Model) runSideloadCmd() tea.Cmd {
	prog := m.prog
	api := m.api
	return func() tea.Msg {
		err := sideload.Run(m.tr, m.path, m.token.Token, m.cancel, true, func(sent, total uint64) {
			prog.sent.Store(sent)
			prog.total.Store(total)
			if api != nil {
				api.UpdateProgress(sent, total)
			}
		})
		if err != nil {
			return errMsg{err}
		}
		return sideloadDoneMsg{}
	}
}

// pollProgressCmd reads the shared transferProgress counters on a fixed
// tick; the Update loop reschedules it as long as the transfer is still
// running, the same self-rescheduling tea.Tick shape the teacher's log
// poller uses.
func pollProgressCmd(prog *transferProgress) tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return progressMsg{sent: prog.sent.Load(), total: prog.total.Load()}
	})
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.dev != nil {
				m.dev.Close()
			}
			if m.api != nil {
				m.api.Shutdown()
			}
			return m, tea.Quit
		case "c":
			m.cancel.Store(true)
			return m, nil
		case "y":
			if m.stage == stageAwaitingEraseConfirm {
				m.stage = stageFlashing
				return m, tea.Batch(m.runSideloadCmd(), pollProgressCmd(m.prog))
			}
		case "n":
			if m.stage == stageAwaitingEraseConfirm {
				m.err = fmt.Errorf("erase not confirmed, aborting")
				m.stage = stageError
				return m, tea.Quit
			}
		case "s":
			if m.stage == stageDone {
				clipboard.WriteAll(m.info.SN)
			}
		}

	case deviceProbedMsg:
		m.info = msg.info
		m.dev = msg.dev
		m.tr = msg.tr
		return m, m.requestTokenCmd()

	case tokenObtainedMsg:
		m.token = msg.token
		if msg.token.Erase {
			m.stage = stageAwaitingEraseConfirm
			return m, nil
		}
		m.stage = stageFlashing
		return m, tea.Batch(m.runSideloadCmd(), pollProgressCmd(m.prog))

	case sideloadDoneMsg:
		m.stage = stageDone
		cmd := m.progress.SetPercent(1.0)
		return m, cmd

	case progressMsg:
		m.sent, m.total = msg.sent, msg.total
		var cmds []tea.Cmd
		if msg.total > 0 {
			cmds = append(cmds, m.progress.SetPercent(float64(msg.sent)/float64(msg.total)))
		}
		if m.stage == stageFlashing {
			cmds = append(cmds, pollProgressCmd(m.prog))
		}
		return m, tea.Batch(cmds...)

	case errMsg:
		m.err = msg.err
		m.stage = stageError
		return m, nil

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	header := headerStyle.Render(" MiAssistant ")
	switch m.stage {
	case stageProbing:
		return header + "\n\n" + infoStyle.Render("probing device...") + "\n"
	case stageAwaitingEraseConfirm:
		msg := fmt.Sprintf(
			"device: %s  sn: %s  this flash will ERASE ALL DATA. press y to confirm, n to abort.",
			m.info.Device, m.info.SN)
		body := promptStyle.Render(ansi.Wordwrap(msg, m.width-4, " \t"))
		return header + "\n\n" + body + "\n"
	case stageFlashing:
		return header + "\n\n" + fmt.Sprintf("device: %s\n%s\n%s", m.info.Device,
			m.progress.View(), helpStyle.Render("c: cancel   q: quit"))
	case stageDone:
		return header + "\n\n" + infoStyle.Render("transfer complete.") + "\n" +
			helpStyle.Render("s: copy serial to clipboard   q: quit")
	case stageError:
		msg := ansi.Wordwrap(fmt.Sprintf("error: %v", m.err), m.width, " \t")
		return header + "\n\n" + errorStyle.Render(msg) + "\n"
	}
	return header
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: miassistant-tui <file>")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	var cancel atomic.Bool
	var api *apiserver.Server
	if *apiAddr != "" {
		api = apiserver.New(&cancel)
		if err := api.Start(*apiAddr); err != nil {
			log.Fatalf("starting api server: %v", err)
		}
	}

	p := tea.NewProgram(newModel(args[0], cfg, &cancel, api))
	if _, err := p.Run(); err != nil {
		log.Fatalf("tui: %v", err)
	}
}
