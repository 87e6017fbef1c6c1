// Terminal client for chatserver.
//
// Screens
// -------
//
//	stateLogin – centered login/register/guest form
//	stateChat  – full-screen chat with a scrollable message viewport
//
// Concurrency
// -----------
//
//	A single goroutine reads length-prefixed frames off the TCP connection,
//	decodes each into its concrete packet type, and forwards it to the pkts
//	channel. The Bubbletea event loop consumes one packet at a time via
//	waitForPkt (a tea.Cmd), immediately queuing the next read afterward.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatserver/internal/hash"
	"chatserver/internal/protocol"
)

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")

	headerStyle = lipgloss.NewStyle().Bold(true).Background(purple).Foreground(white).Padding(0, 1)
	footerStyle = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), true, false, false, false).
			BorderForeground(gray).Padding(0, 1)
	titleStyle        = lipgloss.NewStyle().Bold(true).Foreground(purple).Padding(0, 2)
	labelStyle        = lipgloss.NewStyle().Foreground(gray).Width(10)
	focusedLabelStyle = lipgloss.NewStyle().Foreground(cyan).Width(10)
	hintStyle         = lipgloss.NewStyle().Foreground(gray).Italic(true)
	errorStyle        = lipgloss.NewStyle().Foreground(red)
	sysStyle          = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	myNameStyle       = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle         = lipgloss.NewStyle().Bold(true).Foreground(blue)
)

type serverPktMsg struct{ pkt any }
type disconnectedMsg struct{}

type appState int

const (
	stateLogin appState = iota
	stateChat
)

type loginMode int

const (
	modeGuest loginMode = iota
	modeLogin
	modeRegister
)

type model struct {
	conn net.Conn
	pkts chan any

	state                  appState
	mode                   loginMode
	me                     string
	wantLoginAfterRegister bool

	loginFocus  int
	loginFields [2]textinput.Model // [0]=id [1]=password
	statusMsg   string

	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string
	channel   string

	width, height int
}

func newModel(conn net.Conn, pkts chan any) model {
	idField := textinput.New()
	idField.Placeholder = "id"
	idField.Focus()
	idField.CharLimit = 32
	idField.Width = 32

	pwField := textinput.New()
	pwField.Placeholder = "password"
	pwField.EchoMode = textinput.EchoPassword
	pwField.EchoCharacter = '•'
	pwField.CharLimit = 64
	pwField.Width = 32

	ci := textinput.New()
	ci.Placeholder = "Type a message, or /goto <channel>…"
	ci.CharLimit = 500

	return model{
		conn:        conn,
		pkts:        pkts,
		state:       stateLogin,
		loginFields: [2]textinput.Model{idField, pwField},
		chatInput:   ci,
		channel:     "public",
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForPkt(m.pkts))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverPktMsg:
		m = m.handleServerPkt(msg.pkt)
		return m, waitForPkt(m.pkts)

	case disconnectedMsg:
		m.statusMsg = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		}
	}
	return m, nil
}

func (m model) vpHeight() int {
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyCtrlG:
		m.mode = modeGuest
		m.statusMsg = ""
		return m, nil

	case tea.KeyCtrlR:
		m.mode = modeRegister
		m.statusMsg = ""
		return m, nil

	case tea.KeyCtrlL:
		m.mode = modeLogin
		m.statusMsg = ""
		return m, nil

	case tea.KeyTab, tea.KeyShiftTab:
		m.loginFocus = (m.loginFocus + 1) % 2
		for i := range m.loginFields {
			if i == m.loginFocus {
				m.loginFields[i].Focus()
			} else {
				m.loginFields[i].Blur()
			}
		}
		return m, textinput.Blink

	case tea.KeyEnter:
		if m.mode == modeGuest {
			sendPkt(m.conn, protocol.LoginReq{Type: protocol.TypeLoginReq, LoginInfo: protocol.LoginInfo{Guest: true}})
			m.statusMsg = "joining as guest…"
			return m, nil
		}

		id := strings.TrimSpace(m.loginFields[0].Value())
		pass := m.loginFields[1].Value()
		if id == "" || pass == "" {
			m.statusMsg = "id and password are required"
			return m, nil
		}
		pwHash := hash.Password(pass)

		if m.mode == modeRegister {
			sendPkt(m.conn, protocol.RegisterReq{Type: protocol.TypeRegisterReq, User: protocol.UserPayload{ID: id, PasswordHash: pwHash}})
			m.wantLoginAfterRegister = true
			m.statusMsg = "registering…"
			return m, nil
		}

		sendPkt(m.conn, protocol.LoginReq{Type: protocol.TypeLoginReq, LoginInfo: protocol.LoginInfo{ID: &id, PasswordHash: &pwHash}})
		m.statusMsg = "logging in…"
		return m, nil
	}

	var cmd tea.Cmd
	m.loginFields[m.loginFocus], cmd = m.loginFields[m.loginFocus].Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		sendPkt(m.conn, protocol.Exit{Type: protocol.TypeExit})
		return m, tea.Quit

	case tea.KeyEnter:
		text := strings.TrimSpace(m.chatInput.Value())
		if text == "" {
			return m, nil
		}
		m.chatInput.Reset()
		if strings.HasPrefix(text, "/goto ") {
			name := strings.TrimSpace(strings.TrimPrefix(text, "/goto "))
			sendPkt(m.conn, protocol.GotoReq{Type: protocol.TypeGotoReq, ChannelName: name})
			return m, nil
		}
		if text == "/who" {
			sendPkt(m.conn, protocol.FetchReq{Type: protocol.TypeFetchReq, Item: "list"})
			return m, nil
		}
		sendPkt(m.conn, protocol.Message{Type: protocol.TypeMessage, Msg: text})
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m model) handleServerPkt(pkt any) model {
	switch p := pkt.(type) {
	case protocol.RegisterRes:
		if !p.Result.IsOk() {
			m.statusMsg = errString(p.Result.Err)
			m.wantLoginAfterRegister = false
			return m
		}
		if m.wantLoginAfterRegister {
			m.wantLoginAfterRegister = false
			id := strings.TrimSpace(m.loginFields[0].Value())
			pwHash := hash.Password(m.loginFields[1].Value())
			sendPkt(m.conn, protocol.LoginReq{Type: protocol.TypeLoginReq, LoginInfo: protocol.LoginInfo{ID: &id, PasswordHash: &pwHash}})
			m.statusMsg = "registered, logging in…"
		}
		return m

	case protocol.LoginRes:
		if !p.Result.IsOk() {
			m.statusMsg = errString(p.Result.Err)
			return m
		}
		m.me = *p.Result.Ok
		m.state = stateChat
		m.chatInput.Focus()
		m.appendChat(sysStyle.Render(fmt.Sprintf("⚡ connected as '%s'", m.me)))
		return m

	case protocol.GotoRes:
		if !p.Result.IsOk() {
			m.appendChat(errorStyle.Render("⚠ " + errString(p.Result.Err)))
			return m
		}
		m.channel = *p.Result.Ok
		m.appendChat(sysStyle.Render("⚡ moved to channel '" + m.channel + "'"))
		return m

	case protocol.FetchRes:
		if p.Result.IsOk() {
			m.appendChat(sysStyle.Render("⚡ " + string(*p.Result.Ok)))
		}
		return m

	case protocol.Message:
		if p.IsSystem {
			m.appendChat(sysStyle.Render("⚡ " + p.Msg))
			return m
		}
		var name string
		if p.ID == m.me {
			name = myNameStyle.Render(p.ID)
		} else {
			name = peerStyle.Render(p.ID)
		}
		m.appendChat(name + ": " + p.Msg)
		return m

	case protocol.Connected:
		return m
	}
	return m
}

func errString(e *string) string {
	if e == nil {
		return "unknown error"
	}
	return *e
}

func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	switch m.state {
	case stateChat:
		return m.viewChat()
	default:
		return m.viewLogin()
	}
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	modeName := map[loginMode]string{modeGuest: "Guest", modeLogin: "Login", modeRegister: "Register"}[m.mode]
	title := titleStyle.Render("  chatserver  ")

	renderField := func(label string, f textinput.Model, focused bool) string {
		lbl := labelStyle.Render(label)
		if focused {
			lbl = focusedLabelStyle.Render(label)
		}
		return lbl + "  " + f.View()
	}

	var body []string
	body = append(body, title, "", hintStyle.Render("Mode: "+modeName))
	if m.mode != modeGuest {
		body = append(body,
			renderField("ID", m.loginFields[0], m.loginFocus == 0),
			renderField("Password", m.loginFields[1], m.loginFocus == 1),
		)
	}
	body = append(body, "",
		hintStyle.Render("Ctrl+G: guest   Ctrl+L: login   Ctrl+R: register   Enter: submit"),
		hintStyle.Render("Ctrl+C: quit"),
		"",
		errorStyle.Render(m.statusMsg),
	)

	form := lipgloss.JoinVertical(lipgloss.Left, body...)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}
	hdr := headerStyle.Width(m.width).Render(fmt.Sprintf(
		" chatserver  ·  %s  ·  #%s  ·  /goto <channel>  /who  PgUp/Dn: Scroll  Ctrl+C: Quit", m.me, m.channel))
	footer := footerStyle.Width(m.width - 2).Render(m.chatInput.View())
	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

func waitForPkt(ch <-chan any) tea.Cmd {
	return func() tea.Msg {
		pkt, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverPktMsg{pkt: pkt}
	}
}

func sendPkt(conn net.Conn, pkt any) {
	frame, err := protocol.EncodeFrame(pkt)
	if err != nil {
		return
	}
	conn.Write(frame)
}

func main() {
	addr := flag.String("addr", "localhost:8080", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	pkts := make(chan any, 64)
	go func() {
		defer close(pkts)
		for {
			body, err := protocol.ReadFrame(conn)
			if err != nil {
				return
			}
			pkt, err := protocol.DecodePacket(body)
			if err != nil {
				continue
			}
			pkts <- pkt
		}
	}()

	p := tea.NewProgram(
		newModel(conn, pkts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
