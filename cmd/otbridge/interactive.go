package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/wippyai/otapi-bridge/marshal"
	"github.com/wippyai/otapi-bridge/otapi"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	classStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateBrowse modelState = iota
	stateEdit
)

type fieldAccessor struct {
	get     func() (string, error)
	set     func(string) error
	name    marshal.Field
	typeStr string
}

type interactiveModel struct {
	err      error
	sess     *session
	status   string
	inputs   []textinput.Model
	fields   []fieldAccessor
	opts     options
	selected int
	focusIdx int
	state    modelState
}

type loadedMsg struct {
	err  error
	sess *session
}

func newInteractiveModel(opts options) *interactiveModel {
	return &interactiveModel{opts: opts, state: stateBrowse}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.load
}

// load opens the session. Logging stays off: zap output would corrupt the screen.
func (m *interactiveModel) load() tea.Msg {
	specs, err := parseServers(m.opts.servers)
	if err != nil {
		return loadedMsg{err: err}
	}
	opts := m.opts
	opts.verbose = false

	s, err := openSession(context.Background(), opts, zap.NewNop())
	if err != nil {
		return loadedMsg{err: err}
	}
	for _, spec := range specs {
		if _, err := s.addServer(spec); err != nil {
			_ = s.close()
			return loadedMsg{err: err}
		}
	}
	if opts.nym != "" {
		if err := s.createNym(opts.nym); err != nil {
			_ = s.close()
			return loadedMsg{err: err}
		}
	}
	return loadedMsg{sess: s}
}

// records lists every proxy in the session: servers first, then the nym.
func (m *interactiveModel) records() []otapi.Object {
	if m.sess == nil {
		return nil
	}
	out := make([]otapi.Object, 0, len(m.sess.servers)+1)
	for _, si := range m.sess.servers {
		out = append(out, si)
	}
	if m.sess.nym != nil {
		out = append(out, m.sess.nym)
	}
	return out
}

func (m *interactiveModel) current() otapi.Object {
	recs := m.records()
	if m.selected < 0 || m.selected >= len(recs) {
		return nil
	}
	return recs[m.selected]
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.state == stateEdit {
			return m.updateEdit(msg)
		}
		return m.updateBrowse(msg)

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sess = msg.sess
	}
	return m, nil
}

func (m *interactiveModel) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.err = nil
	switch msg.String() {
	case "ctrl+c", "q":
		if m.sess != nil {
			_ = m.sess.close()
		}
		return m, tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.records())-1 {
			m.selected++
		}

	case "enter":
		if obj := m.current(); obj != nil {
			m.prepareInputs(obj)
			m.state = stateEdit
		}

	case "n":
		if m.sess == nil {
			break
		}
		si, err := m.sess.addServer(serverSpec{id: fmt.Sprintf("server-%d", len(m.sess.servers)+1)})
		if err != nil {
			m.err = err
			break
		}
		m.selected = len(m.sess.servers) - 1
		m.status = fmt.Sprintf("created ServerInfo handle %#x", uint32(si.Handle()))

	case "a":
		si, ok := m.current().(*otapi.ServerInfo)
		if !ok || m.sess.nym == nil {
			m.status = "select a server and create a nym with -nym first"
			break
		}
		if err := m.sess.nym.AddServerInfo(si); err != nil {
			m.err = err
			break
		}
		m.status = "moved server into nym"

	case "c":
		obj := m.current()
		if obj == nil {
			break
		}
		view, err := otapi.CastServerInfo(obj)
		switch {
		case err != nil:
			m.err = err
		case view == nil:
			m.status = fmt.Sprintf("CastServerInfo(%s) = nil", obj.Class())
		default:
			m.status = "CastServerInfo: " + describeServer(view)
			_ = view.Release()
		}

	case "r":
		cn, ok := m.current().(*otapi.ContactNym)
		if !ok {
			m.status = "select the nym to remove its last server"
			break
		}
		n, err := cn.ServerInfoCount()
		if err != nil {
			m.err = err
			break
		}
		if n == 0 {
			m.status = "nym has no servers"
			break
		}
		if err := cn.RemoveServerInfo(n - 1); err != nil {
			m.err = err
			break
		}
		m.status = fmt.Sprintf("removed server %d from nym", n-1)

	case "x":
		obj := m.current()
		if obj == nil {
			break
		}
		owned := obj.Owns()
		if err := obj.Release(); err != nil {
			m.err = err
			break
		}
		m.status = fmt.Sprintf("released %s (owned=%v)", obj.Class(), owned)
	}
	return m, nil
}

func (m *interactiveModel) updateEdit(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.sess != nil {
			_ = m.sess.close()
		}
		return m, tea.Quit

	case "esc":
		m.state = stateBrowse
		m.inputs = nil
		return m, nil

	case "enter":
		for i, f := range m.fields {
			if err := f.set(m.inputs[i].Value()); err != nil {
				m.err = err
				break
			}
		}
		if m.err == nil {
			m.status = "saved"
		}
		m.state = stateBrowse
		m.inputs = nil
		return m, nil

	case "tab":
		if len(m.inputs) > 1 {
			m.inputs[m.focusIdx].Blur()
			m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
			m.inputs[m.focusIdx].Focus()
		}
		return m, nil
	}

	var cmds []tea.Cmd
	for i := range m.inputs {
		var cmd tea.Cmd
		m.inputs[i], cmd = m.inputs[i].Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m *interactiveModel) prepareInputs(obj otapi.Object) {
	m.fields = accessors(obj)
	m.inputs = make([]textinput.Model, len(m.fields))
	for i, f := range m.fields {
		ti := textinput.New()
		ti.Placeholder = f.typeStr
		ti.Prompt = string(f.name) + ": "
		ti.Width = 40
		if v, err := f.get(); err == nil {
			ti.SetValue(v)
		}
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

// accessors binds the schema fields of obj's class to the proxy's accessors.
func accessors(obj otapi.Object) []fieldAccessor {
	bind := map[marshal.Field]fieldAccessor{}
	switch o := obj.(type) {
	case *otapi.ServerInfo:
		bind[marshal.FieldGUILabel] = fieldAccessor{get: o.GUILabel, set: o.SetGUILabel}
		bind[marshal.FieldServerID] = fieldAccessor{get: o.ServerID, set: o.SetServerID}
		bind[marshal.FieldServerType] = fieldAccessor{get: o.ServerType, set: o.SetServerType}
	case *otapi.ContactNym:
		bind[marshal.FieldGUILabel] = fieldAccessor{get: o.GUILabel, set: o.SetGUILabel}
		bind[marshal.FieldNymType] = fieldAccessor{get: o.NymType, set: o.SetNymType}
		bind[marshal.FieldNymID] = fieldAccessor{get: o.NymID, set: o.SetNymID}
		bind[marshal.FieldPublicKey] = fieldAccessor{get: o.PublicKey, set: o.SetPublicKey}
		bind[marshal.FieldMemo] = fieldAccessor{get: o.Memo, set: o.SetMemo}
	case *otapi.Displayable:
		bind[marshal.FieldGUILabel] = fieldAccessor{get: o.GUILabel, set: o.SetGUILabel}
	}

	var out []fieldAccessor
	for _, def := range marshal.Default.Fields(obj.Class()) {
		acc, ok := bind[def.Name]
		if !ok {
			continue
		}
		acc.name = def.Name
		acc.typeStr = marshal.TypeName(def.Type)
		out = append(out, acc)
	}
	return out
}

func (m *interactiveModel) View() string {
	if m.sess == nil {
		if m.err != nil {
			return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
		}
		return "Opening native heap..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("OTAPI Bridge"))
	b.WriteString(" ")
	b.WriteString(m.opts.backend)
	b.WriteString(" heap\n\n")

	switch m.state {
	case stateBrowse:
		recs := m.records()
		if len(recs) == 0 {
			b.WriteString("No records. Press n to create a server.\n")
		}
		for i, obj := range recs {
			line := formatRecord(obj)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		m.writeStatus(&b)
		b.WriteString(helpStyle.Render("↑/↓ select • enter edit • n new server • a add to nym • r remove from nym • c cast • x release • q quit"))

	case stateEdit:
		obj := m.current()
		b.WriteString(fmt.Sprintf("Editing %s\n\n", classStyle.Render(string(obj.Class()))))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(m.fields[i].typeStr))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter save • esc back"))
	}

	return b.String()
}

func (m *interactiveModel) writeStatus(b *strings.Builder) {
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n\n")
	}
}

func formatRecord(obj otapi.Object) string {
	h := obj.Handle()
	if h == 0 {
		return classStyle.Render(string(obj.Class())) + " " + helpStyle.Render("(released)")
	}
	var label string
	switch o := obj.(type) {
	case *otapi.ServerInfo:
		id, err := o.ServerID()
		if err != nil {
			label = errorStyle.Render(err.Error())
		} else {
			label = id
		}
	case *otapi.ContactNym:
		id, _ := o.NymID()
		if n, err := o.ServerInfoCount(); err == nil {
			label = fmt.Sprintf("%s servers=%d", id, n)
		}
	}
	owner := "borrowed"
	if obj.Owns() {
		owner = "owned"
	}
	return fmt.Sprintf("%s %s %s %s",
		classStyle.Render(string(obj.Class())),
		typeStyle.Render(fmt.Sprintf("%#x", uint32(h))),
		label,
		helpStyle.Render(owner),
	)
}

func runInteractive(opts options) error {
	p := tea.NewProgram(newInteractiveModel(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
