package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/v2/list"
	"github.com/charmbracelet/bubbles/v2/spinner"
	"github.com/charmbracelet/bubbles/v2/viewport"
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"roach/internal/analysis"
	"roach/internal/disasm"
	"roach/internal/elfx"
	"roach/internal/procmem"
	"roach/internal/roach/styles"
	"roach/internal/ui/colorize"
)

// viewMaxInstructions caps listings of regions and raw files.
const viewMaxInstructions = 2000

type viewMode int

const (
	viewInfo viewMode = iota
	viewEntries
	viewCode
)

// entryItem is a symbol, region or raw buffer that can be disassembled.
type entryItem struct {
	addr  uint64
	label string
	load  func() string
}

func (i entryItem) Title() string       { return fmt.Sprintf("%08x  %s", i.addr, i.label) }
func (i entryItem) Description() string { return "" }
func (i entryItem) FilterValue() string { return fmt.Sprintf("%x %s", i.addr, i.label) }

type itemDelegate struct{}

func (d itemDelegate) Height() int                               { return 1 }
func (d itemDelegate) Spacing() int                              { return 0 }
func (d itemDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d itemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	i, ok := listItem.(entryItem)
	if !ok {
		return
	}
	if index == m.Index() {
		fmt.Fprint(w, styles.Selected.Render(fmt.Sprintf(" > %08x  %s", i.addr, i.label)))
		return
	}
	fmt.Fprintf(w, "   %s  %s", styles.Status.Render(fmt.Sprintf("%08x", i.addr)), i.label)
}

type loadedMsg struct {
	report  *Report
	entries []entryItem
	closer  io.Closer
	err     error
}

// loadEntries opens path and returns one entry per function, region or
// raw buffer. The closer, when non-nil, must stay open while entries load.
func loadEntries(dec *disasm.Decoder, format, path string) ([]entryItem, io.Closer, error) {
	switch format {
	case "elf":
		im, err := elfx.Open(path)
		if err != nil {
			return nil, nil, err
		}
		a := newAnnotator(analysis.SymbolsFromImage(im), im)
		var entries []entryItem
		for _, sym := range im.Symbols {
			if sym.IsPLT || sym.Addr == 0 {
				continue
			}
			entries = append(entries, entryItem{
				addr:  sym.Addr,
				label: sym.Demangled,
				load: func() string {
					code, ok := im.FunctionBytes(sym)
					count := 0
					if !ok {
						code, ok = im.SliceToSegmentEnd(sym.Addr)
						count = 64
					}
					if !ok {
						return fmt.Sprintf("; 0x%08x is not backed by the file", sym.Addr)
					}
					l, err := decodeN(dec, code, sym.Addr, count)
					return renderCode(a, l, err)
				},
			})
		}
		return entries, im, nil

	case "procmem":
		d, err := procmem.Open(path)
		if err != nil {
			return nil, nil, err
		}
		a := newAnnotator(nil, d)
		var entries []entryItem
		for _, r := range d.Regions() {
			entries = append(entries, entryItem{
				addr:  r.Addr,
				label: fmt.Sprintf("%d bytes", len(r.Data)),
				load: func() string {
					l, err := decodeN(dec, r.Data, r.Addr, viewMaxInstructions)
					return renderCode(a, l, err)
				},
			})
		}
		return entries, nil, nil

	case "raw":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, err
		}
		a := newAnnotator(nil, nil)
		return []entryItem{{
			label: fmt.Sprintf("%d bytes", len(data)),
			load: func() string {
				l, err := decodeN(dec, data, 0, viewMaxInstructions)
				return renderCode(a, l, err)
			},
		}}, nil, nil
	}
	return nil, nil, nil
}

func renderCode(a *analysis.Annotator, l disasm.Listing, err error) string {
	text := colorize.ColorizeListing(a.Annotate(l).Text())
	if err != nil {
		text += "\n" + styles.Error.Render("; "+err.Error())
	}
	return text
}

func loadCmd(cmd *cobra.Command, path string) tea.Cmd {
	return func() tea.Msg {
		rep, err := buildReport(cmd, path)
		if err != nil {
			return loadedMsg{err: err}
		}
		dec, err := newDecoder(cmd)
		if err != nil {
			return loadedMsg{err: err}
		}
		entries, closer, err := loadEntries(dec, rep.Format, path)
		return loadedMsg{report: rep, entries: entries, closer: closer, err: err}
	}
}

type model struct {
	viewport viewport.Model
	entries  list.Model
	spinner  spinner.Model
	mode     viewMode
	path     string
	load     tea.Cmd
	report   *Report
	closer   io.Closer
	loading  bool
	err      error
	width    int
	height   int
}

func newModel(path string, load tea.Cmd) model {
	vp := viewport.New()
	vp.SetWidth(80)
	vp.SetHeight(22)

	entries := list.New([]list.Item{}, itemDelegate{}, 80, 22)
	entries.SetShowStatusBar(false)
	entries.SetFilteringEnabled(true)
	entries.SetShowHelp(false)
	entries.Title = "Entries"
	entries.Styles.Title = styles.Title

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color(styles.VSCodeFunction))

	m := model{
		viewport: vp,
		entries:  entries,
		spinner:  s,
		mode:     viewInfo,
		path:     path,
		load:     load,
		loading:  true,
		width:    80,
		height:   24,
	}
	m.updateInfo()
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.load, m.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case loadedMsg:
		m.loading = false
		m.report = msg.report
		m.closer = msg.closer
		m.err = msg.err
		items := make([]list.Item, 0, len(msg.entries))
		for _, e := range msg.entries {
			items = append(items, e)
		}
		m.entries.SetItems(items)
		m.entries.Title = fmt.Sprintf("Entries (%d)", len(items))
		m.updateInfo()
		return m, nil

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(msg)
		m.updateInfo()
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.SetWidth(msg.Width)
		m.viewport.SetHeight(msg.Height - 2)
		m.entries.SetWidth(msg.Width)
		m.entries.SetHeight(msg.Height - 2)
		if m.mode == viewInfo {
			m.updateInfo()
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode == viewEntries && m.entries.FilterState() == list.Filtering {
			if msg.String() == "ctrl+c" {
				return m.quit()
			}
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m.quit()
		case "tab":
			m = m.cycle()
			return m, nil
		case "esc":
			if m.mode == viewCode {
				m.mode = viewEntries
			}
			return m, nil
		case "enter":
			if m.mode != viewEntries {
				break
			}
			if e, ok := m.entries.SelectedItem().(entryItem); ok {
				m.viewport.SetContent(e.load())
				m.viewport.GotoTop()
				m.mode = viewCode
			}
			return m, nil
		}
	}

	switch m.mode {
	case viewEntries:
		m.entries, cmd = m.entries.Update(msg)
	default:
		m.viewport, cmd = m.viewport.Update(msg)
	}
	return m, cmd
}

func (m model) quit() (tea.Model, tea.Cmd) {
	if m.closer != nil {
		m.closer.Close()
	}
	return m, tea.Quit
}

// cycle moves info -> entries -> info, skipping entries when there are none.
func (m model) cycle() model {
	switch m.mode {
	case viewInfo:
		if len(m.entries.Items()) > 0 {
			m.mode = viewEntries
		}
	default:
		m.mode = viewInfo
		m.updateInfo()
	}
	return m
}

func (m model) View() string {
	var content, menu string
	switch m.mode {
	case viewEntries:
		content = m.entries.View()
		menu = " enter: disassemble • /: filter • tab: info • q: quit "
	case viewCode:
		content = m.viewport.View()
		menu = " esc: back • tab: info • q: quit "
	default:
		content = m.viewport.View()
		menu = " tab: entries • q: quit "
	}
	return content + "\n" + styles.Help.Width(m.width).Render(menu)
}

func (m *model) updateInfo() {
	var md string
	switch {
	case m.loading:
		md = fmt.Sprintf("# %s\n\n%s Loading...", m.path, m.spinner.View())
	case m.report != nil:
		md = m.report.Markdown()
	default:
		md = fmt.Sprintf("# %s\n", m.path)
	}
	if m.err != nil {
		md += "\n\n" + m.err.Error()
	}

	width := m.width
	if width == 0 {
		width = 80
	}
	rendered, err := styles.RenderMarkdown(md, width-2, false)
	if err != nil {
		rendered = md
	}
	m.viewport.SetContent(strings.TrimSuffix(rendered, "\n"))
}

var viewCmd = &cobra.Command{
	Use:   "view FILE",
	Short: "Browse a sample interactively",
	Long: `Open an interactive viewer. ELF images list their functions and dumps
list their regions; enter disassembles the selection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !term.IsTerminal(os.Stdout.Fd()) {
			return errors.New("view needs a terminal, try info instead")
		}
		if _, err := newDecoder(cmd); err != nil {
			return err
		}
		program := tea.NewProgram(
			newModel(args[0], loadCmd(cmd, args[0])),
			tea.WithAltScreen(),
			tea.WithContext(cmd.Context()),
		)
		if _, err := program.Run(); err != nil {
			slog.Error("TUI run error", "error", err)
			return fmt.Errorf("TUI error: %w", err)
		}
		return nil
	},
}

func init() {
	viewCmd.Flags().String("policy", "arch", "Unknown opcode policy: byte, stop or arch")
}
