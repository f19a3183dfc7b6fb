package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"threatscope/cmd/threatscope/ui"
	"threatscope/internal/attack"
	"threatscope/internal/kb"
	"threatscope/internal/logging"
	"threatscope/internal/watchlist"
)

// screen identifies what the explorer is showing.
type screen int

const (
	screenMenu screen = iota
	screenCategory
	screenActors
	screenTechniques
	screenOverlap
	screenTools
	screenWatch
	screenStatus
)

const (
	menuActors = "Threat Actors"
	menuTools  = "Tools"
	menuWatch  = "Watchlist"
	menuStatus = "Status"
	menuExit   = "Exit"
)

var mainMenuItems = []string{menuActors, menuTools, menuWatch, menuStatus, menuExit}

var categoryMenuItems = []string{
	"Geographical Region",
	"Activity Type",
	"Target Sector",
	"Back to Main Menu",
}

// Messages produced by async work.
type (
	catalogMsg struct {
		catalog   *attack.Catalog
		refreshed bool
	}
	catalogErrMsg struct{ err error }
	refreshErrMsg struct{ err error }
	kbMsg         struct{ engine *kb.Engine }
	kbErrMsg      struct{ err error }
	overlapMsg    struct {
		actor    string
		overlaps []kb.Overlap
	}
	overlapErrMsg   struct{ err error }
	referenceMsg    struct{ content string }
	referenceErrMsg struct{ err error }
	watchReloadMsg  struct{}
)

// keyMap lists the explorer-wide bindings surfaced in the help views.
// Screen-specific keys (number entry, paging) stay inside the pages.
type keyMap struct {
	Help      key.Binding
	Back      key.Binding
	Quit      key.Binding
	Filter    key.Binding
	Select    key.Binding
	Watch     key.Binding
	Overlap   key.Binding
	Reference key.Binding
	PrevPage  key.Binding
	AddLast   key.Binding
	Remove    key.Binding
	Refresh   key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle this help")),
		Back:      key.NewBinding(key.WithKeys("esc", "q"), key.WithHelp("esc/q", "back")),
		Quit:      key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
		Filter:    key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "filter the list")),
		Select:    key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select / next page")),
		Watch:     key.NewBinding(key.WithKeys("w"), key.WithHelp("w", "toggle watchlist")),
		Overlap:   key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "shared tradecraft")),
		Reference: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "fetch reference")),
		PrevPage:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "previous page")),
		AddLast:   key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "track last actor")),
		Remove:    key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "untrack entry")),
		Refresh:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh ATT&CK data")),
	}
}

// ShortHelp implements help.KeyMap for the footer line.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Back, k.Quit}
}

// FullHelp implements help.KeyMap for the expanded overlay.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Help, k.Back, k.Quit, k.Filter},
		{k.Select, k.PrevPage, k.Overlap, k.Reference},
		{k.Watch, k.AddLast, k.Remove, k.Refresh},
	}
}

// explorerModel is the root bubbletea model. It owns the screen
// switching and the shared data; the ui pages own their own input.
type explorerModel struct {
	env    *appEnv
	ctx    context.Context
	styles ui.Styles

	width  int
	height int
	ready  bool

	screen         screen
	menuCursor     int
	categoryCursor int
	showHelp       bool
	keys           keyMap
	help           help.Model

	loading     bool
	loadingText string
	statusLine  string
	statusErr   bool
	fatalErr    error

	spinner spinner.Model

	catalog   *attack.Catalog
	engine    *kb.Engine
	wl        *watchlist.Watchlist
	wlErr     error
	lastActor string

	actorsPage  ui.ActorsPage
	toolsPage   ui.ToolsPage
	techPage    ui.TechniquesPage
	overlapPage ui.OverlapPage
	watchPage   ui.WatchPage
}

func themeFromConfig(name string) ui.Theme {
	switch name {
	case "dark":
		return ui.DarkTheme()
	case "light":
		return ui.LightTheme()
	default:
		return ui.DetectTheme()
	}
}

func newExplorer(ctx context.Context, env *appEnv, wl *watchlist.Watchlist, wlErr error) explorerModel {
	styles := ui.NewStyles(themeFromConfig(env.cfg.Display.Theme))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	m := explorerModel{
		env:         env,
		ctx:         ctx,
		styles:      styles,
		keys:        newKeyMap(),
		help:        help.New(),
		spinner:     sp,
		loading:     true,
		loadingText: "Fetching data from MITRE ATT&CK...",
		wl:          wl,
		wlErr:       wlErr,
		actorsPage:  ui.NewActorsPage(styles, env.cfg.Display.MaxColumns),
		toolsPage:   ui.NewToolsPage(styles),
		techPage:    ui.NewTechniquesPage(styles, env.cfg.Display.PageSize),
		overlapPage: ui.NewOverlapPage(styles),
		watchPage:   ui.NewWatchPage(styles),
	}
	m.actorsPage.SetWatched(m.watchedFunc())
	if wl != nil {
		m.watchPage.SetEntries(wl.Entries())
	}
	return m
}

func (m explorerModel) watchedFunc() func(string) bool {
	wl := m.wl
	return func(name string) bool {
		return wl != nil && wl.Contains(name)
	}
}

// runExplore opens the interactive explorer. It is the root command's
// default action.
func runExplore(cmd *cobra.Command, args []string) error {
	env, err := openEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	wl, wlErr := watchlist.Load(env.cfg.WatchlistPath(env.root))
	if wlErr != nil {
		logging.Watchlist("load failed: %v", wlErr)
	}

	prog := tea.NewProgram(newExplorer(ctx, env, wl, wlErr),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	if wl != nil && env.cfg.Watchlist.LiveReload {
		watcher, watchErr := watchlist.NewWatcher(wl, func() {
			prog.Send(watchReloadMsg{})
		})
		if watchErr != nil {
			logging.Watchlist("watcher unavailable: %v", watchErr)
		} else if startErr := watcher.Start(ctx); startErr != nil {
			logging.Watchlist("watcher start failed: %v", startErr)
		} else {
			defer watcher.Stop()
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			prog.Quit()
		case <-ctx.Done():
		}
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("explorer terminated: %w", err)
	}
	return nil
}

func (m explorerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.loadCatalogCmd())
}

func (m explorerModel) loadCatalogCmd() tea.Cmd {
	env, ctx := m.env, m.ctx
	return func() tea.Msg {
		cat, err := env.loadCatalog(ctx)
		if err != nil {
			return catalogErrMsg{err}
		}
		return catalogMsg{catalog: cat}
	}
}

// refreshCatalogCmd refetches all configured domains even when the
// cache is fresh. Failures keep the catalog already on screen.
func (m explorerModel) refreshCatalogCmd() tea.Cmd {
	env, ctx := m.env, m.ctx
	return func() tea.Msg {
		cat, err := env.loadCatalogForce(ctx, true)
		if err != nil {
			return refreshErrMsg{err}
		}
		return catalogMsg{catalog: cat, refreshed: true}
	}
}

func (m explorerModel) buildKBCmd(cat *attack.Catalog) tea.Cmd {
	cfg := m.env.cfg
	return func() tea.Msg {
		engine, err := kb.NewEngine(kb.Config{
			FactLimit:    cfg.KB.FactLimit,
			QueryTimeout: cfg.GetQueryTimeout(),
		})
		if err != nil {
			return kbErrMsg{err}
		}
		if err := engine.Load(cat); err != nil {
			return kbErrMsg{err}
		}
		return kbMsg{engine}
	}
}

func (m explorerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.resizePages()
		return m, nil

	case spinner.TickMsg:
		if m.loading {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil

	case catalogMsg:
		m.loading = false
		m.catalog = msg.catalog
		m.toolsPage.SetTools(m.catalog.Tools())
		if msg.refreshed {
			m.setInfo("ATT&CK data refreshed")
		}
		logging.UI("catalog ready: %d actors, %d tools", len(m.catalog.Actors()), len(m.catalog.Tools()))
		return m, m.buildKBCmd(msg.catalog)

	case catalogErrMsg:
		m.loading = false
		m.fatalErr = msg.err
		return m, nil

	case refreshErrMsg:
		m.loading = false
		m.setError(fmt.Sprintf("refresh failed: %v", msg.err))
		return m, nil

	case kbMsg:
		m.engine = msg.engine
		return m, nil

	case kbErrMsg:
		m.setError(fmt.Sprintf("overlap analysis unavailable: %v", msg.err))
		return m, nil

	case overlapMsg:
		m.loading = false
		m.overlapPage.SetData(msg.actor, msg.overlaps)
		m.screen = screenOverlap
		return m, nil

	case overlapErrMsg:
		m.loading = false
		m.setError(fmt.Sprintf("overlap query failed: %v", msg.err))
		return m, nil

	case referenceMsg:
		m.loading = false
		m.techPage.AppendDetail(msg.content)
		return m, nil

	case referenceErrMsg:
		m.loading = false
		m.setError(fmt.Sprintf("reference fetch failed: %v", msg.err))
		return m, nil

	case watchReloadMsg:
		if m.wl != nil {
			m.watchPage.SetEntries(m.wl.Entries())
			m.actorsPage.SetWatched(m.watchedFunc())
			m.setInfo("watchlist reloaded")
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m.routeToPage(msg)
}

func (m *explorerModel) setError(text string) {
	m.statusLine = text
	m.statusErr = true
}

func (m *explorerModel) setInfo(text string) {
	m.statusLine = text
	m.statusErr = false
}

func (m *explorerModel) resizePages() {
	w := m.width
	h := m.height - 3
	if h < 10 {
		h = 10
	}
	m.help.Width = w
	m.actorsPage.SetSize(w, h)
	m.toolsPage.SetSize(w, h)
	m.techPage.SetSize(w, h)
	m.overlapPage.SetSize(w, h)
	m.watchPage.SetSize(w, h)
}

// filterActive reports whether the current screen is routing keys into
// a text input, which suppresses global shortcuts.
func (m explorerModel) filterActive() bool {
	switch m.screen {
	case screenActors:
		return m.actorsPage.FilterFocused()
	case screenTools:
		return m.toolsPage.FilterFocused()
	}
	return false
}

func (m explorerModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}
	if m.fatalErr != nil {
		// Any key leaves the error screen.
		return m, tea.Quit
	}
	if m.catalog == nil {
		return m, nil
	}

	if key.Matches(msg, m.keys.Help) && !m.filterActive() {
		m.showHelp = !m.showHelp
		return m, nil
	}
	if m.showHelp {
		switch msg.String() {
		case "esc", "q", "?":
			m.showHelp = false
		}
		return m, nil
	}

	m.statusLine = ""
	m.statusErr = false

	switch m.screen {
	case screenMenu:
		return m.updateMenu(msg)
	case screenCategory:
		return m.updateCategory(msg)
	case screenActors:
		return m.updateActors(msg)
	case screenTechniques:
		return m.updateTechniques(msg)
	case screenOverlap:
		return m.updateOverlap(msg)
	case screenTools:
		return m.updateTools(msg)
	case screenWatch:
		return m.updateWatch(msg)
	case screenStatus:
		return m.updateStatus(msg)
	}
	return m, nil
}

func (m explorerModel) updateMenu(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.menuCursor > 0 {
			m.menuCursor--
		}
	case "down", "j":
		if m.menuCursor < len(mainMenuItems)-1 {
			m.menuCursor++
		}
	case "enter":
		return m.selectMenuItem()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m explorerModel) selectMenuItem() (tea.Model, tea.Cmd) {
	switch mainMenuItems[m.menuCursor] {
	case menuActors:
		m.screen = screenCategory
		m.categoryCursor = 0
	case menuTools:
		m.screen = screenTools
	case menuWatch:
		if m.wl == nil {
			m.setError(fmt.Sprintf("watchlist unavailable: %v", m.wlErr))
			return m, nil
		}
		m.watchPage.SetEntries(m.wl.Entries())
		m.screen = screenWatch
	case menuStatus:
		m.screen = screenStatus
	case menuExit:
		return m, tea.Quit
	}
	return m, nil
}

func (m explorerModel) updateCategory(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.categoryCursor > 0 {
			m.categoryCursor--
		}
	case "down", "j":
		if m.categoryCursor < len(categoryMenuItems)-1 {
			m.categoryCursor++
		}
	case "esc", "q":
		m.screen = screenMenu
	case "enter":
		switch m.categoryCursor {
		case 0:
			return m.openActors(attack.CategoryRegion)
		case 1:
			return m.openActors(attack.CategoryActivity)
		case 2:
			return m.openActors(attack.CategorySector)
		default:
			m.screen = screenMenu
		}
	}
	return m, nil
}

func (m explorerModel) openActors(cat attack.Category) (tea.Model, tea.Cmd) {
	m.actorsPage.SetActors(m.catalog.Actors(), cat)
	m.screen = screenActors
	return m, nil
}

func (m explorerModel) updateActors(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.actorsPage.FilterFocused() {
		var cmd tea.Cmd
		m.actorsPage, cmd = m.actorsPage.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "esc", "q":
		m.screen = screenCategory
		return m, nil
	case "enter":
		actor, err := m.actorsPage.Resolve()
		if err != nil {
			m.setError(err.Error())
			return m, nil
		}
		return m.openTechniques(actor)
	case "w":
		return m.toggleWatch()
	}
	var cmd tea.Cmd
	m.actorsPage, cmd = m.actorsPage.Update(msg)
	return m, cmd
}

func (m explorerModel) openTechniques(actor attack.Actor) (tea.Model, tea.Cmd) {
	found, ok := m.catalog.ActorByName(actor.Name)
	if !ok {
		m.setError(fmt.Sprintf("Could not find the selected actor: %s.", actor.Name))
		return m, nil
	}
	techs := m.catalog.TechniquesForActor(found.ID)
	if len(techs) == 0 {
		m.setError(fmt.Sprintf("No techniques found for the selected actor: %s.", actor.Name))
		return m, nil
	}
	m.lastActor = found.Name
	m.techPage.SetTechniques(found.Name, techs)
	m.screen = screenTechniques
	return m, nil
}

func (m explorerModel) toggleWatch() (tea.Model, tea.Cmd) {
	if m.wl == nil {
		m.setError(fmt.Sprintf("watchlist unavailable: %v", m.wlErr))
		return m, nil
	}
	actor, ok := m.actorsPage.CursorActor()
	if !ok {
		m.setInfo("highlight an actor with the arrow keys to toggle tracking")
		return m, nil
	}
	if m.wl.Contains(actor.Name) {
		m.wl.Remove(actor.Name)
		m.setInfo(fmt.Sprintf("removed %s from the watchlist", actor.Name))
	} else {
		if err := m.wl.Add(actor.Name, ""); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.setInfo(fmt.Sprintf("added %s to the watchlist", actor.Name))
	}
	if err := m.wl.Save(); err != nil {
		m.setError(err.Error())
	}
	m.watchPage.SetEntries(m.wl.Entries())
	m.actorsPage.SetWatched(m.watchedFunc())
	return m, nil
}

func (m explorerModel) updateTechniques(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		if m.techPage.ConsumeEsc() {
			return m, nil
		}
		m.screen = screenActors
		return m, nil
	case "q":
		m.screen = screenActors
		return m, nil
	case "o":
		return m.openOverlap()
	case "x":
		return m.fetchReference()
	}
	var cmd tea.Cmd
	m.techPage, cmd = m.techPage.Update(msg)
	if m.techPage.Done() {
		m.techPage.ClearDone()
		m.screen = screenActors
	}
	return m, cmd
}

func (m explorerModel) openOverlap() (tea.Model, tea.Cmd) {
	if m.engine == nil {
		m.setInfo("overlap analysis is still loading")
		return m, nil
	}
	actorName := m.techPage.Actor()
	found, ok := m.catalog.ActorByName(actorName)
	if !ok {
		m.setError(fmt.Sprintf("Could not find the selected actor: %s.", actorName))
		return m, nil
	}
	engine, ctx, id := m.engine, m.ctx, found.ID
	m.loading = true
	m.loadingText = fmt.Sprintf("Computing shared tradecraft for %s...", actorName)
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		overlaps, err := engine.Overlaps(ctx, id)
		if err != nil {
			return overlapErrMsg{err}
		}
		return overlapMsg{actor: actorName, overlaps: overlaps}
	})
}

func (m explorerModel) fetchReference() (tea.Model, tea.Cmd) {
	if !m.techPage.DetailOpen() {
		m.setInfo("open a technique detail before fetching its reference")
		return m, nil
	}
	url := m.techPage.ReferenceURL()
	if url == "" {
		m.setInfo("no reference available for this technique")
		return m, nil
	}
	fetcher, ctx := m.env.newFetcher(), m.ctx
	m.loading = true
	m.loadingText = "Fetching reference page..."
	return m, tea.Batch(m.spinner.Tick, func() tea.Msg {
		content, err := fetcher.FetchReference(ctx, url)
		if err != nil {
			return referenceErrMsg{err}
		}
		return referenceMsg{content}
	})
}

func (m explorerModel) updateOverlap(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.screen = screenTechniques
		return m, nil
	}
	var cmd tea.Cmd
	m.overlapPage, cmd = m.overlapPage.Update(msg)
	return m, cmd
}

func (m explorerModel) updateTools(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.toolsPage.InPanel() {
		switch msg.String() {
		case "enter":
			m.toolsPage.ClosePanel()
			return m, nil
		case "q", "esc":
			m.toolsPage.ClosePanel()
			m.screen = screenMenu
			return m, nil
		}
		var cmd tea.Cmd
		m.toolsPage, cmd = m.toolsPage.Update(msg)
		return m, cmd
	}
	if m.toolsPage.FilterFocused() {
		var cmd tea.Cmd
		m.toolsPage, cmd = m.toolsPage.Update(msg)
		return m, cmd
	}
	switch msg.String() {
	case "esc", "q":
		m.screen = screenMenu
		return m, nil
	case "enter":
		tool, err := m.toolsPage.Resolve()
		if err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.toolsPage.ShowPanel(tool, m.catalog.TechniquesForTool(tool.ID), m.catalog.ActorsForTool(tool.ID))
		return m, nil
	}
	var cmd tea.Cmd
	m.toolsPage, cmd = m.toolsPage.Update(msg)
	return m, cmd
}

func (m explorerModel) updateWatch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q":
		m.screen = screenMenu
		return m, nil
	case "a":
		if m.wl == nil {
			m.setError(fmt.Sprintf("watchlist unavailable: %v", m.wlErr))
			return m, nil
		}
		if m.lastActor == "" {
			m.setInfo("open an actor's techniques first, then add it here")
			return m, nil
		}
		if err := m.wl.Add(m.lastActor, ""); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		if err := m.wl.Save(); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.watchPage.SetEntries(m.wl.Entries())
		m.actorsPage.SetWatched(m.watchedFunc())
		m.setInfo(fmt.Sprintf("added %s to the watchlist", m.lastActor))
		return m, nil
	case "d":
		if m.wl == nil {
			return m, nil
		}
		entry, ok := m.watchPage.CursorEntry()
		if !ok {
			return m, nil
		}
		m.wl.Remove(entry.Name)
		if err := m.wl.Save(); err != nil {
			m.setError(err.Error())
			return m, nil
		}
		m.watchPage.SetEntries(m.wl.Entries())
		m.actorsPage.SetWatched(m.watchedFunc())
		m.setInfo(fmt.Sprintf("removed %s from the watchlist", entry.Name))
		return m, nil
	}
	var cmd tea.Cmd
	m.watchPage, cmd = m.watchPage.Update(msg)
	return m, cmd
}

func (m explorerModel) updateStatus(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc", "q", "enter":
		m.screen = screenMenu
	case "r":
		if m.loading {
			return m, nil
		}
		m.loading = true
		m.loadingText = "Refreshing ATT&CK data..."
		return m, tea.Batch(m.spinner.Tick, m.refreshCatalogCmd())
	}
	return m, nil
}

func (m explorerModel) routeToPage(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case screenActors:
		m.actorsPage, cmd = m.actorsPage.Update(msg)
	case screenTechniques:
		m.techPage, cmd = m.techPage.Update(msg)
	case screenOverlap:
		m.overlapPage, cmd = m.overlapPage.Update(msg)
	case screenTools:
		m.toolsPage, cmd = m.toolsPage.Update(msg)
	case screenWatch:
		m.watchPage, cmd = m.watchPage.Update(msg)
	}
	return m, cmd
}

func (m explorerModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	if m.fatalErr != nil {
		var sb strings.Builder
		sb.WriteString("\n  ")
		sb.WriteString(m.styles.Error.Render(fmt.Sprintf("Error fetching MITRE ATT&CK content: %v", m.fatalErr)))
		sb.WriteString("\n  ")
		sb.WriteString(m.styles.Error.Render("Failed to load attack STIX content."))
		sb.WriteString("\n\n  ")
		sb.WriteString(m.styles.Muted.Render("Press any key to exit."))
		return sb.String()
	}
	if m.catalog == nil {
		return fmt.Sprintf("\n  %s %s\n", m.spinner.View(), m.styles.Bold.Render(m.loadingText))
	}
	if m.showHelp {
		return m.helpView()
	}

	var content string
	switch m.screen {
	case screenMenu:
		content = m.menuView()
	case screenCategory:
		content = m.categoryView()
	case screenActors:
		content = m.actorsPage.View()
	case screenTechniques:
		content = m.techPage.View()
	case screenOverlap:
		content = m.overlapPage.View()
	case screenTools:
		content = m.toolsPage.View()
	case screenWatch:
		content = m.watchPage.View()
	case screenStatus:
		content = m.statusView()
	}

	return lipgloss.JoinVertical(lipgloss.Left, content, m.footerView())
}

func (m explorerModel) menuView() string {
	var sb strings.Builder
	sb.WriteString(ui.Logo(m.styles))
	sb.WriteString("\n")
	sb.WriteString(m.styles.Title.Render("Threat Scope"))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Subtitle.Render("SELECT AN OPTION"))
	sb.WriteString("\n\n")
	for i, item := range mainMenuItems {
		if i == m.menuCursor {
			sb.WriteString(m.styles.MenuSelected.Render("▸ " + item))
		} else {
			sb.WriteString(m.styles.Menu.Render("  " + item))
		}
		sb.WriteString("\n")
	}
	if m.catalog != nil {
		stats := m.catalog.Stats()
		sb.WriteString("\n")
		sb.WriteString(m.styles.Muted.Render(fmt.Sprintf(
			"%d actors  %d tools  %d techniques", stats.Actors, stats.Tools, stats.Techniques)))
	}
	return sb.String()
}

func (m explorerModel) categoryView() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(" Threat Actors "))
	sb.WriteString("\n\n")
	sb.WriteString(m.styles.Subtitle.Render("SELECT AN OPTION"))
	sb.WriteString("\n\n")
	for i, item := range categoryMenuItems {
		if i == m.categoryCursor {
			sb.WriteString(m.styles.MenuSelected.Render("▸ " + item))
		} else {
			sb.WriteString(m.styles.Menu.Render("  " + item))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m explorerModel) statusView() string {
	var sb strings.Builder
	sb.WriteString(m.styles.Header.Render(" Status "))
	sb.WriteString("\n\n")

	snaps, err := m.env.store.LatestSnapshots(m.ctx)
	if err != nil {
		sb.WriteString(m.styles.Error.Render(err.Error()))
		return sb.String()
	}
	if len(snaps) == 0 {
		sb.WriteString(m.styles.Muted.Render("No snapshots cached yet. Run threatscope update."))
		sb.WriteString("\n")
	} else {
		maxAge := m.env.cfg.GetCacheMaxAge()
		rows := make([][]string, 0, len(snaps))
		for _, s := range snaps {
			freshness := "fresh"
			if s.Age() > maxAge {
				freshness = "stale"
			}
			rows = append(rows, []string{
				string(s.Domain),
				shortID(s.ID),
				s.FetchedAt.Format("2006-01-02 15:04"),
				strconv.Itoa(s.ObjectCount),
				freshness,
			})
		}
		sb.WriteString(ui.RenderTable(m.styles, "Snapshots",
			[]string{"Domain", "ID", "Fetched", "Objects", "Freshness"}, rows))
	}

	if m.catalog != nil {
		stats := m.catalog.Stats()
		sb.WriteString("\n")
		sb.WriteString(m.styles.Bold.Render("Catalog"))
		sb.WriteString("\n")
		sb.WriteString(m.styles.Body.Render(fmt.Sprintf(
			"  %d actors, %d tools, %d techniques, %d relationships",
			stats.Actors, stats.Tools, stats.Techniques, stats.Relationships)))
		sb.WriteString("\n")
	}
	if m.engine != nil {
		ks := m.engine.GetStats()
		sb.WriteString("\n")
		sb.WriteString(m.styles.Bold.Render("Knowledge base"))
		sb.WriteString("\n")
		sb.WriteString(m.styles.Body.Render(fmt.Sprintf(
			"  %d facts loaded at %s", ks.TotalFacts, ks.LastLoad.Format("15:04:05"))))
		sb.WriteString("\n")
	}
	if m.wl != nil {
		sb.WriteString("\n")
		sb.WriteString(m.styles.Bold.Render("Watchlist"))
		sb.WriteString("\n")
		sb.WriteString(m.styles.Body.Render(fmt.Sprintf(
			"  %d actors tracked in %s", m.wl.Len(), m.wl.Path())))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.styles.Muted.Render("Press 'r' to refresh ATT&CK data."))
	return sb.String()
}

func (m explorerModel) helpView() string {
	full := m.help
	full.ShowAll = true
	var sb strings.Builder
	sb.WriteString(m.styles.Title.Render("Keys"))
	sb.WriteString("\n\n")
	sb.WriteString(full.View(m.keys))
	return m.styles.Panel.Render(sb.String())
}

func (m explorerModel) footerView() string {
	var sb strings.Builder
	if m.loading {
		sb.WriteString(m.spinner.View())
		sb.WriteString(" ")
		sb.WriteString(m.styles.Muted.Render(m.loadingText))
		sb.WriteString("\n")
	} else if m.statusLine != "" {
		style := m.styles.Warning
		if m.statusErr {
			style = m.styles.Error
		}
		sb.WriteString(style.Render(m.statusLine))
		sb.WriteString("\n")
	}
	sb.WriteString(m.styles.RenderDivider(m.width))
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
