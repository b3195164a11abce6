// Package tui 实现数据集生成向导的 Bubble Tea 界面
// Package tui implements the Bubble Tea interface for the dataset
// generation wizard.
package tui

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"datasmith/internal/dataset"
	"datasmith/internal/export"
	"datasmith/internal/orchestrator"
	"datasmith/internal/quality"
)

// 配置步骤内的焦点字段 / focusable fields within the configure step
const (
	fieldObjective = iota
	fieldTarget
	fieldBatch
	fieldDomain
	fieldCount
)

// snapshotTickMsg 定时刷新会话快照
// snapshotTickMsg refreshes the session snapshot on a timer
type snapshotTickMsg time.Time

// modelsMsg 模型发现完成
// modelsMsg indicates model discovery finished
type modelsMsg struct{ err error }

// startMsg 生成启动完成
// startMsg indicates the start call finished
type startMsg struct{ err error }

// exportMsg 导出完成
// exportMsg indicates the export finished
type exportMsg struct {
	res export.Result
	err error
}

// improveMsg 目标改写完成
// improveMsg carries an improved objective
type improveMsg struct {
	text string
	err  error
}

// suggestMsg 用例建议返回
// suggestMsg carries use-case suggestions
type suggestMsg struct {
	items []string
	err   error
}

// insightsMsg 知识库洞察返回
// insightsMsg carries knowledge base insights
type insightsMsg struct {
	insights orchestrator.KnowledgeInsights
	err      error
}

// modelItem 让 dataset.Model 适配 bubbles list
// modelItem adapts dataset.Model to the bubbles list
type modelItem struct{ m dataset.Model }

func (i modelItem) Title() string {
	return fmt.Sprintf("%s (%s)", i.m.Name, i.m.Provider)
}

func (i modelItem) Description() string {
	parts := []string{i.m.Size}
	if len(i.m.Capabilities) > 0 {
		parts = append(parts, strings.Join(i.m.Capabilities, ", "))
	}
	return strings.Join(parts, " · ")
}

func (i modelItem) FilterValue() string { return i.m.ID }

// App Bubble Tea 主 Model
// App is the main Bubble Tea model
type App struct {
	orch *orchestrator.Orchestrator
	snap orchestrator.Snapshot

	// 布局 / Layout
	width  int
	height int

	// 控件 / Widgets
	modelList  list.Model
	objective  textarea.Model
	target     textinput.Model
	batch      textinput.Model
	domain     textinput.Model
	exportPath textinput.Model
	focus      int

	// 面板内容 / Panel content
	analysis    string
	suggestions []string
	insights    *orchestrator.KnowledgeInsights

	// 配置 / Config
	exportDir string
	theme     Theme
	keys      KeyMap
}

// NewApp 创建向导应用；exportDir 为空时用下载目录
// NewApp creates the wizard application; an empty exportDir means the
// downloads directory.
func NewApp(orch *orchestrator.Orchestrator, exportDir string) App {
	theme := DarkTheme()

	delegate := list.NewDefaultDelegate()
	ml := list.New(nil, delegate, 0, 0)
	ml.Title = "Available models"
	ml.SetShowStatusBar(false)
	ml.SetFilteringEnabled(true)

	obj := textarea.New()
	obj.Placeholder = "Describe the fine-tuning objective..."
	obj.CharLimit = 4096
	obj.SetHeight(4)

	target := textinput.New()
	target.Placeholder = "100"
	target.CharLimit = 8

	batch := textinput.New()
	batch.Placeholder = "25"
	batch.CharLimit = 6

	domain := textinput.New()
	domain.Placeholder = "e.g. healthcare, legal, finance"
	domain.CharLimit = 256

	path := textinput.New()
	path.Placeholder = "leave empty for the default path"
	path.CharLimit = 512
	// 只有导出步骤会把按键路由到这里 / only the export step routes keys here
	path.Focus()

	a := App{
		orch:       orch,
		snap:       orch.Snapshot(),
		modelList:  ml,
		objective:  obj,
		target:     target,
		batch:      batch,
		domain:     domain,
		exportPath: path,
		exportDir:  exportDir,
		theme:      theme,
		keys:       DefaultKeyMap(),
	}
	a.syncModelItems()
	return a
}

func (a App) Init() tea.Cmd {
	return tea.Batch(a.discoverCmd(), snapshotTick())
}

func snapshotTick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return snapshotTickMsg(t)
	})
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.relayout()
		return a, nil

	case snapshotTickMsg:
		a.snap = a.orch.Snapshot()
		return a, snapshotTick()

	case modelsMsg:
		a.snap = a.orch.Snapshot()
		a.syncModelItems()
		return a, nil

	case startMsg:
		a.snap = a.orch.Snapshot()
		return a, nil

	case exportMsg:
		a.snap = a.orch.Snapshot()
		if msg.err == nil {
			return a, a.insightsCmd()
		}
		return a, nil

	case insightsMsg:
		if msg.err == nil {
			ins := msg.insights
			a.insights = &ins
		}
		return a, nil

	case improveMsg:
		a.snap = a.orch.Snapshot()
		if msg.err == nil && msg.text != "" {
			a.objective.SetValue(msg.text)
		}
		return a, nil

	case suggestMsg:
		a.snap = a.orch.Snapshot()
		if msg.err == nil {
			a.suggestions = msg.items
		}
		return a, nil

	case tea.KeyMsg:
		if key.Matches(msg, a.keys.Quit) {
			a.orch.Close()
			return a, tea.Quit
		}
		return a.updateStep(msg)
	}

	return a.updateWidgets(msg)
}

// updateStep 按当前向导步骤分发按键
// updateStep dispatches a key press according to the wizard step
func (a App) updateStep(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch a.snap.Step {
	case orchestrator.StepSelectingModel:
		return a.updateSelecting(msg)
	case orchestrator.StepConfiguring:
		return a.updateConfiguring(msg)
	case orchestrator.StepGenerating:
		return a.updateGenerating(msg)
	case orchestrator.StepExporting:
		return a.updateExporting(msg)
	}
	return a, nil
}

func (a App) updateSelecting(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Refresh):
		return a, a.discoverCmd()
	case key.Matches(msg, a.keys.Confirm):
		if item, ok := a.modelList.SelectedItem().(modelItem); ok {
			if err := a.orch.SelectModel(item.m.ID); err == nil {
				a.orch.Advance(orchestrator.StepConfiguring)
				a.snap = a.orch.Snapshot()
				a.enterConfiguring()
			}
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.modelList, cmd = a.modelList.Update(msg)
	return a, cmd
}

// enterConfiguring 用当前配置预填表单
// enterConfiguring pre-fills the form from the current config
func (a *App) enterConfiguring() {
	cfg := a.snap.Config
	a.objective.SetValue(cfg.Objective)
	a.target.SetValue(strconv.Itoa(cfg.TargetEntries))
	a.batch.SetValue(strconv.Itoa(cfg.BatchSize))
	a.domain.SetValue(cfg.DomainContext)
	a.setFocus(fieldObjective)
}

func (a App) updateConfiguring(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Back):
		a.orch.Back()
		a.snap = a.orch.Snapshot()
		return a, nil
	case key.Matches(msg, a.keys.NextField):
		a.setFocus((a.focus + 1) % fieldCount)
		return a, nil
	case key.Matches(msg, a.keys.Improve):
		a.pushConfig()
		return a, a.improveCmd(a.objective.Value())
	case key.Matches(msg, a.keys.Suggest):
		a.pushConfig()
		return a, a.suggestCmd()
	case key.Matches(msg, a.keys.Analyze):
		a.pushConfig()
		a.analysis = a.renderAnalysis()
		return a, nil
	case key.Matches(msg, a.keys.Format):
		a.cycleFormat()
		return a, nil
	case key.Matches(msg, a.keys.Start):
		a.pushConfig()
		return a, a.startCmd()
	}

	return a.updateWidgets(msg)
}

func (a App) updateGenerating(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Cancel) {
		orch := a.orch
		return a, func() tea.Msg {
			_ = orch.CancelGeneration(context.Background())
			return snapshotTickMsg(time.Now())
		}
	}
	return a, nil
}

func (a App) updateExporting(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Confirm):
		// 路径留空走交互式保存提示（终端暂时交还给 readline）
		// An empty path goes through the interactive save prompt; the
		// terminal is handed back to readline for its duration.
		if strings.TrimSpace(a.exportPath.Value()) == "" {
			sp := &savePrompt{orch: a.orch, dir: a.exportDir}
			return a, tea.Exec(sp, func(error) tea.Msg {
				return exportMsg{res: sp.res, err: sp.err}
			})
		}
		return a, a.exportCmd(a.exportPath.Value())
	case key.Matches(msg, a.keys.Restart):
		a.orch.Reset()
		a.snap = a.orch.Snapshot()
		a.suggestions = nil
		a.analysis = ""
		a.insights = nil
		a.exportPath.SetValue("")
		return a, nil
	}

	var cmd tea.Cmd
	a.exportPath, cmd = a.exportPath.Update(msg)
	return a, cmd
}

// updateWidgets 把消息转发给持焦点的控件
// updateWidgets forwards the message to the focused widget
func (a App) updateWidgets(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch a.snap.Step {
	case orchestrator.StepSelectingModel:
		a.modelList, cmd = a.modelList.Update(msg)
	case orchestrator.StepConfiguring:
		switch a.focus {
		case fieldObjective:
			a.objective, cmd = a.objective.Update(msg)
		case fieldTarget:
			a.target, cmd = a.target.Update(msg)
		case fieldBatch:
			a.batch, cmd = a.batch.Update(msg)
		case fieldDomain:
			a.domain, cmd = a.domain.Update(msg)
		}
	case orchestrator.StepExporting:
		a.exportPath, cmd = a.exportPath.Update(msg)
	}
	return a, cmd
}

func (a *App) setFocus(field int) {
	a.focus = field
	a.objective.Blur()
	a.target.Blur()
	a.batch.Blur()
	a.domain.Blur()
	switch field {
	case fieldObjective:
		a.objective.Focus()
	case fieldTarget:
		a.target.Focus()
	case fieldBatch:
		a.batch.Focus()
	case fieldDomain:
		a.domain.Focus()
	}
}

// pushConfig 把表单值写回编排器；非法数字保持原值
// pushConfig writes the form values back to the orchestrator; invalid
// numbers keep their previous value
func (a *App) pushConfig() {
	patch := orchestrator.ConfigPatch{}
	obj := a.objective.Value()
	patch.Objective = &obj
	domain := a.domain.Value()
	patch.DomainContext = &domain
	if n, err := strconv.Atoi(strings.TrimSpace(a.target.Value())); err == nil && n > 0 {
		patch.TargetEntries = &n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(a.batch.Value())); err == nil && n > 0 {
		patch.BatchSize = &n
	}
	a.orch.UpdateConfig(patch)
	a.snap = a.orch.Snapshot()
}

// cycleFormat 轮换到下一个数据集格式
// cycleFormat rotates to the next dataset format
func (a *App) cycleFormat() {
	formats := dataset.Formats()
	next := formats[0]
	for i, f := range formats {
		if f == a.snap.Config.Format {
			next = formats[(i+1)%len(formats)]
			break
		}
	}
	a.orch.UpdateConfig(orchestrator.ConfigPatch{Format: &next})
	a.snap = a.orch.Snapshot()
}

func (a App) renderAnalysis() string {
	analyses, rec, ok := a.orch.AnalyzeBatchSizes([]int{10, 25, 50, 100})
	report := quality.Report(analyses, rec, ok)
	width := a.width - 4
	if width <= 0 {
		width = 80
	}
	return RenderMarkdown(report, width)
}

// --- Commands ---

func (a App) discoverCmd() tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		return modelsMsg{err: orch.DiscoverModels(context.Background())}
	}
}

func (a App) startCmd() tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		return startMsg{err: orch.StartGeneration(context.Background())}
	}
}

func (a App) improveCmd(text string) tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		improved, err := orch.RequestPromptImprovement(context.Background(), text)
		return improveMsg{text: improved, err: err}
	}
}

func (a App) suggestCmd() tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		items, err := orch.RequestUseCaseSuggestions(context.Background())
		return suggestMsg{items: items, err: err}
	}
}

func (a App) exportCmd(path string) tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		res, err := orch.ExportDataset(context.Background(), export.FixedResolver{Path: path})
		return exportMsg{res: res, err: err}
	}
}

func (a App) insightsCmd() tea.Cmd {
	orch := a.orch
	return func() tea.Msg {
		ins, err := orch.KnowledgeInsights()
		return insightsMsg{insights: ins, err: err}
	}
}

// savePrompt 在 bubbletea 释放终端期间运行 readline 保存提示
// savePrompt runs the readline save prompt while bubbletea has released
// the terminal.
type savePrompt struct {
	orch *orchestrator.Orchestrator
	dir  string

	res export.Result
	err error
}

var _ tea.ExecCommand = (*savePrompt)(nil)

func (s *savePrompt) Run() error {
	s.res, s.err = s.orch.ExportDataset(context.Background(),
		export.InteractiveResolver{Dir: s.dir})
	// 导出失败通过 exportMsg 上报，不作为终端错误处理
	// Export failures are reported through exportMsg, not as a terminal
	// error.
	return nil
}

// readline 直接使用进程的标准流 / readline uses the process streams
// directly.
func (s *savePrompt) SetStdin(io.Reader)  {}
func (s *savePrompt) SetStdout(io.Writer) {}
func (s *savePrompt) SetStderr(io.Writer) {}

// --- Layout and rendering ---

func (a *App) relayout() {
	listHeight := a.height - 8
	if listHeight < 5 {
		listHeight = 5
	}
	a.modelList.SetSize(a.width-4, listHeight)

	inputWidth := a.width - 8
	if inputWidth < 20 {
		inputWidth = 20
	}
	a.objective.SetWidth(inputWidth)
	a.target.Width = 10
	a.batch.Width = 10
	a.domain.Width = inputWidth
	a.exportPath.Width = inputWidth
}

func (a *App) syncModelItems() {
	items := make([]list.Item, 0, len(a.snap.Models))
	for _, m := range a.snap.Models {
		items = append(items, modelItem{m: m})
	}
	a.modelList.SetItems(items)
}

func (a App) View() string {
	if a.width == 0 || a.height == 0 {
		return "Initializing..."
	}

	header := a.renderSteps()
	var body string
	switch a.snap.Step {
	case orchestrator.StepSelectingModel:
		body = a.viewSelecting()
	case orchestrator.StepConfiguring:
		body = a.viewConfiguring()
	case orchestrator.StepGenerating:
		body = a.viewGenerating()
	case orchestrator.StepExporting:
		body = a.viewExporting()
	}

	sections := []string{header, body}
	if note := RenderNotifications(a.snap.Notifications, a.theme); note != "" {
		sections = append(sections, note)
	}
	sections = append(sections, a.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (a App) renderSteps() string {
	labels := []struct {
		step orchestrator.Step
		name string
	}{
		{orchestrator.StepSelectingModel, "1 Model"},
		{orchestrator.StepConfiguring, "2 Configure"},
		{orchestrator.StepGenerating, "3 Generate"},
		{orchestrator.StepExporting, "4 Export"},
	}

	var parts []string
	for _, l := range labels {
		style := a.theme.PendingStepStyle
		switch {
		case l.step == a.snap.Step:
			style = a.theme.ActiveStepStyle
		case l.step < a.snap.Step:
			style = a.theme.DoneStepStyle
		}
		parts = append(parts, style.Render(l.name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (a App) viewSelecting() string {
	if a.snap.Busy {
		return a.theme.MutedStyle.Render("\n  Discovering models...")
	}
	if len(a.snap.Models) == 0 {
		return a.theme.MutedStyle.Render("\n  No models found. Press ctrl+r to retry discovery.")
	}
	return a.modelList.View()
}

func (a App) viewConfiguring() string {
	label := func(field int, text string) string {
		if field == a.focus {
			return a.theme.FocusedStyle.Render("▸ " + text)
		}
		return a.theme.LabelStyle.Render("  " + text)
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(label(fieldObjective, "Fine-tuning objective"))
	b.WriteString("\n")
	b.WriteString(a.objective.View())
	b.WriteString("\n\n")
	b.WriteString(label(fieldTarget, "Target entries: ") + a.target.View())
	b.WriteString("\n")
	b.WriteString(label(fieldBatch, "Batch size:     ") + a.batch.View())
	b.WriteString("\n")
	b.WriteString(label(fieldDomain, "Domain context: ") + a.domain.View())
	b.WriteString("\n")
	b.WriteString(a.theme.LabelStyle.Render("  Format:         ") + string(a.snap.Config.Format))
	b.WriteString("\n")

	if len(a.suggestions) > 0 {
		b.WriteString("\n" + a.theme.TitleStyle.Render("  Use case ideas") + "\n")
		for i, s := range a.suggestions {
			b.WriteString(fmt.Sprintf("  %d. %s\n", i+1, s))
		}
	}
	if a.analysis != "" {
		b.WriteString("\n" + a.analysis + "\n")
	}

	b.WriteString("\n" + a.theme.HelpStyle.Render(
		"  tab fields · ctrl+f format · ctrl+g improve · ctrl+u ideas · ctrl+b analysis · ctrl+s start · esc back"))
	return b.String()
}

func (a App) viewGenerating() string {
	var b strings.Builder
	b.WriteString("\n" + a.theme.TitleStyle.Render("  Generating dataset") + "\n\n")
	if a.snap.ActiveRun != nil {
		b.WriteString(RenderRunProgress(*a.snap.ActiveRun, a.width-4, a.theme))
	} else {
		b.WriteString(a.theme.MutedStyle.Render("  starting...\n"))
	}
	b.WriteString("\n" + a.theme.HelpStyle.Render("  esc cancel"))
	return b.String()
}

func (a App) viewExporting() string {
	var b strings.Builder
	b.WriteString("\n" + a.theme.TitleStyle.Render("  Export dataset") + "\n\n")
	if run := a.snap.ActiveRun; run != nil {
		b.WriteString(fmt.Sprintf("  %d entries generated in %d batches\n\n",
			run.EntriesGenerated, run.CurrentBatch))
	}
	b.WriteString("  Save to: " + a.exportPath.View() + "\n")

	if ins := a.insights; ins != nil {
		b.WriteString("\n" + a.theme.TitleStyle.Render("  Knowledge base") + "\n")
		b.WriteString(fmt.Sprintf("  %d validated entries stored, average score %.2f\n",
			ins.Stats.TotalEntries, ins.Stats.AverageOverall))
		for _, s := range ins.Suggestions {
			b.WriteString("  • " + s + "\n")
		}
		if len(ins.TopEntries) > 0 {
			b.WriteString(a.theme.MutedStyle.Render(fmt.Sprintf(
				"  best stored entry for this use case scored %.2f",
				ins.TopEntries[0].Scores.Overall)))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n" + a.theme.HelpStyle.Render(
		"  enter export (empty path asks where to save) · ctrl+n new session"))
	return b.String()
}

func (a App) renderStatusBar() string {
	model := a.snap.SelectedModelID
	if model == "" {
		model = "no model"
	}
	status := "ready"
	if a.snap.Generating {
		status = "generating"
	}
	if a.snap.Busy {
		status = "working"
	}
	left := fmt.Sprintf(" %s · %s · %s", model, a.snap.Config.Format, status)
	right := fmt.Sprintf("%s  ", a.snap.Step)

	gap := a.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	return a.theme.StatusBarStyle.Width(a.width).Render(left + strings.Repeat(" ", gap) + right)
}

// Run 启动 Bubble Tea 向导
// Run starts the Bubble Tea wizard
func Run(orch *orchestrator.Orchestrator, exportDir string) error {
	app := NewApp(orch, exportDir)
	p := tea.NewProgram(app, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
