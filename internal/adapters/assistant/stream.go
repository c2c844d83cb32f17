package assistant

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

const (
	// maxPendingTools bounds the tool-use map; oldest entries are evicted
	maxPendingTools = 100

	// commandDescMax is the display length for shell commands
	commandDescMax = 80

	// queryDescMax is the display length for URLs and search queries
	queryDescMax = 60

	// thinkingMinChars is the threshold below which reasoning blocks are dropped
	thinkingMinChars = 80

	// errorOutputLines is how many output lines an error result may show
	errorOutputLines = 15
)

// errorPatterns flag a tool result as failed (compared lowercase)
var errorPatterns = []string{
	"error:",
	"traceback",
	"permission denied",
	"not found",
	`"is_error":true`,
	`"is_error": true`,
}

// StreamFormatter condenses assistant JSON event streams into readable text.
// It understands two dialects: events with a simple type and a nested message
// (claude), and events with a dotted type (codex). Lines that are not JSON
// are relayed unchanged.
type StreamFormatter struct {
	order   []string
	pending map[string]pendingTool
}

type pendingTool struct {
	input map[string]any
	name  string
}

// Verify interface compliance at compile time
var _ ports.LineFormatter = (*StreamFormatter)(nil)

// NewStreamFormatter creates a StreamFormatter with empty tool state
func NewStreamFormatter() *StreamFormatter {
	return &StreamFormatter{pending: make(map[string]pendingTool)}
}

// streamEvent is the superset of fields across both event dialects
type streamEvent struct {
	Content    json.RawMessage `json:"content"`
	DurationMS int64           `json:"duration_ms"`
	Error      json.RawMessage `json:"error"`
	Item       json.RawMessage `json:"item"`
	Message    json.RawMessage `json:"message"`
	NumTurns   int             `json:"num_turns"`
	Role       string          `json:"role"`
	Subtype    string          `json:"subtype"`
	ThreadID   string          `json:"thread_id"`
	Type       string          `json:"type"`
	Usage      *tokenUsage     `json:"usage"`
}

// tokenUsage carries token counts for both dialects
type tokenUsage struct {
	CachedInputTokens    int `json:"cached_input_tokens"`
	CacheReadInputTokens int `json:"cache_read_input_tokens"`
	InputTokens          int `json:"input_tokens"`
	OutputTokens         int `json:"output_tokens"`
}

func (u tokenUsage) cached() int {
	if u.CacheReadInputTokens > 0 {
		return u.CacheReadInputTokens
	}
	return u.CachedInputTokens
}

// contentBlock is one element of a claude message content array
type contentBlock struct {
	Content   json.RawMessage `json:"content"`
	ID        string          `json:"id"`
	Input     map[string]any  `json:"input"`
	IsError   bool            `json:"is_error"`
	Name      string          `json:"name"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ToolUseID string          `json:"tool_use_id"`
	Type      string          `json:"type"`
}

// codexItem is the payload of codex item.* events
type codexItem struct {
	AggregatedOutput string `json:"aggregated_output"`
	ChangeType       string `json:"change_type"`
	Command          string `json:"command"`
	Content          string `json:"content"`
	ExitCode         *int   `json:"exit_code"`
	FilePath         string `json:"file_path"`
	Name             string `json:"name"`
	Query            string `json:"query"`
	Text             string `json:"text"`
	Todos            []any  `json:"todos"`
	ToolName         string `json:"tool_name"`
	Type             string `json:"type"`
}

// FormatLine converts one raw stream line into display text.
// Returns emit=false when the line produces no output (blank lines,
// suppressed events). Non-JSON lines pass through verbatim.
func (f *StreamFormatter) FormatLine(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", false
	}

	var event streamEvent
	if err := json.Unmarshal([]byte(trimmed), &event); err != nil {
		return line, true
	}

	var out []string
	if isCodexEvent(event) {
		out = f.formatCodex(event)
	} else {
		out = f.formatClaude(event)
	}
	if len(out) == 0 {
		return "", false
	}
	return strings.Join(out, "\n"), true
}

// isCodexEvent reports whether the event uses the dotted codex dialect.
// A bare error event with neither item nor message is codex too.
func isCodexEvent(event streamEvent) bool {
	if strings.Contains(event.Type, ".") {
		return true
	}
	return event.Type == "error" && len(event.Item) == 0 && len(event.Message) == 0
}

func (f *StreamFormatter) formatClaude(event streamEvent) []string {
	switch {
	case event.Type == "init" || (event.Type == "system" && event.Subtype == "init"):
		return f.handleInit()
	case event.Type == "result":
		return handleResult(event)
	}

	role, blocks := extractBlocks(event)
	if role == "" {
		return nil
	}

	var out []string
	for _, block := range blocks {
		out = append(out, f.formatBlock(block, role)...)
	}
	return out
}

// handleInit emits the session banner and discards stale tool state
func (f *StreamFormatter) handleInit() []string {
	f.pending = make(map[string]pendingTool)
	f.order = nil
	return []string{banner("Claude Session Started")}
}

func handleResult(event streamEvent) []string {
	head := "Session Complete"
	var details []string
	if event.DurationMS > 0 {
		details = append(details, fmt.Sprintf("%.1fs", float64(event.DurationMS)/1000))
	}
	if event.NumTurns > 0 {
		details = append(details, fmt.Sprintf("%d turns", event.NumTurns))
	}
	if len(details) > 0 {
		head = fmt.Sprintf("%s (%s)", head, strings.Join(details, ", "))
	}
	out := []string{banner(head)}
	if event.Usage != nil {
		out = append(out, usageLine(*event.Usage))
	}
	return out
}

// extractBlocks normalizes the two claude message shapes (nested message
// object or flat role/content) into a role and a block list. String content
// becomes a single text block.
func extractBlocks(event streamEvent) (string, []contentBlock) {
	role := event.Role
	content := event.Content

	if len(event.Message) > 0 {
		var text string
		if err := json.Unmarshal(event.Message, &text); err == nil {
			return "assistant", []contentBlock{{Text: text, Type: "text"}}
		}
		var msg struct {
			Content json.RawMessage `json:"content"`
			Role    string          `json:"role"`
		}
		if err := json.Unmarshal(event.Message, &msg); err != nil {
			return "", nil
		}
		role = msg.Role
		content = msg.Content
	}

	if role == "" || len(content) == 0 {
		return role, nil
	}

	var text string
	if err := json.Unmarshal(content, &text); err == nil {
		return role, []contentBlock{{Text: text, Type: "text"}}
	}
	var blocks []contentBlock
	if err := json.Unmarshal(content, &blocks); err != nil {
		return role, nil
	}
	return role, blocks
}

func (f *StreamFormatter) formatBlock(block contentBlock, role string) []string {
	switch block.Type {
	case "text":
		if role != "assistant" {
			return nil
		}
		return textParagraphs(block.Text)
	case "thinking":
		return thinkingLine(block.Thinking)
	case "tool_use":
		f.storeToolUse(block)
		return nil
	case "tool_result":
		return f.formatToolResult(block)
	}
	return nil
}

// storeToolUse remembers a tool invocation until its result arrives
func (f *StreamFormatter) storeToolUse(block contentBlock) {
	if block.ID == "" {
		return
	}
	if _, exists := f.pending[block.ID]; !exists {
		if len(f.order) >= maxPendingTools {
			oldest := f.order[0]
			f.order = f.order[1:]
			delete(f.pending, oldest)
		}
		f.order = append(f.order, block.ID)
	}
	f.pending[block.ID] = pendingTool{input: block.Input, name: block.Name}
}

func (f *StreamFormatter) formatToolResult(block contentBlock) []string {
	text := resultText(block.Content)
	isErr := block.IsError || isErrorText(text)

	tool, ok := f.pending[block.ToolUseID]
	if ok {
		delete(f.pending, block.ToolUseID)
		f.order = removeString(f.order, block.ToolUseID)
	} else {
		logging.Logger.Debug("Tool result without matching tool use", "tool_use_id", block.ToolUseID)
	}

	marker := "•"
	if isErr {
		marker = "✗"
	}
	head := "  " + marker
	if tool.name != "" {
		head += " " + buildToolDescription(tool.name, tool.input)
	}

	out := []string{head}
	for _, line := range formatToolOutput(text, tool.name, isErr) {
		out = append(out, "    "+line)
	}
	return out
}

func (f *StreamFormatter) formatCodex(event streamEvent) []string {
	switch event.Type {
	case "thread.started":
		head := "Codex Session Started"
		if event.ThreadID != "" {
			head = fmt.Sprintf("%s (%s)", head, event.ThreadID)
		}
		return []string{banner(head)}
	case "turn.started":
		return nil
	case "turn.completed":
		out := []string{banner("Turn Complete")}
		if event.Usage != nil {
			out = append(out, usageLine(*event.Usage))
		}
		return out
	case "turn.failed":
		message := errorMessage(event.Error)
		if message == "" {
			message = "Unknown error"
		}
		return []string{"  ✗ Turn Failed: " + message}
	case "error":
		return []string{"  ✗ Error: " + errorMessage(event.Error)}
	case "item.started", "item.completed":
		return formatCodexItem(event)
	}
	return nil
}

func formatCodexItem(event streamEvent) []string {
	if len(event.Item) == 0 {
		return nil
	}
	var item codexItem
	if err := json.Unmarshal(event.Item, &item); err != nil {
		return nil
	}

	// During streaming only agent text is worth relaying early
	if event.Type == "item.started" && item.Type != "agent_message" {
		return nil
	}

	switch item.Type {
	case "agent_message":
		text := item.Text
		if text == "" {
			text = item.Content
		}
		return textParagraphs(text)
	case "command_execution":
		return formatCommandExecution(item)
	case "file_change":
		return formatFileChange(item)
	case "reasoning":
		return thinkingLine(item.Text)
	case "mcp_tool_call":
		name := item.ToolName
		if name == "" {
			name = item.Name
		}
		return []string{"  • mcp: " + name}
	case "web_search":
		return []string{"  • search: " + truncate(item.Query, queryDescMax)}
	case "todo_list":
		return []string{fmt.Sprintf("  • todo: update (%d items)", len(item.Todos))}
	}
	return nil
}

func formatCommandExecution(item codexItem) []string {
	exitCode := 0
	if item.ExitCode != nil {
		exitCode = *item.ExitCode
	}
	isErr := exitCode != 0

	marker := "•"
	head := "bash: " + truncate(item.Command, commandDescMax)
	if isErr {
		marker = "✗"
		head = fmt.Sprintf("%s (exit %d)", head, exitCode)
	}

	out := []string{fmt.Sprintf("  %s %s", marker, head)}
	for _, line := range formatToolOutput(item.AggregatedOutput, "Bash", isErr) {
		out = append(out, "    "+line)
	}
	return out
}

func formatFileChange(item codexItem) []string {
	var verb string
	switch item.ChangeType {
	case "create", "add":
		verb = "write"
	case "delete", "remove":
		verb = "delete"
	default:
		verb = "edit"
	}
	return []string{fmt.Sprintf("  • %s: %s", verb, item.FilePath)}
}

// errorMessage extracts a message from an error payload that may be either
// an object with a message field or a plain string
func errorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != "" {
		return obj.Message
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	return ""
}

// buildToolDescription renders a one-line summary of a tool invocation.
// Unknown tools fall back to their lowercased name.
func buildToolDescription(name string, input map[string]any) string {
	switch name {
	case "Read":
		return "read: " + inputString(input, "file_path")
	case "Write":
		return fmt.Sprintf("write: %s (%d chars)", inputString(input, "file_path"), len(inputString(input, "content")))
	case "Edit":
		return "edit: " + inputString(input, "file_path")
	case "Bash":
		return "bash: " + truncate(inputString(input, "command"), commandDescMax)
	case "Grep":
		path := inputString(input, "path")
		if path == "" {
			path = "."
		}
		return fmt.Sprintf("grep: '%s' in %s", inputString(input, "pattern"), path)
	case "Glob":
		return "glob: " + inputString(input, "pattern")
	case "TodoWrite":
		todos, _ := input["todos"].([]any)
		return fmt.Sprintf("todo: update (%d items)", len(todos))
	case "Task":
		agent := inputString(input, "subagent_type")
		if agent == "" {
			agent = "agent"
		}
		if desc := inputString(input, "description"); desc != "" {
			return fmt.Sprintf("task: %s → %s", agent, desc)
		}
		return "task: spawn " + agent
	case "WebFetch":
		return "fetch: " + truncate(inputString(input, "url"), queryDescMax)
	case "WebSearch":
		return "search: " + truncate(inputString(input, "query"), queryDescMax)
	case "LSP":
		return fmt.Sprintf("lsp: %s in %s", inputString(input, "operation"), inputString(input, "filePath"))
	}
	return strings.ToLower(name)
}

func inputString(input map[string]any, key string) string {
	if input == nil {
		return ""
	}
	value, _ := input[key].(string)
	return value
}

// formatToolOutput truncates tool output for display. Errors keep more
// context than successes; noisy tools get tool-specific treatment.
func formatToolOutput(content, toolName string, isErr bool) []string {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil
	}
	lines := strings.Split(trimmed, "\n")

	if isErr {
		if len(lines) > errorOutputLines {
			extra := len(lines) - errorOutputLines
			lines = append(lines[:errorOutputLines:errorOutputLines], fmt.Sprintf("… (%d more lines)", extra))
		}
		return lines
	}

	switch toolName {
	case "Bash":
		if len(lines) <= 4 {
			return lines
		}
		return []string{
			lines[0],
			lines[1],
			fmt.Sprintf("… (%d more lines)", len(lines)-3),
			lines[len(lines)-1],
		}
	case "Read":
		return []string{fmt.Sprintf("%d lines", len(lines))}
	case "Write", "Edit":
		// Success is already implied by the matched tool line
		return nil
	case "Grep":
		if len(lines) <= 6 {
			return lines
		}
		return append(lines[:5:5], fmt.Sprintf("… (%d more matches)", len(lines)-5))
	}

	if len(lines) <= 3 {
		return lines
	}
	return []string{lines[0], fmt.Sprintf("… (%d more lines)", len(lines)-1)}
}

// resultText flattens tool result content, which may be a string or a
// list of text blocks
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func isErrorText(text string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, pattern := range errorPatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// textParagraphs cleans assistant text and splits it into display lines,
// collapsing runs of blank lines
func textParagraphs(text string) []string {
	var out []string
	for _, paragraph := range splitParagraphs(cleanOutput(text)) {
		if len(out) > 0 {
			out = append(out, "")
		}
		out = append(out, strings.Split(paragraph, "\n")...)
	}
	return out
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	var current []string
	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, "\n"))
			current = nil
		}
	}
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, strings.TrimRight(line, " \t"))
	}
	flush()
	return paragraphs
}

// cleanOutput strips attribution trailers and reminder blocks that add
// noise to relayed assistant text
func cleanOutput(text string) string {
	if text == "" {
		return ""
	}
	var kept []string
	inReminder := false
	for _, line := range strings.Split(text, "\n") {
		if strings.Contains(line, "<system-reminder>") {
			inReminder = true
			continue
		}
		if strings.Contains(line, "</system-reminder>") {
			inReminder = false
			continue
		}
		if inReminder {
			continue
		}
		if strings.Contains(line, "Co-Authored-By") || strings.Contains(line, "Generated with") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func thinkingLine(text string) []string {
	if len(text) <= thinkingMinChars {
		return nil
	}
	return []string{fmt.Sprintf("  thinking (%d chars)", len(text))}
}

func banner(text string) string {
	return "=== " + text + " ==="
}

func usageLine(usage tokenUsage) string {
	line := fmt.Sprintf("    tokens: %s in / %s out", commafy(usage.InputTokens), commafy(usage.OutputTokens))
	if cached := usage.cached(); cached > 0 {
		line += fmt.Sprintf(" (cached: %s)", commafy(cached))
	}
	return line
}

// commafy renders n with thousands separators
func commafy(n int) string {
	s := strconv.Itoa(n)
	if n < 0 {
		return s
	}
	var b strings.Builder
	for i, digit := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(digit)
	}
	return b.String()
}

// truncate caps s at max bytes, cutting on a rune boundary so relayed
// text stays valid UTF-8
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	marker := ""
	if max > 3 {
		cut = max - 3
		marker = "..."
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}

func removeString(list []string, target string) []string {
	for i, s := range list {
		if s == target {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
