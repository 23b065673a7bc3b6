package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Thread item types delivered in item/completed notifications and in
// resume histories.
const (
	ItemUserMessage       = "userMessage"
	ItemAgentMessage      = "agentMessage"
	ItemReasoning         = "reasoning"
	ItemCommandExecution  = "commandExecution"
	ItemFileChange        = "fileChange"
	ItemToolCall          = "toolCall"
	ItemWebSearch         = "webSearch"
	ItemPlan              = "plan"
	ItemEnteredReviewMode = "enteredReviewMode"
	ItemExitedReviewMode  = "exitedReviewMode"
	ItemContextCompaction = "contextCompaction"
	ItemViewImage         = "viewImage"
)

// ContentPart is one piece of a user message's structured content.
type ContentPart struct {
	Type     string
	Text     string
	ImageURL string
	Path     string
	Name     string
}

func (c *ContentPart) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	c.Type = p.str([]string{"type"})
	c.Text = p.str([]string{"text"})
	c.ImageURL = p.str(aliasImageURL)
	c.Path = p.str(aliasPath)
	c.Name = p.str([]string{"name"})
	return nil
}

// PlanStep is one entry of a plan item.
type PlanStep struct {
	Step   string
	Status string
}

func (s *PlanStep) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	s.Step = p.str([]string{"step", "text", "title"})
	s.Status = p.str([]string{"status", "state"})
	return nil
}

// ThreadItem is the loosely-shaped structured item the protocol carries.
// Only the fields relevant to the item's Type are populated.
type ThreadItem struct {
	Type     string
	Role     string
	Text     string
	Content  []ContentPart
	Command  string
	ExitCode *int
	Output   string
	Path     string
	Kind     string
	ToolName string
	Query    string
	Plan     []PlanStep
}

func (it *ThreadItem) UnmarshalJSON(raw []byte) error {
	p, err := decodePayload(raw)
	if err != nil {
		return err
	}
	it.Type = p.str(aliasItemType)
	it.Role = p.str([]string{"role"})
	it.Text = p.str([]string{"text", "message", "content"})
	if v, ok := p.raw([]string{"content", "parts"}); ok {
		// Content may be a string (already captured as Text) or a part
		// array.
		var parts []ContentPart
		if err := json.Unmarshal(v, &parts); err == nil {
			it.Content = parts
		}
	}
	it.Command = p.str([]string{"command", "cmd"})
	it.ExitCode = p.intPtr(aliasExitCode)
	it.Output = p.str(aliasOutput)
	it.Path = p.str(aliasPath)
	it.Kind = p.str([]string{"kind", "changeKind", "change_kind"})
	it.ToolName = p.str(aliasToolName)
	it.Query = p.str([]string{"query", "q"})
	if v, ok := p.raw([]string{"plan", "steps"}); ok {
		_ = json.Unmarshal(v, &it.Plan)
	}
	return nil
}

// RenderItem converts a structured item into at most one chat message,
// per item-type rendering rules. The second return is false for item
// types that produce no message (unknown types, and user/assistant
// message items, which travel on the direct and delta paths).
func RenderItem(item ThreadItem, at time.Time) (ChatMessage, bool) {
	switch item.Type {
	case ItemCommandExecution:
		var b strings.Builder
		b.WriteString("$ ")
		b.WriteString(item.Command)
		if out := strings.TrimRight(item.Output, "\n"); out != "" {
			b.WriteString("\n")
			b.WriteString(out)
		}
		if item.ExitCode != nil && *item.ExitCode != 0 {
			fmt.Fprintf(&b, "\n(exit %d)", *item.ExitCode)
		}
		return systemMessage(b.String(), at), true
	case ItemFileChange:
		verb := "Edited"
		switch strings.ToLower(item.Kind) {
		case "add", "create":
			verb = "Created"
		case "delete", "remove":
			verb = "Deleted"
		}
		return systemMessage(fmt.Sprintf("%s %s", verb, item.Path), at), true
	case ItemToolCall:
		text := "Tool: " + item.ToolName
		if out := strings.TrimRight(item.Output, "\n"); out != "" {
			text += "\n" + out
		}
		return systemMessage(text, at), true
	case ItemWebSearch:
		return systemMessage("Searched: "+item.Query, at), true
	case ItemPlan:
		var b strings.Builder
		b.WriteString("Plan:")
		for _, step := range item.Plan {
			mark := " "
			if strings.EqualFold(step.Status, "completed") || strings.EqualFold(step.Status, "done") {
				mark = "x"
			}
			fmt.Fprintf(&b, "\n[%s] %s", mark, step.Step)
		}
		return systemMessage(b.String(), at), true
	case ItemReasoning:
		if strings.TrimSpace(item.Text) == "" {
			return ChatMessage{}, false
		}
		return ChatMessage{Role: RoleReasoning, Text: item.Text, Timestamp: at}, true
	case ItemEnteredReviewMode:
		return systemMessage("Entered review mode", at), true
	case ItemExitedReviewMode:
		return systemMessage("Exited review mode", at), true
	case ItemContextCompaction:
		return systemMessage("Context compacted", at), true
	case ItemViewImage:
		return systemMessage("Viewed image "+item.Path, at), true
	default:
		return ChatMessage{}, false
	}
}

func systemMessage(text string, at time.Time) ChatMessage {
	return ChatMessage{Role: RoleSystem, Text: text, Timestamp: at}
}

// CombineUserParts flattens a user message's content parts into one text
// block: plain text verbatim, non-text parts as bracketed references.
func CombineUserParts(item ThreadItem) string {
	if len(item.Content) == 0 {
		return item.Text
	}
	var parts []string
	for _, part := range item.Content {
		switch part.Type {
		case "text", "":
			if part.Text != "" {
				parts = append(parts, part.Text)
			}
		case "image", "inlineImage", "remoteImage":
			ref := part.ImageURL
			if ref == "" {
				ref = part.Path
			}
			parts = append(parts, "[image: "+ref+"]")
		case "localImage":
			parts = append(parts, "[image: "+part.Path+"]")
		case "skill":
			parts = append(parts, "[skill: "+part.Name+"]")
		case "mention":
			parts = append(parts, "@"+part.Name)
		}
	}
	return strings.Join(parts, "\n")
}

// MessagesFromHistory reconstructs a thread's messages from a resume
// response: turn-grouped items when present, the flat legacy array
// otherwise. User parts combine into one block, assistant items pass
// through verbatim, tool-family items render into titled blocks, and
// unknown types are dropped.
func MessagesFromHistory(result ThreadResumeResult, at time.Time) []ChatMessage {
	items := result.Items
	if len(result.Turns) > 0 {
		items = items[:0:0]
		for _, turn := range result.Turns {
			items = append(items, turn.Items...)
		}
	}
	messages := make([]ChatMessage, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case ItemUserMessage:
			text := CombineUserParts(item)
			if text == "" {
				continue
			}
			messages = append(messages, ChatMessage{Role: RoleUser, Text: text, Timestamp: at})
		case ItemAgentMessage:
			messages = append(messages, ChatMessage{Role: RoleAssistant, Text: item.Text, Timestamp: at})
		default:
			if msg, ok := RenderItem(item, at); ok {
				messages = append(messages, msg)
			}
		}
	}
	return messages
}
