package intent

import (
	"encoding/json"
	"strings"
)

type rawAction struct {
	Type      string   `json:"type"`
	QueryCore *string  `json:"query_core"`
	Subject   *string  `json:"subject"`
	Qty       *float64 `json:"qty"`
	Unit      *string  `json:"unit"`
}

func (r rawAction) toAction() (Action, bool) {
	switch ActionType(r.Type) {
	case ActionAddItem, ActionAskStockETA, ActionManager, ActionUnknown:
	default:
		return Action{}, false
	}
	a := Action{Type: ActionType(r.Type), Qty: 1}
	if r.QueryCore != nil {
		a.QueryCore = *r.QueryCore
	}
	if r.Subject != nil {
		a.Subject = *r.Subject
	}
	if r.Qty != nil {
		a.Qty = *r.Qty
	}
	if r.Unit != nil {
		a.Unit = *r.Unit
	}
	return a, true
}

// parseLLMPayload extracts a JSON array-of-actions or {"actions": [...]}
// object from raw LLM output that may carry leading/trailing prose, and
// converts it into a validated action list. Malformed or unparseable
// payloads yield an empty slice so the caller falls back to the heuristic.
func parseLLMPayload(content string) []Action {
	snippet := extractJSONSnippet(content)
	if snippet == "" {
		return nil
	}

	var asArray []rawAction
	if err := json.Unmarshal([]byte(snippet), &asArray); err == nil && len(asArray) > 0 {
		return toActions(asArray)
	}

	var asObject struct {
		Actions []rawAction `json:"actions"`
	}
	if err := json.Unmarshal([]byte(snippet), &asObject); err == nil && len(asObject.Actions) > 0 {
		return toActions(asObject.Actions)
	}

	var single rawAction
	if err := json.Unmarshal([]byte(snippet), &single); err == nil && single.Type != "" {
		return toActions([]rawAction{single})
	}

	return nil
}

func toActions(raws []rawAction) []Action {
	actions := make([]Action, 0, len(raws))
	for _, r := range raws {
		if a, ok := r.toAction(); ok {
			actions = append(actions, a)
		}
	}
	return actions
}

func extractJSONSnippet(text string) string {
	if text == "" {
		return ""
	}
	arrStart := strings.Index(text, "[")
	objStart := strings.Index(text, "{")

	start := -1
	closer := byte(0)
	switch {
	case arrStart == -1:
		start, closer = objStart, '}'
	case objStart == -1:
		start, closer = arrStart, ']'
	case arrStart < objStart:
		start, closer = arrStart, ']'
	default:
		start, closer = objStart, '}'
	}
	if start == -1 {
		return ""
	}
	end := strings.LastIndexByte(text, closer)
	if end == -1 || end <= start {
		return ""
	}
	return text[start : end+1]
}
