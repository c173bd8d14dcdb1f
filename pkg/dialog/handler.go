package dialog

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/intent"
	"github.com/wholesale-bot/resolver/pkg/normalize"
	"github.com/wholesale-bot/resolver/pkg/pipeline"
)

// SearchLogger persists the audit row spec.md's SearchLog entity describes.
// A nil Handler.SearchLogs is valid and simply skips logging.
type SearchLogger interface {
	Insert(ctx context.Context, tx *sql.Tx, userID *int64, rawText, parsedJSON, selectedJSON string, confidence *float64) error
}

// Handler wires the per-turn collaborators handle_message needs: the
// intent router (C3), the search pipeline orchestrator (C12), the dialog
// context store (C13), and the search audit log.
type Handler struct {
	Pipeline   *pipeline.Orchestrator
	LLM        intent.Rewriter
	Store      *Store
	SearchLogs SearchLogger
}

// ItemOutcome pairs one routed ADD_ITEM action with its pipeline result.
type ItemOutcome struct {
	Action intent.Action   `json:"action"`
	Result pipeline.Result `json:"result"`
}

// Response is handle_message's {intents, state, items, need_clarification,
// context_updates} return shape from spec §6.
type Response struct {
	Intents           []intent.Action `json:"intents"`
	State             string          `json:"state"`
	Items             []ItemOutcome   `json:"items"`
	NeedClarification bool            `json:"need_clarification"`
	ContextUpdates    Context         `json:"context_updates"`
}

// HandleMessage is the package entry point named in spec §6; it delegates
// to h.HandleMessage.
func HandleMessage(ctx context.Context, h *Handler, chatID, text string, userID *int64) (Response, error) {
	return h.HandleMessage(ctx, chatID, text, userID)
}

// HandleMessage routes text into one or more intents, runs the search
// pipeline for every ADD_ITEM action against the chat's current dialog
// context, and folds the outcome back into that context: the last parsed
// items, the terminal state of the most recent ADD_ITEM, and the
// clarification offset, which is kept while an ADD_ITEM still needs
// clarification and reset to 0 once one resolves to any other outcome.
func (h *Handler) HandleMessage(ctx context.Context, chatID, text string, userID *int64) (Response, error) {
	dc := h.Store.Get(ctx, chatID)
	normalizedText := normalize.Text(text)
	actions := intent.RouteMessage(ctx, normalizedText, h.LLM)

	var items []ItemOutcome
	needClarification := false

	for _, action := range actions {
		switch action.Type {
		case intent.ActionAddItem:
			query := firstNonEmpty(action.QueryCore, action.Subject, normalizedText)
			result := h.Pipeline.Run(ctx, query, pipeline.Options{
				OrgID: dc.OrgID, UserID: userID, ClarifyOffset: dc.ClarifyOffset,
				EnableLLMNarrow: true, EnableLLMRewrite: true, EnableRerank: true,
			})
			items = append(items, ItemOutcome{Action: action, Result: result})
			dc.LastItems = result.Decision.ParsedItems
			dc.LastState = string(result.Decision.Outcome)
			if result.Decision.Outcome == pipeline.OutcomeNeedsClarification {
				needClarification = true
			} else {
				dc.ClarifyOffset = 0
			}
			h.logSearch(ctx, userID, query, result)
		case intent.ActionAskStockETA, intent.ActionManager:
			dc.Topic = firstNonEmpty(action.Subject, string(action.Type))
		case intent.ActionUnknown:
		}
	}

	dc.ChatID = chatID
	h.Store.Save(ctx, dc)

	return Response{
		Intents: actions, State: dc.LastState, Items: items,
		NeedClarification: needClarification, ContextUpdates: dc,
	}, nil
}

// logSearch writes one immutable search_log row for a completed pipeline
// invocation, skipping silently when no SearchLogger is configured — the
// log is an audit trail, never load-bearing for the pipeline itself.
func (h *Handler) logSearch(ctx context.Context, userID *int64, rawText string, result pipeline.Result) {
	if h.SearchLogs == nil {
		return
	}
	parsed, err := json.Marshal(result.Decision.ParsedItems)
	if err != nil {
		logrus.WithError(err).Warn("search log: failed to encode parsed items")
		return
	}
	selected, err := json.Marshal(result.Results)
	if err != nil {
		logrus.WithError(err).Warn("search log: failed to encode selected results")
		return
	}
	if err := h.SearchLogs.Insert(ctx, nil, userID, rawText, string(parsed), string(selected), result.Decision.RerankTopScore); err != nil {
		logrus.WithError(err).Warn("search log: insert failed")
	}
}

// ResolveClarificationChoice resolves a tapped option id (e.g. "opt_3")
// against the clarification cached for (chatID, msgID), appending its
// append_tokens to the original query before the caller re-invokes the
// pipeline — the one-request-per-tap loop spec §9 describes for
// multi-page clarifications.
func (h *Handler) ResolveClarificationChoice(ctx context.Context, chatID, msgID, optionID, baseQuery string) (string, bool) {
	cached, ok := h.Store.GetClarification(ctx, chatID, msgID)
	if !ok {
		return "", false
	}
	for _, opt := range cached.Options {
		if opt.ID == optionID {
			return strings.TrimSpace(baseQuery + " " + strings.Join(opt.AppendTokens, " ")), true
		}
	}
	return "", false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
