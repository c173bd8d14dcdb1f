// Package intent implements the intent router (C3): a rule-based heuristic
// that classifies one inbound message into a list of actions, with an
// optional LLM augmentation pass when the heuristic finds nothing
// meaningful.
//
// Grounded on
// _examples/original_source/app/services/llm_intent_router.py.
package intent

import (
	"context"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/orderparser"
)

// ActionType enumerates the four outcomes the router can produce.
type ActionType string

const (
	ActionAddItem     ActionType = "ADD_ITEM"
	ActionAskStockETA ActionType = "ASK_STOCK_ETA"
	ActionManager     ActionType = "MANAGER"
	ActionUnknown     ActionType = "UNKNOWN"
)

const unclearRussianPrompt = "Уточните запрос по-русски"

// Action is one routed intent.
type Action struct {
	Type      ActionType
	QueryCore string
	Subject   string
	Qty       float64
	Unit      string
}

// Rewriter is the subset of the C9 LLM augmentation layer the router needs;
// satisfied by pkg/llmaug.Service.Rewrite-shaped chat calls. Kept narrow so
// the router can be tested without the full provider stack.
type Rewriter interface {
	Available() bool
	Chat(ctx context.Context, systemPrompt, userText string) (string, error)
}

var (
	qtyUnitRE   = regexp.MustCompile(`(?i)(\d+)\s*(мотка|мотков|моток|шт|штук|рулон|рулона|рулонов|упаковка|упаковки|коробка|коробки|пачка|пачки)`)
	addPrefixRE = regexp.MustCompile(`(?i)^(добавь(?:те)?|мне нужно|в заказ|пожалуйста|нужно|надо)\s+`)
	addSplitRE  = regexp.MustCompile(`(?i)и что|и кстати|а также|,`)
	etaHintRE   = regexp.MustCompile(`(?i)когда (придет|будет|ожидается)|срок поставки`)
	latinRE     = regexp.MustCompile(`[A-Za-z]`)
	cyrillicRE  = regexp.MustCompile(`[а-яё]`)
	commandRE   = regexp.MustCompile(`(?i)добавь(?:те)?|добавить|нужно|надо|положи|закажи|в заказ|пожалуйста|мне нужно|кстати|что там|по поводу`)
	addTriggerRE = regexp.MustCompile(`(?i)добавь(?:те)?|добавить|нужно|надо|положи|закажи|в заказ`)
	whitespaceRE = regexp.MustCompile(`\s+`)
)

var unitMap = map[string]string{
	"мотка": "моток", "мотков": "моток", "моток": "моток",
	"штук": "шт", "шт": "шт",
	"рулона": "рулон", "рулонов": "рулон", "рулон": "рулон",
	"упаковка": "упаковка", "упаковки": "упаковка",
	"коробочки": "коробка", "коробка": "коробка", "коробки": "коробка",
	"пачка": "пачка", "пачки": "пачка",
	"кг": "кг",
}

var noisePhraseTexts = []string{"что там", "по поводу", "и кстати", "а также", "пожалуйста", "мне нужно", "в заказ"}

var noisePhraseRE = buildNoisePhraseRE(noisePhraseTexts)

func buildNoisePhraseRE(phrases []string) []*regexp.Regexp {
	res := make([]*regexp.Regexp, len(phrases))
	for i, phrase := range phrases {
		res[i] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	}
	return res
}

var etaSubjects = []struct{ needle, subject string }{
	{"поролон", "поролон"}, {"ппу", "ппу"}, {"синтепон", "синтепон"}, {"спанбонд", "спанбонд"},
}

// Route classifies raw text into one or more actions. ctx and llm are used
// only when the heuristic pass produces nothing meaningful; llm may be nil.
// RouteMessage is the package entry point named in spec §6; it delegates
// to Route.
func RouteMessage(ctx context.Context, text string, llm Rewriter) []Action {
	return Route(ctx, text, llm)
}

func Route(ctx context.Context, text string, llm Rewriter) []Action {
	heuristic := heuristicActions(text)
	if hasMeaningfulAction(heuristic) || llm == nil || !llm.Available() {
		return heuristic
	}

	systemPrompt := "Ты роутер намерений для B2B заказов. Верни ТОЛЬКО JSON без пояснений. " +
		"Допустимы 2 формата: массив действий или объект {\"actions\":[...]}. " +
		"Каждое действие: {\"type\":\"ADD_ITEM|ASK_STOCK_ETA|MANAGER|UNKNOWN\",\"query_core\":\"...\",\"subject\":\"...\",\"qty\":number,\"unit\":\"...\"}. " +
		"Если есть и добавление товара, и вопрос о сроке — верни оба действия."

	content, err := llm.Chat(ctx, systemPrompt, text)
	if err != nil {
		logrus.WithError(err).Info("intent router fallback activated")
		return heuristic
	}
	parsed := parseLLMPayload(content)
	if len(parsed) == 0 {
		return heuristic
	}
	parsed = sanitizeLanguage(parsed)
	if len(parsed) == 0 {
		return []Action{{Type: ActionUnknown, QueryCore: unclearRussianPrompt}}
	}
	return ensureStockETA(text, parsed)
}

func hasMeaningfulAction(actions []Action) bool {
	for _, a := range actions {
		if a.Type == ActionAddItem || a.Type == ActionAskStockETA || a.Type == ActionManager {
			return true
		}
	}
	return false
}

func heuristicActions(text string) []Action {
	if latinOnly(text) {
		return []Action{{Type: ActionUnknown, QueryCore: unclearRussianPrompt}}
	}

	if add := extractAddItem(text); add != nil {
		actions := []Action{*add}
		return ensureStockETA(text, actions)
	}

	return fallbackActions(text)
}

func latinOnly(text string) bool {
	return latinRE.MatchString(text) && !cyrillicRE.MatchString(strings.ToLower(text))
}

func extractAddItem(text string) *Action {
	cleaned := strings.TrimSpace(whitespaceRE.ReplaceAllString(text, " "))
	if cleaned == "" {
		return nil
	}
	if !addTriggerRE.MatchString(cleaned) {
		return nil
	}

	work := addPrefixRE.ReplaceAllString(cleaned, "")
	if loc := addSplitRE.FindStringIndex(work); loc != nil {
		work = work[:loc[0]]
	}
	work = strings.TrimSpace(work)
	for _, re := range noisePhraseRE {
		work = re.ReplaceAllString(work, " ")
	}

	qty := 1.0
	unit := ""
	if m := qtyUnitRE.FindStringSubmatchIndex(work); m != nil {
		sub := qtyUnitRE.FindStringSubmatch(work)
		qty = atof(sub[1])
		unitRaw := strings.ToLower(sub[2])
		if canon, ok := unitMap[unitRaw]; ok {
			unit = canon
		} else {
			unit = unitRaw
		}
		work = strings.TrimSpace(work[:m[0]] + " " + work[m[1]:])
	}

	work = commandRE.ReplaceAllString(work, " ")
	work = strings.Trim(whitespaceRE.ReplaceAllString(work, " "), " ,.-")
	if work == "" {
		return nil
	}

	return &Action{Type: ActionAddItem, QueryCore: work, Qty: qty, Unit: unit}
}

func atof(s string) float64 {
	var n float64
	for _, r := range s {
		n = n*10 + float64(r-'0')
	}
	return n
}

func extractETASubject(text string) string {
	lower := strings.ToLower(text)
	for _, e := range etaSubjects {
		if strings.Contains(lower, e.needle) {
			return e.subject
		}
	}
	return ""
}

func ensureStockETA(text string, actions []Action) []Action {
	for _, a := range actions {
		if a.Type == ActionAskStockETA {
			return actions
		}
	}
	loc := etaHintRE.FindStringIndex(text)
	if loc == nil {
		return actions
	}
	subject := extractETASubject(text[loc[0]:])
	if subject == "" {
		subject = extractETASubject(text)
	}
	if subject == "" {
		return actions
	}
	return append(actions, Action{Type: ActionAskStockETA, QueryCore: subject, Subject: subject})
}

func sanitizeLanguage(actions []Action) []Action {
	cleaned := make([]Action, 0, len(actions))
	droppedNonRu := false
	for _, a := range actions {
		if a.Type == ActionAddItem {
			query := strings.TrimSpace(a.QueryCore)
			if latinRE.MatchString(query) {
				droppedNonRu = true
				continue
			}
			a.QueryCore = query
		}
		if a.Type == ActionAskStockETA {
			subject := strings.TrimSpace(a.Subject)
			if subject == "" {
				subject = a.QueryCore
			}
			if latinRE.MatchString(subject) {
				droppedNonRu = true
				continue
			}
			a.Subject = subject
			if a.QueryCore == "" {
				a.QueryCore = a.Subject
			}
		}
		cleaned = append(cleaned, a)
	}
	if droppedNonRu && len(cleaned) == 0 {
		return []Action{{Type: ActionUnknown, QueryCore: unclearRussianPrompt}}
	}
	return cleaned
}

// fallbackActions runs the order parser and converts each parsed item into
// an ADD_ITEM action, used when no imperative marker was present but the
// text still parses as one or more order lines.
func fallbackActions(text string) []Action {
	if latinOnly(text) {
		return []Action{{Type: ActionUnknown, QueryCore: unclearRussianPrompt}}
	}

	items := orderparser.Parse(text)
	actions := make([]Action, 0, len(items))
	for _, item := range items {
		core := item.QueryCore
		if core == "" {
			core = item.Query
		}
		if core == "" {
			continue
		}
		qty := float64(item.Qty)
		if qty == 0 {
			qty = 1
		}
		actions = append(actions, Action{Type: ActionAddItem, QueryCore: core, Qty: qty, Unit: item.Unit})
	}
	if len(actions) == 0 {
		actions = append(actions, Action{Type: ActionUnknown})
	}
	return ensureStockETA(text, actions)
}
