// Package llmaug implements the LLM augmentation layer (C9): Rewrite,
// Normalize, Narrow, and Rerank, each with a strict degrade-to-identity
// contract when the LLM is disabled, unavailable, or fails.
//
// Grounded on
// _examples/original_source/app/services/llm_rewrite.py,
// llm_normalize.py, llm_category_narrow.py, and llm_rerank.py.
package llmaug

import (
	"context"
	"database/sql"
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/cache"
	"github.com/wholesale-bot/resolver/pkg/llmaug/provider"
)

// Service wires a chat provider, the catalog DB (for the category
// manifest), and the manifest cache into the four augmentation operations.
// A nil or unavailable provider makes every operation degrade to its
// identity/empty behavior without attempting I/O.
type Service struct {
	Provider provider.Provider
	db       *sql.DB
	cache    *cache.Cache
}

// New builds a Service. provider may be nil to force every operation into
// its degraded, I/O-free path (the "llm_disabled" case).
func New(p provider.Provider, db *sql.DB, c *cache.Cache) *Service {
	return &Service{Provider: p, db: db, cache: c}
}

// Available reports whether the underlying provider can attempt a call.
func (s *Service) Available() bool {
	return s.Provider != nil && s.Provider.Available()
}

// Chat exposes the underlying provider call at a fixed temperature so
// collaborators outside the four augmentation operations (C3's intent
// router) can use Service as their chat backend without duplicating
// transport plumbing.
func (s *Service) Chat(ctx context.Context, systemPrompt, userText string) (string, error) {
	return s.chat(ctx, systemPrompt, userText, 0.2)
}

func (s *Service) chat(ctx context.Context, systemPrompt, userText string, temperature float64) (string, error) {
	return s.Provider.Chat(ctx, []provider.Message{
		{Role: provider.RoleSystem, Content: systemPrompt},
		{Role: provider.RoleUser, Content: userText},
	}, temperature)
}

var tokenRE = regexp.MustCompile(`(?i)[a-zа-я0-9]+`)

const rewritePrompt = "Перепиши пользовательский запрос в короткий поисковый запрос для товарного каталога. " +
	"Верни только одну строку без пояснений, 2-6 слов, без знаков препинания. " +
	"Убери мусор и вводные слова (мне нужно, пожалуйста, универсальные, по кор, наличие). " +
	"Сохрани критические токены: название товара, модель/серия, размеры, числа (например 70, 5, 308, ll70)."

// Rewrite compresses text to a 2-6-word search string; on any failure
// (disabled provider, transport error, empty response) it returns the
// input unchanged.
func (s *Service) Rewrite(ctx context.Context, text string) string {
	if !s.Available() {
		return text
	}
	raw, err := s.chat(ctx, rewritePrompt, text, 0.1)
	if err != nil {
		logrus.WithError(err).Info("llm rewrite failed")
		return text
	}
	tokens := tokenRE.FindAllString(strings.ToLower(raw), -1)
	if len(tokens) == 0 {
		return text
	}
	if len(tokens) > 6 {
		tokens = tokens[:6]
	}
	return strings.Join(tokens, " ")
}

const normalizePrompt = `Ты нормализуешь запросы для поиска по каталогу. ` +
	`Ответь строго JSON в формате {"alternatives":["...","...","..."],"notes":"..."}.` + "\n" +
	"Правила:\n" +
	"- alternatives: 3-5 строк, максимум 60 символов каждая.\n" +
	"- Убери количества и единицы (10шт, 2рол, 1коробка).\n" +
	"- Преобразуй разговорные формы в нормальные термины.\n" +
	"- Числа и размеры сохраняй.\n" +
	"- Без лишнего текста вне JSON."

type normalizeResponse struct {
	Alternatives []string `json:"alternatives"`
}

// Normalize returns 3-5 alternative queries each ≤ 60 chars; on any failure
// it returns an empty slice.
func (s *Service) Normalize(ctx context.Context, text string) []string {
	if !s.Available() {
		return nil
	}
	raw, err := s.chat(ctx, normalizePrompt, text, 0.2)
	if err != nil {
		logrus.WithError(err).Info("llm normalize failed")
		return nil
	}

	var decoded normalizeResponse
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil
	}

	cleaned := make([]string, 0, len(decoded.Alternatives))
	seen := map[string]bool{}
	for _, item := range decoded.Alternatives {
		value := strings.TrimSpace(item)
		if value == "" {
			continue
		}
		if r := []rune(value); len(r) > 60 {
			value = strings.TrimRight(string(r[:60]), " ")
		}
		key := strings.ToLower(value)
		if seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, value)
		if len(cleaned) >= 5 {
			break
		}
	}
	return cleaned
}

var (
	removeQtyUnitRE = regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s*(шт|штук|кг|уп|упаков\p{L}*|кор|короб\p{L}*|рол|рул|рулон|комплект|м|пог\.м)(?:$|[^\p{L}\p{N}_])`)
	removeDashQtyRE = regexp.MustCompile(`(?i)[-–—]\s*\d+\s*(рол|рул|рулон|уп|кор|шт|штук)(?:$|[^\p{L}\p{N}_])`)
	manifestSpaceRE = regexp.MustCompile(`\s+`)
)

var narrowBlacklist = []string{"удален", "удаленные", "устарел", "устарев", "наименован", "test", "cat"}

// NarrowResult is C9's Narrow outcome.
type NarrowResult struct {
	CategoryIDs []int64
	Confidence  float64
	Reason      string
}

const narrowPrompt = "Выбери до 5 наиболее релевантных категорий для запроса. " +
	"Выбирай category_ids только из списка ids. Если не уверен — верни []. " +
	`Ответь строго JSON: {"category_ids":[1,2],"confidence":0.0,"reason":"..."}.`

type narrowContextItem struct {
	ID       int64    `json:"id"`
	Path     string   `json:"path"`
	Count    int      `json:"count"`
	Examples []string `json:"examples"`
}

type narrowLLMResponse struct {
	CategoryIDs []json.Number `json:"category_ids"`
	Confidence  float64       `json:"confidence"`
	Reason      string        `json:"reason"`
}

// Narrow filters the (cached) category manifest to eligible categories,
// asks the LLM to pick up to 5 ids from that list, and rejects the whole
// response as parse_failed if it names any id outside the supplied set.
func (s *Service) Narrow(ctx context.Context, text string) NarrowResult {
	if !s.Available() {
		return NarrowResult{Reason: "llm_disabled"}
	}

	manifest, err := Manifest(ctx, s.db, s.cache)
	if err != nil {
		logrus.WithError(err).Warn("category manifest load failed")
		return NarrowResult{Reason: "llm_failed"}
	}

	filtered := filterManifest(manifest)
	sort.SliceStable(filtered, func(i, j int) bool { return filtered[i].CountDirect > filtered[j].CountDirect })
	if len(filtered) > 150 {
		filtered = filtered[:150]
	}

	contextItems := make([]narrowContextItem, 0, len(filtered))
	allowed := map[int64]bool{}
	for _, item := range filtered {
		examples := item.Examples
		if len(examples) > 3 {
			examples = examples[:3]
		}
		contextItems = append(contextItems, narrowContextItem{
			ID: item.CategoryID, Path: item.Path, Count: item.CountDirect, Examples: examples,
		})
		allowed[item.CategoryID] = true
	}

	userPayload, err := json.Marshal(map[string]any{
		"query":      normalizeForNarrow(text),
		"categories": contextItems,
	})
	if err != nil {
		return NarrowResult{Reason: "llm_failed"}
	}

	raw, err := s.chat(ctx, narrowPrompt, string(userPayload), 0.2)
	if err != nil {
		logrus.WithError(err).Info("llm category narrow failed")
		return NarrowResult{Reason: "llm_failed"}
	}

	var decoded narrowLLMResponse
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return NarrowResult{Reason: "parse_failed"}
	}

	cleaned := make([]int64, 0, len(decoded.CategoryIDs))
	seen := map[int64]bool{}
	for _, v := range decoded.CategoryIDs {
		id, err := strconv.ParseInt(v.String(), 10, 64)
		if err != nil || !allowed[id] {
			return NarrowResult{Reason: "parse_failed"}
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		cleaned = append(cleaned, id)
		if len(cleaned) >= 5 {
			break
		}
	}

	return NarrowResult{CategoryIDs: cleaned, Confidence: decoded.Confidence, Reason: decoded.Reason}
}

func filterManifest(manifest []CategoryManifestEntry) []CategoryManifestEntry {
	out := make([]CategoryManifestEntry, 0, len(manifest))
	for _, item := range manifest {
		title := strings.ToLower(item.Title)
		path := strings.ToLower(item.Path)
		blacklisted := false
		for _, token := range narrowBlacklist {
			if strings.Contains(title, token) || strings.Contains(path, token) {
				blacklisted = true
				break
			}
		}
		if blacklisted || item.CountDirect <= 0 {
			continue
		}
		examples := make([]string, 0, len(item.Examples))
		for _, ex := range item.Examples {
			if len([]rune(ex)) >= 2 && !isAllDigits(ex) {
				examples = append(examples, ex)
			}
		}
		if len(examples) == 0 {
			continue
		}
		item.Examples = examples
		out = append(out, item)
	}
	return out
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func normalizeForNarrow(text string) string {
	cleaned := strings.ToLower(text)
	cleaned = removeDashQtyRE.ReplaceAllString(cleaned, "")
	cleaned = removeQtyUnitRE.ReplaceAllString(cleaned, "")
	return strings.TrimSpace(manifestSpaceRE.ReplaceAllString(cleaned, " "))
}

// RerankCandidate is one candidate product offered to the reranker.
type RerankCandidate struct {
	ID       int64
	Title    string
	Category string
	Price    float64
	StockQty int
}

// RerankHit is one reranked result.
type RerankHit struct {
	ProductID int64
	Score     float64
	Reason    string
}

const rerankSystemPrompt = "Ты помощник по подбору товаров."

type rerankPayloadCandidate struct {
	ProductID int64   `json:"product_id"`
	Title     string  `json:"title"`
	Category  string  `json:"category"`
	Price     float64 `json:"price"`
	Stock     int     `json:"stock"`
}

type rerankLLMResponse struct {
	Best []struct {
		ProductID int64   `json:"product_id"`
		Score     float64 `json:"score"`
		Reason    string  `json:"reason"`
	} `json:"best"`
}

// Rerank reorders candidates by LLM-assigned relevance. Per the degrade
// contract it returns empty when there are fewer than 2 candidates or the
// call fails or yields unparseable JSON.
func (s *Service) Rerank(ctx context.Context, query string, candidates []RerankCandidate, attrs map[string]string) []RerankHit {
	if len(candidates) < 2 || !s.Available() {
		return nil
	}

	payloadCandidates := make([]rerankPayloadCandidate, 0, len(candidates))
	for _, c := range candidates {
		payloadCandidates = append(payloadCandidates, rerankPayloadCandidate{
			ProductID: c.ID, Title: c.Title, Category: c.Category, Price: c.Price, Stock: c.StockQty,
		})
	}

	userPrompt, err := json.Marshal(map[string]any{
		"query":      query,
		"attrs":      attrs,
		"candidates": payloadCandidates,
	})
	if err != nil {
		return nil
	}

	raw, err := s.chat(ctx, rerankSystemPrompt, string(userPrompt), 0.1)
	if err != nil {
		logrus.WithError(err).Info("llm rerank failed")
		return nil
	}

	snippet := extractJSONObject(raw)
	if snippet == "" {
		return nil
	}

	var decoded rerankLLMResponse
	if err := json.Unmarshal([]byte(snippet), &decoded); err != nil {
		return nil
	}

	hits := make([]RerankHit, 0, len(decoded.Best))
	seen := map[int64]bool{}
	for _, b := range decoded.Best {
		if seen[b.ProductID] {
			continue
		}
		seen[b.ProductID] = true
		hits = append(hits, RerankHit{ProductID: b.ProductID, Score: b.Score, Reason: b.Reason})
		if len(hits) >= 5 {
			break
		}
	}
	return hits
}

func extractJSONObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return ""
	}
	depth := 0
	for i := start; i < len(text); i++ {
		switch text[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
