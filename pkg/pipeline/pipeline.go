// Package pipeline implements the orchestrator (C12): it sequences C1–C11
// into the staged retrieval engine described by spec.md §4.10, producing a
// structured trace of every decision alongside the final result set.
//
// Grounded on _examples/original_source/app/services/search_pipeline.py
// (attempt-query construction, stage ordering, trace shape, terminal
// decision state machine).
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/wholesale-bot/resolver/pkg/catalog"
	"github.com/wholesale-bot/resolver/pkg/clarify"
	"github.com/wholesale-bot/resolver/pkg/history"
	"github.com/wholesale-bot/resolver/pkg/llmaug"
	"github.com/wholesale-bot/resolver/pkg/models"
	"github.com/wholesale-bot/resolver/pkg/normalize"
	"github.com/wholesale-bot/resolver/pkg/orderparser"
	"github.com/wholesale-bot/resolver/pkg/synonym"
)

// Outcome is the terminal decision state machine of spec.md §4.10, modeled
// as a distinct type rather than a bare string.
type Outcome string

const (
	OutcomeAliasOK            Outcome = "alias_ok"
	OutcomeHistoryOK          Outcome = "history_ok"
	OutcomeLocalOK            Outcome = "local_ok"
	OutcomeLLMRewriteOK       Outcome = "llm_rewrite_ok"
	OutcomeLLMOK              Outcome = "llm_ok"
	OutcomeLLMNarrowOK        Outcome = "llm_narrow_ok"
	OutcomeNeedsClarification Outcome = "needs_clarification"
	OutcomeNoMatch            Outcome = "no_match"
)

const (
	headSuggestionLimit      = 60
	facetTriggerSize         = 30
	maxFacetValues           = 30
	rerankMinCandidates      = 2
	rerankMaxCandidates      = 30
	maxHistoryCandidateCount = 3000
)

// Orchestrator wires every C1–C11 collaborator together.
type Orchestrator struct {
	DB       *sql.DB
	Orgs     OrgResolver
	Products ProductLister
	Aliases  AliasStore
	Synonyms SynonymTable
	History  HistoryStats
	Catalog  CatalogIndex
	LLM      *llmaug.Service
}

// OrgResolver is the C1 subset the orchestrator needs.
type OrgResolver interface {
	ResolveOrgForUser(ctx context.Context, userID int64) (int64, error)
}

// ProductLister is the C2 subset the orchestrator needs.
type ProductLister interface {
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Product, error)
}

// AliasStore is the C4 subset the orchestrator needs.
type AliasStore interface {
	FindCandidates(ctx context.Context, orgID int64, phrase string, limit int) ([]int64, error)
}

// SynonymTable is the C5 subset the orchestrator needs.
type SynonymTable interface {
	GetMap(ctx context.Context, orgID *int64) (map[string]string, error)
}

// HistoryStats is the C6/C7 subset the orchestrator needs.
type HistoryStats interface {
	Score(ctx context.Context, orgID int64, queryCore string, limit int) ([]history.Scored, error)
	CandidateIDs(ctx context.Context, orgID int64, limit int) ([]int64, error)
}

// CatalogIndex is the C8 subset the orchestrator needs.
type CatalogIndex interface {
	Search(ctx context.Context, query string, limit int, categoryIDs, productIDs []int64) ([]catalog.Result, error)
}

// Options tunes one pipeline invocation.
type Options struct {
	OrgID            *int64
	UserID           *int64
	Limit            int
	EnableLLMNarrow  bool
	EnableLLMRewrite bool
	EnableRerank     bool
	ClarifyOffset    int
}

// CandidateResult is one ranked product in the response, ready for the wire.
type CandidateResult struct {
	ID         int64  `json:"id"`
	SKU        string `json:"sku"`
	TitleRu    string `json:"title_ru"`
	Price      float64 `json:"price"`
	StockQty   int    `json:"stock_qty"`
	Score      float64 `json:"score"`
	CategoryID *int64 `json:"category_id,omitempty"`
}

// Stage is one ordered trace entry.
type Stage struct {
	Name                  string   `json:"name"`
	QueryUsed             string   `json:"query_used"`
	TokensUsed            []string `json:"tokens_used"`
	NumbersUsed           []int    `json:"numbers_used"`
	ProductIDsFilterCount *int     `json:"product_ids_filter_count,omitempty"`
	CategoryIDsFilter     []int64  `json:"category_ids_filter"`
	CandidatesBefore      int      `json:"candidates_before"`
	CandidatesAfter       int      `json:"candidates_after"`
	Top5Titles            []string `json:"top5_titles"`
	Notes                 string   `json:"notes"`
}

// AttemptLog records one attempt-query try within a stage.
type AttemptLog struct {
	QueryUsed       string `json:"query_used"`
	CandidatesFound int    `json:"candidates_found"`
	Note            string `json:"note"`
}

// TraceInput is the input echo block of the trace.
type TraceInput struct {
	RawText        string             `json:"raw_text"`
	NormalizedText string             `json:"normalized_text"`
	ParsedItems    []*orderparser.Item `json:"parsed_items"`
	OrgID          *int64             `json:"org_id,omitempty"`
	UserID         *int64             `json:"user_id,omitempty"`
}

// Trace is the full structured trace of one pipeline invocation.
type Trace struct {
	Input                    TraceInput   `json:"input"`
	Stages                   []Stage      `json:"stages"`
	HistoryAttempts          []AttemptLog `json:"history_attempts"`
	LocalAttempts            []AttemptLog `json:"local_attempts"`
	CandidatesCountBeforeLLM int          `json:"candidates_count_before_llm"`
	LLMCalled                bool         `json:"llm_called"`
	LLMStage                 string       `json:"llm_stage"`
	SynonymRetryAttempted    bool         `json:"synonym_retry_attempted"`
	SynonymMap               map[string]string `json:"synonym_map"`
	QueryRetry               string       `json:"query_retry,omitempty"`
	RetryResultsCount        int          `json:"retry_results_count"`
	Items                    []*ItemOutcome `json:"items,omitempty"`
}

// Decision is the decision payload of one pipeline invocation.
type Decision struct {
	Outcome                  Outcome                `json:"decision"`
	ParsedItems              []*orderparser.Item    `json:"parsed_items"`
	OriginalQuery            string                 `json:"original_query"`
	Alternatives             []string               `json:"alternatives"`
	UsedAlternative          string                 `json:"used_alternative,omitempty"`
	CandidatesCountFinal     int                    `json:"candidates_count_final"`
	HistoryOrgID             *int64                 `json:"history_org_id,omitempty"`
	HistoryCandidatesCount   int                    `json:"history_candidates_count"`
	HistoryUsed              bool                   `json:"history_used"`
	HistoryQueryUsed         string                 `json:"history_query_used,omitempty"`
	HistoryCandidatesFound   int                    `json:"history_candidates_found"`
	HistoryAttributeConflict bool                   `json:"history_attribute_conflict"`
	AliasCandidatesCount     int                    `json:"alias_candidates_count"`
	AliasUsed                bool                   `json:"alias_used"`
	AliasQueryUsed           string                 `json:"alias_query_used,omitempty"`
	AliasCandidatesFound     int                    `json:"alias_candidates_found"`
	CategoryIDs              []int64                `json:"category_ids"`
	LLMNarrowConfidence      *float64               `json:"llm_narrow_confidence,omitempty"`
	LLMNarrowReason          string                 `json:"llm_narrow_reason,omitempty"`
	NarrowedQuery            string                 `json:"narrowed_query,omitempty"`
	RerankBestIDs            []int64                `json:"rerank_best_ids"`
	RerankTopScore           *float64               `json:"rerank_top_score,omitempty"`
	RerankUsed               bool                   `json:"rerank_used"`
	CandidatesCountBeforeLLM int                    `json:"candidates_count_before_llm"`
	LLMCalled                bool                   `json:"llm_called"`
	LLMStage                 string                 `json:"llm_stage"`
	SynonymRetryAttempted    bool                   `json:"synonym_retry_attempted"`
	SynonymMap               map[string]string      `json:"synonym_map"`
	QueryRetry               string                 `json:"query_retry,omitempty"`
	RetryResultsCount        int                    `json:"retry_results_count"`
	Clarification            *clarify.Clarification `json:"clarification,omitempty"`
	MultiItem                bool                   `json:"multi_item,omitempty"`
}

// Result is the full {results, decision, trace} response shape of spec §6.
type Result struct {
	Results  []CandidateResult `json:"results"`
	Decision Decision          `json:"decision"`
	Trace    *Trace            `json:"trace,omitempty"`
	Items    []*ItemOutcome    `json:"items,omitempty"`
}

// ItemOutcome is one multi-item sub-pipeline's result.
type ItemOutcome struct {
	Item      *orderparser.Item `json:"item"`
	QueryCore string            `json:"query_core"`
	Results   []CandidateResult `json:"results"`
	Decision  Decision          `json:"decision"`
	Trace     *Trace            `json:"trace,omitempty"`
}

// RunSearchPipeline executes one pipeline invocation for text against o,
// the package-level entry point named in spec §6.
func RunSearchPipeline(ctx context.Context, o *Orchestrator, text string, opts Options) Result {
	return o.Run(ctx, text, opts)
}

// Run executes one pipeline invocation for text, recursing per item when
// the order parser finds more than one.
func (o *Orchestrator) Run(ctx context.Context, text string, opts Options) Result {
	if opts.Limit <= 0 {
		opts.Limit = 5
	}

	normalizedText := normalize.Text(text)
	parsedItems := orderparser.Parse(normalizedText)
	if len(parsedItems) > 1 {
		return o.runMultiItem(ctx, normalizedText, parsedItems, opts)
	}

	return o.runSingle(ctx, normalizedText, parsedItems, opts)
}

func (o *Orchestrator) runMultiItem(ctx context.Context, text string, items []*orderparser.Item, opts Options) Result {
	var outcomes []*ItemOutcome
	for _, item := range items {
		queryCore := strings.TrimSpace(firstNonEmpty(item.QueryCore, item.Query, item.Raw))
		if queryCore == "" {
			continue
		}
		sub := o.runSingle(ctx, queryCore, orderparser.Parse(queryCore), opts)
		outcomes = append(outcomes, &ItemOutcome{
			Item: item, QueryCore: queryCore,
			Results: sub.Results, Decision: sub.Decision, Trace: sub.Trace,
		})
	}

	if len(outcomes) == 0 {
		return Result{Decision: Decision{Outcome: OutcomeNoMatch, MultiItem: true}}
	}
	primary := outcomes[0]
	decision := primary.Decision
	decision.MultiItem = true
	return Result{Results: primary.Results, Decision: decision, Trace: primary.Trace, Items: outcomes}
}

func (o *Orchestrator) runSingle(ctx context.Context, text string, parsedItems []*orderparser.Item, opts Options) Result {
	searchQuery := cleanSearchQuery(parsedItems, text)
	normalizedText := catalog.NormalizeQueryText(firstNonEmpty(searchQuery, text))

	historyOrgID := o.resolveOrgID(ctx, opts)

	aliasMap := o.loadAliasMap(ctx, historyOrgID)
	canonicalQuery, appliedAliases := synonym.NormalizeQuery(firstNonEmpty(searchQuery, text), aliasMap)
	if canonicalQuery != "" {
		searchQuery = canonicalQuery
		normalizedText = catalog.NormalizeQueryText(firstNonEmpty(searchQuery, text))
	}
	traceTokens, traceNumbers := extractTraceTokensNumbers(firstNonEmpty(searchQuery, text))
	attemptQueries := buildAttemptQueries(firstNonEmpty(searchQuery, text))

	synonymMap := map[string]string{}
	for k, v := range appliedAliases {
		synonymMap[k] = v
	}

	var candidates []catalog.Result
	stages := map[string]Stage{}

	// Stage 1 — Alias.
	aliasBefore := len(candidates)
	aliasProductIDs, aliasNote, aliasUsed, aliasQueryUsed, aliasCandidatesFound := o.runAliasStage(ctx, historyOrgID, searchQuery, opts.Limit, &candidates)
	stages["alias"] = Stage{
		Name: "alias", QueryUsed: searchQuery, TokensUsed: traceTokens, NumbersUsed: traceNumbers,
		ProductIDsFilterCount: intPtr(len(aliasProductIDs)), CategoryIDsFilter: []int64{},
		CandidatesBefore: aliasBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: aliasNote,
	}

	// Stage 2 — History.
	historyBefore := len(candidates)
	var historyAttempts []AttemptLog
	var historyUsed bool
	var historyQueryUsed string
	var historyCandidatesFound int
	var historyAttributeConflict bool
	historyCandidatesCount := 0
	historyNote := "skipped: already have candidates"
	if historyOrgID != nil && len(candidates) == 0 {
		if ids, err := o.History.CandidateIDs(ctx, *historyOrgID, maxHistoryCandidateCount); err != nil {
			logrus.WithError(err).Info("history candidate count lookup failed")
		} else {
			historyCandidatesCount = len(ids)
		}
		historyNote = "history_soft_miss -> continue"
		for _, attempt := range attemptQueries {
			scored, err := o.History.Score(ctx, *historyOrgID, attempt, opts.Limit)
			found := 0
			note := "search returned 0"
			if err != nil {
				logrus.WithError(err).Info("history scoring failed, treating as zero candidates")
			} else {
				found = len(scored)
			}
			if found > 0 {
				note = "hit"
			}
			historyAttempts = append(historyAttempts, AttemptLog{QueryUsed: attempt, CandidatesFound: found, Note: note})
			if found > 0 {
				candidates = scoredToResults(scored)
				historyUsed = true
				historyQueryUsed = attempt
				historyCandidatesFound = len(candidates)
				historyAttributeConflict = anyAttributeConflict(scored)
				historyNote = "history scored retrieval matched"
				break
			}
		}
		if !historyUsed {
			historyNote = "history_soft_miss -> continue"
		}
	} else if historyOrgID == nil {
		historyNote = "skipped: org_id unresolved"
	}
	historyStage := Stage{
		Name: "history", QueryUsed: firstNonEmpty(historyQueryUsed, searchQuery),
		CandidatesBefore: historyBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: historyNote,
		CategoryIDsFilter: []int64{},
	}
	historyStage.TokensUsed, historyStage.NumbersUsed = extractTraceTokensNumbers(firstNonEmpty(historyQueryUsed, searchQuery))
	stages["history"] = historyStage

	// Stage 3 — Local.
	localBefore := len(candidates)
	var localAttempts []AttemptLog
	var localAttemptQueryUsed string
	localNote := "skipped: already have candidates"
	if len(parsedItems) > 0 && len(candidates) == 0 {
		for _, attempt := range attemptQueries {
			results, err := o.Catalog.Search(ctx, attempt, opts.Limit, nil, nil)
			if err != nil {
				logrus.WithError(err).Info("local catalog search failed, treating as zero candidates")
				results = nil
			}
			if len(results) > 0 {
				candidates = results
				localAttemptQueryUsed = attempt
				localNote = "local search matched"
				localAttempts = append(localAttempts, AttemptLog{QueryUsed: attempt, CandidatesFound: len(results), Note: "hit"})
				break
			}
			localAttempts = append(localAttempts, AttemptLog{QueryUsed: attempt, CandidatesFound: 0, Note: "search returned 0"})
		}
		if len(candidates) == 0 {
			localNote = "local search returned 0"
		}
	} else if len(parsedItems) == 0 {
		localNote = "skipped: parse returned empty"
	}
	localStage := Stage{
		Name: "local", QueryUsed: firstNonEmpty(localAttemptQueryUsed, searchQuery),
		CandidatesBefore: localBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: localNote,
		CategoryIDsFilter: []int64{},
	}
	localStage.TokensUsed, localStage.NumbersUsed = extractTraceTokensNumbers(firstNonEmpty(localAttemptQueryUsed, searchQuery))
	stages["local"] = localStage

	candidatesCount := len(candidates)
	outcome := OutcomeNoMatch
	switch {
	case aliasUsed:
		outcome = OutcomeAliasOK
	case historyUsed:
		outcome = OutcomeHistoryOK
	case candidatesCount > 0:
		outcome = OutcomeLocalOK
	}

	candidatesCountBeforeLLM := len(candidates)
	llmCalled := false
	llmStage := "none"

	// Stage 4 — LLM rewrite.
	llmRewriteBefore := len(candidates)
	llmRewriteNote := "skipped: already have candidates"
	llmRewriteQuery := searchQuery
	if len(candidates) == 0 && opts.EnableLLMRewrite && o.LLM != nil && o.LLM.Available() {
		llmCalled = true
		llmStage = "rewrite"
		rewritten := o.LLM.Rewrite(ctx, firstNonEmpty(searchQuery, text))
		llmRewriteQuery = rewritten
		if rewritten != "" && rewritten != firstNonEmpty(searchQuery, text) {
			results, err := o.Catalog.Search(ctx, rewritten, opts.Limit, nil, nil)
			if err != nil {
				logrus.WithError(err).Info("rewrite retry search failed")
			}
			if len(results) > 0 {
				candidates = results
				candidatesCount = len(candidates)
				outcome = OutcomeLLMRewriteOK
				llmRewriteNote = "rewrite matched"
			} else {
				llmRewriteNote = "rewrite returned 0"
			}
		} else {
			llmRewriteNote = "rewrite unchanged"
		}
	} else if len(candidates) == 0 {
		if !opts.EnableLLMRewrite {
			llmRewriteNote = "skipped: llm_rewrite_disabled"
		} else {
			llmRewriteNote = "skipped: llm disabled"
		}
	}
	llmRewriteStage := Stage{
		Name: "llm_rewrite", QueryUsed: llmRewriteQuery,
		CandidatesBefore: llmRewriteBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: llmRewriteNote,
		CategoryIDsFilter: []int64{},
	}
	llmRewriteStage.TokensUsed, llmRewriteStage.NumbersUsed = extractTraceTokensNumbers(llmRewriteQuery)
	stages["llm_rewrite"] = llmRewriteStage

	// Stage 5 — Synonym retry.
	synonymBefore := len(candidates)
	synonymNote := "skipped: already have candidates"
	synonymRetryAttempted := false
	var synonymRetryQuery string
	retryResultsCount := 0
	if len(candidates) == 0 {
		synonymRetryAttempted = true
		retryQuery, retryAliases := synonym.NormalizeQuery(firstNonEmpty(searchQuery, text), aliasMap)
		synonymRetryQuery = retryQuery
		for k, v := range retryAliases {
			synonymMap[k] = v
		}
		if len(synonymMap) > 0 && retryQuery != "" && retryQuery != firstNonEmpty(searchQuery, text) {
			results, err := o.Catalog.Search(ctx, retryQuery, opts.Limit, nil, nil)
			if err != nil {
				logrus.WithError(err).Info("synonym retry search failed")
			}
			retryResultsCount = len(results)
			if len(results) > 0 {
				candidates = results
				synonymNote = "synonym retry matched"
			} else {
				synonymNote = "synonym retry returned 0"
			}
		} else {
			synonymNote = "synonym retry no changes"
		}
	}
	synonymStage := Stage{
		Name: "synonym_retry", QueryUsed: firstNonEmpty(synonymRetryQuery, searchQuery),
		CandidatesBefore: synonymBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: synonymNote,
		CategoryIDsFilter: []int64{},
	}
	synonymStage.TokensUsed, synonymStage.NumbersUsed = extractTraceTokensNumbers(firstNonEmpty(synonymRetryQuery, searchQuery))
	stages["synonym_retry"] = synonymStage

	// Clarification gate.
	if clarification, reason, ok := o.clarificationGate(ctx, historyOrgID, searchQuery, text, candidates, opts); ok {
		llmNarrowReason := reason
		if len(candidates) == 0 {
			if !opts.EnableLLMNarrow {
				llmNarrowReason = "llm_narrow_disabled"
			} else if o.LLM == nil || !o.LLM.Available() {
				llmNarrowReason = "llm_disabled"
			}
		}
		decision := Decision{
			Outcome: OutcomeNeedsClarification, ParsedItems: parsedItems, OriginalQuery: firstNonEmpty(searchQuery, text),
			Alternatives: []string{}, CandidatesCountFinal: len(candidates),
			HistoryOrgID: historyOrgID, HistoryCandidatesCount: historyCandidatesCount, HistoryUsed: historyUsed,
			HistoryQueryUsed: historyQueryUsed, HistoryCandidatesFound: historyCandidatesFound,
			HistoryAttributeConflict: historyAttributeConflict,
			AliasCandidatesCount: len(aliasProductIDs), AliasUsed: aliasUsed, AliasQueryUsed: aliasQueryUsed,
			AliasCandidatesFound: aliasCandidatesFound, CategoryIDs: []int64{}, NarrowedQuery: searchQuery,
			LLMNarrowReason: llmNarrowReason,
			RerankBestIDs: []int64{}, LLMCalled: false, LLMStage: "none",
			SynonymRetryAttempted: synonymRetryAttempted, SynonymMap: synonymMap,
			QueryRetry: firstNonEmpty(synonymRetryQuery, searchQuery), RetryResultsCount: retryResultsCount,
			Clarification: &clarification,
		}
		trace := &Trace{
			Input: TraceInput{RawText: text, NormalizedText: normalizedText, ParsedItems: parsedItems, OrgID: historyOrgID, UserID: opts.UserID},
			HistoryAttempts: historyAttempts, LocalAttempts: localAttempts,
			CandidatesCountBeforeLLM: candidatesCountBeforeLLM, LLMCalled: false, LLMStage: "none",
			SynonymRetryAttempted: synonymRetryAttempted, SynonymMap: synonymMap,
			QueryRetry: firstNonEmpty(synonymRetryQuery, searchQuery), RetryResultsCount: retryResultsCount,
			Stages: orderedStages(stages, "history", "alias", "local", "synonym_retry"),
		}
		return Result{Results: toCandidateResults(candidates, opts.Limit), Decision: decision, Trace: trace}
	}

	var alternatives []string
	var usedAlternative string
	var categoryIDs []int64
	var llmNarrowConfidence *float64
	var llmNarrowReason string
	var narrowedQuery string

	// Stage 6 — LLM normalize + narrow.
	llmBefore := len(candidates)
	llmNote := "skipped: already have candidates"
	llmQueryUsed := searchQuery
	if len(candidates) == 0 && len(parsedItems) > 0 && opts.EnableLLMNarrow && o.LLM != nil && o.LLM.Available() {
		llmCalled = true
		llmStage = "normalize"
		alternatives = o.LLM.Normalize(ctx, firstNonEmpty(searchQuery, text))
		for _, alt := range alternatives {
			retry, err := o.Catalog.Search(ctx, alt, opts.Limit, nil, nil)
			if err != nil {
				logrus.WithError(err).Info("normalize alternative search failed")
				continue
			}
			if len(retry) > 0 {
				candidates = retry
				candidatesCount = len(candidates)
				outcome = OutcomeLLMOK
				usedAlternative = alt
				llmQueryUsed = alt
				llmNote = "llm alternative matched"
				break
			}
		}
		if len(candidates) == 0 {
			narrowedQuery = firstNonEmpty(searchQuery, text)
			llmStage = "narrow"
			narrowResult := o.LLM.Narrow(ctx, narrowedQuery)
			categoryIDs = narrowResult.CategoryIDs
			confidence := narrowResult.Confidence
			llmNarrowConfidence = &confidence
			llmNarrowReason = narrowResult.Reason
			if len(categoryIDs) > 0 {
				retry, err := o.Catalog.Search(ctx, narrowedQuery, opts.Limit, categoryIDs, nil)
				if err != nil {
					logrus.WithError(err).Info("narrow retry search failed")
				}
				if len(retry) > 0 {
					candidates = retry
					candidatesCount = len(candidates)
					outcome = OutcomeLLMNarrowOK
					llmNote = "llm narrow categories matched"
				} else {
					for _, alt := range alternatives {
						retry, err := o.Catalog.Search(ctx, alt, opts.Limit, categoryIDs, nil)
						if err != nil {
							continue
						}
						if len(retry) > 0 {
							candidates = retry
							candidatesCount = len(candidates)
							outcome = OutcomeLLMNarrowOK
							usedAlternative = alt
							llmQueryUsed = alt
							llmNote = "llm narrow + alternative matched"
							break
						}
					}
					if len(candidates) == 0 {
						outcome = OutcomeNoMatch
						llmNote = "llm narrow categories returned 0"
					}
				}
			} else {
				outcome = OutcomeNoMatch
				llmNote = "llm narrow returned empty categories"
			}
		}
	} else if len(candidates) == 0 {
		outcome = OutcomeNoMatch
		llmNarrowReason = "llm_disabled"
		llmNote = "skipped: llm disabled"
	}
	if len(candidates) == 0 {
		outcome = OutcomeNoMatch
		if !opts.EnableLLMNarrow {
			llmNarrowReason = "llm_narrow_disabled"
			llmNote = "skipped: llm_narrow_disabled"
		} else if o.LLM == nil || !o.LLM.Available() {
			llmNarrowReason = "llm_disabled"
			llmNote = "skipped: llm disabled"
		}
	}
	llmNarrowStage := Stage{
		Name: "llm_narrow", QueryUsed: llmQueryUsed, CategoryIDsFilter: categoryIDs,
		CandidatesBefore: llmBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: llmNote,
	}
	llmNarrowStage.TokensUsed, llmNarrowStage.NumbersUsed = extractTraceTokensNumbers(llmQueryUsed)
	stages["llm_narrow"] = llmNarrowStage

	// Stage 7 — Rerank.
	rerankUsed := false
	var rerankBestIDs []int64
	var rerankTopScore *float64
	rerankBefore := len(candidates)
	rerankNote := "skipped: rerank disabled"
	if opts.EnableRerank {
		rerankNote = "skipped: less than 2 candidates or llm disabled"
	}
	if opts.EnableRerank && len(candidates) >= rerankMinCandidates && len(candidates) <= rerankMaxCandidates && o.LLM != nil && o.LLM.Available() {
		llmCalled = true
		llmStage = "rerank"
		rerankCandidates := make([]llmaug.RerankCandidate, len(candidates))
		for i, c := range candidates {
			rerankCandidates[i] = llmaug.RerankCandidate{ID: c.ID, Title: c.TitleRu, Price: c.Price, StockQty: c.StockQty}
		}
		var attrs map[string]string
		if len(parsedItems) > 0 {
			attrs = parsedItems[0].Attributes
		}
		best := o.LLM.Rerank(ctx, firstNonEmpty(searchQuery, text), rerankCandidates, attrs)
		if len(best) > 0 {
			rerankUsed = true
			scoreByID := map[int64]float64{}
			for _, hit := range best {
				rerankBestIDs = append(rerankBestIDs, hit.ProductID)
				scoreByID[hit.ProductID] = hit.Score
			}
			top := best[0].Score
			rerankTopScore = &top
			sortByScore(candidates, scoreByID)
			rerankNote = "rerank applied"
		} else {
			rerankNote = "rerank returned empty best list"
		}
	}
	rerankStage := Stage{
		Name: "rerank", QueryUsed: searchQuery, TokensUsed: traceTokens, NumbersUsed: traceNumbers,
		CandidatesBefore: rerankBefore, CandidatesAfter: len(candidates), Top5Titles: top5Titles(candidates), Notes: rerankNote,
		CategoryIDsFilter: []int64{},
	}
	stages["rerank"] = rerankStage

	if len(candidates) == 0 {
		outcome = OutcomeNoMatch
	}

	results := o.attachCategoryIDs(ctx, candidates, opts.Limit)

	logrus.WithFields(logrus.Fields{
		"decision": outcome, "history_org_id": historyOrgID, "alias_used": aliasUsed, "history_used": historyUsed,
	}).Info("search pipeline decision")

	decision := Decision{
		Outcome: outcome, ParsedItems: parsedItems, OriginalQuery: firstNonEmpty(searchQuery, text),
		Alternatives: alternatives, UsedAlternative: usedAlternative, CandidatesCountFinal: len(candidates),
		HistoryOrgID: historyOrgID, HistoryCandidatesCount: historyCandidatesCount, HistoryUsed: historyUsed,
		HistoryQueryUsed: historyQueryUsed, HistoryCandidatesFound: historyCandidatesFound,
		HistoryAttributeConflict: historyAttributeConflict,
		AliasCandidatesCount: len(aliasProductIDs), AliasUsed: aliasUsed, AliasQueryUsed: aliasQueryUsed,
		AliasCandidatesFound: aliasCandidatesFound, CategoryIDs: categoryIDs,
		LLMNarrowConfidence: llmNarrowConfidence, LLMNarrowReason: llmNarrowReason, NarrowedQuery: narrowedQuery,
		RerankBestIDs: rerankBestIDs, RerankTopScore: rerankTopScore, RerankUsed: rerankUsed,
		CandidatesCountBeforeLLM: candidatesCountBeforeLLM, LLMCalled: llmCalled, LLMStage: llmStage,
		SynonymRetryAttempted: synonymRetryAttempted, SynonymMap: synonymMap,
		QueryRetry: firstNonEmpty(synonymRetryQuery, searchQuery), RetryResultsCount: retryResultsCount,
	}

	trace := &Trace{
		Input: TraceInput{RawText: text, NormalizedText: normalizedText, ParsedItems: parsedItems, OrgID: historyOrgID, UserID: opts.UserID},
		HistoryAttempts: historyAttempts, LocalAttempts: localAttempts,
		CandidatesCountBeforeLLM: candidatesCountBeforeLLM, LLMCalled: llmCalled, LLMStage: llmStage,
		SynonymRetryAttempted: synonymRetryAttempted, SynonymMap: synonymMap,
		QueryRetry: firstNonEmpty(synonymRetryQuery, searchQuery), RetryResultsCount: retryResultsCount,
		Stages: orderedStages(stages, "history", "alias", "local", "synonym_retry", "llm_rewrite", "llm_narrow", "rerank"),
	}

	return Result{Results: results, Decision: decision, Trace: trace}
}

func (o *Orchestrator) runAliasStage(ctx context.Context, orgID *int64, searchQuery string, limit int, candidates *[]catalog.Result) (productIDs []int64, note string, used bool, queryUsed string, found int) {
	note = "skipped: org_id unresolved"
	if orgID == nil {
		return nil, note, false, "", 0
	}
	ids, err := o.Aliases.FindCandidates(ctx, *orgID, searchQuery, 5)
	if err != nil {
		logrus.WithError(err).Info("alias lookup failed, treating as zero candidates")
		return nil, "alias candidates not found", false, "", 0
	}
	if len(ids) == 0 {
		return nil, "alias candidates not found", false, "", 0
	}
	results, err := o.Catalog.Search(ctx, searchQuery, limit, nil, ids)
	if err != nil {
		logrus.WithError(err).Info("alias-scoped search failed")
		return ids, "alias product_ids найден, но search_products вернул 0", false, "", 0
	}
	if len(results) == 0 {
		return ids, "alias product_ids найден, но search_products вернул 0", false, "", 0
	}
	*candidates = results
	return ids, "alias product_ids matched", true, searchQuery, len(results)
}

func (o *Orchestrator) resolveOrgID(ctx context.Context, opts Options) *int64 {
	if opts.OrgID != nil {
		return opts.OrgID
	}
	if opts.UserID == nil {
		return nil
	}
	orgID, err := o.Orgs.ResolveOrgForUser(ctx, *opts.UserID)
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			logrus.WithError(err).Info("org membership lookup failed")
		}
		return nil
	}
	return &orgID
}

func (o *Orchestrator) loadAliasMap(ctx context.Context, orgID *int64) map[string]string {
	aliasMap, err := o.Synonyms.GetMap(ctx, orgID)
	if err != nil {
		logrus.WithError(err).Info("synonym map load failed, continuing with empty map")
		return map[string]string{}
	}
	return aliasMap
}

func (o *Orchestrator) clarificationGate(ctx context.Context, orgID *int64, searchQuery, text string, candidates []catalog.Result, opts Options) (clarify.Clarification, string, bool) {
	switch {
	case len(candidates) == 0:
		headToken := clarify.ExtractHeadToken(firstNonEmpty(searchQuery, text))
		var suggestions []clarify.Suggestion
		if orgID != nil && headToken != "" {
			found, err := clarify.HistorySuggestions(ctx, o.DB, *orgID, headToken, headSuggestionLimit)
			if err != nil {
				logrus.WithError(err).Info("history suggestion lookup failed")
			}
			suggestions = found
		}
		if len(suggestions) == 0 && headToken != "" {
			global, err := o.Catalog.Search(ctx, headToken, headSuggestionLimit, nil, nil)
			if err != nil {
				logrus.WithError(err).Info("global suggestion search failed")
			}
			for _, r := range global {
				if r.TitleRu != "" {
					suggestions = append(suggestions, clarify.Suggestion{ProductID: r.ID, Title: r.TitleRu})
				}
			}
		}
		built := clarify.BuildFromSuggestions("no_candidates", suggestions, opts.ClarifyOffset, 10)
		return built, "no_candidates", len(built.Options) > 0
	case len(candidates) > facetTriggerSize:
		facetCandidates := make([]clarify.Candidate, len(candidates))
		for i, c := range candidates {
			facetCandidates[i] = clarify.Candidate{ID: c.ID, TitleRu: c.TitleRu}
		}
		bucket, values := clarify.FacetSuggestions(facetCandidates)
		if bucket == "" {
			return clarify.Clarification{}, "", false
		}
		suggestions := make([]clarify.Suggestion, len(values))
		for i, v := range values {
			suggestions[i] = clarify.Suggestion{Title: v}
		}
		built := clarify.BuildFromSuggestions("conflict", suggestions, opts.ClarifyOffset, 10)
		return built, "conflict", len(built.Options) > 0
	default:
		return clarify.Clarification{}, "", false
	}
}

func (o *Orchestrator) attachCategoryIDs(ctx context.Context, candidates []catalog.Result, limit int) []CandidateResult {
	out := toCandidateResults(candidates, limit)
	var ids []int64
	for _, c := range out {
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return out
	}
	products, err := o.Products.ListByIDs(ctx, ids)
	if err != nil {
		logrus.WithError(err).Info("category id lookup failed")
		return out
	}
	byID := map[int64]*int64{}
	for _, p := range products {
		if p.CategoryID.Valid {
			v := p.CategoryID.Int64
			byID[p.ID] = &v
		}
	}
	for i := range out {
		out[i].CategoryID = byID[out[i].ID]
	}
	return out
}

func toCandidateResults(candidates []catalog.Result, limit int) []CandidateResult {
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]CandidateResult, len(candidates))
	for i, c := range candidates {
		out[i] = CandidateResult{ID: c.ID, SKU: c.SKU, TitleRu: c.TitleRu, Price: c.Price, StockQty: c.StockQty, Score: c.Score}
	}
	return out
}

func scoredToResults(scored []history.Scored) []catalog.Result {
	out := make([]catalog.Result, len(scored))
	for i, s := range scored {
		out[i] = catalog.Result{ID: s.ID, SKU: s.SKU, TitleRu: s.TitleRu, Price: s.Price, StockQty: s.StockQty, Score: s.Score}
	}
	return out
}

func anyAttributeConflict(scored []history.Scored) bool {
	for _, s := range scored {
		if s.AttributeConflict {
			return true
		}
	}
	return false
}

func sortByScore(candidates []catalog.Result, scoreByID map[int64]float64) {
	for i := 1; i < len(candidates); i++ {
		j := i
		for j > 0 {
			a, aok := scoreByID[candidates[j].ID]
			b, bok := scoreByID[candidates[j-1].ID]
			if !aok {
				a = -1
			}
			if !bok {
				b = -1
			}
			if a <= b {
				break
			}
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
			j--
		}
	}
}

func top5Titles(candidates []catalog.Result) []string {
	var out []string
	for i, c := range candidates {
		if i >= 5 {
			break
		}
		if c.TitleRu != "" {
			out = append(out, c.TitleRu)
		}
	}
	return out
}

func orderedStages(stages map[string]Stage, order ...string) []Stage {
	out := make([]Stage, 0, len(order))
	for _, name := range order {
		if s, ok := stages[name]; ok {
			out = append(out, s)
		}
	}
	return out
}

func intPtr(v int) *int { return &v }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// cleanSearchQuery picks the query the pipeline searches with: the first
// parsed item's query core if present, else the raw text.
func cleanSearchQuery(items []*orderparser.Item, text string) string {
	if len(items) > 0 {
		if q := strings.TrimSpace(items[0].Query); q != "" {
			return q
		}
	}
	return text
}

var tokenRE = regexp.MustCompile(`(?i)[a-zа-я0-9]+`)

func extractTraceTokensNumbers(query string) ([]string, []int) {
	tokens := tokenRE.FindAllString(strings.ToLower(query), -1)
	var numbers []int
	var words []string
	for _, t := range tokens {
		if n, ok := atoi(t); ok {
			numbers = append(numbers, n)
		} else {
			words = append(words, t)
		}
	}
	return words, numbers
}

func atoi(s string) (int, bool) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, len(s) > 0
}
