package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"rageval/internal/port"
)

// LLMJudge reranks by asking a generative model for a relevance
// judgment, one scoring prompt per candidate. Output is inherently
// nondeterministic; callers account for that via repeated runs, not by
// expecting identical orderings here.
type LLMJudge struct {
	llm     port.LLM
	timeout time.Duration
	workers int
}

// NewLLMJudge creates an LLM-judge reranker.
func NewLLMJudge(llm port.LLM, timeout time.Duration, workers int) *LLMJudge {
	return &LLMJudge{
		llm:     llm,
		timeout: timeout,
		workers: workers,
	}
}

func (r *LLMJudge) Rerank(ctx context.Context, query string, candidates []port.Candidate) (port.RerankResult, error) {
	if len(candidates) == 0 {
		return port.RerankResult{}, nil
	}

	scores, failed, calls, err := scoreCandidates(ctx, candidates, r.timeout, r.workers,
		func(cctx context.Context, c port.Candidate) (float64, error) {
			return r.judge(cctx, query, c.Text)
		})
	if err != nil {
		return port.RerankResult{}, fmt.Errorf("llm-judge rerank failed: %w", err)
	}

	return port.RerankResult{
		Ranked:        assemble(candidates, scores, failed),
		ProviderCalls: calls,
		ScoreFailures: countFailures(failed),
	}, nil
}

func (r *LLMJudge) Name() string {
	return "llm_judge"
}

type judgment struct {
	Score float64 `json:"score"`
}

// judge asks the model for a single relevance score in [0,1].
func (r *LLMJudge) judge(ctx context.Context, query, text string) (float64, error) {
	start := time.Now()

	response, err := r.llm.Generate(ctx, buildJudgePrompt(query, text))
	if err != nil {
		return 0, timeoutError("llm_judge", time.Since(start), err)
	}

	score, err := parseJudgment(response)
	if err != nil {
		return 0, err
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}

func buildJudgePrompt(query, text string) string {
	const maxChars = 1500
	if len(text) > maxChars {
		text = text[:maxChars] + "..."
	}

	var sb strings.Builder
	sb.WriteString("You are a relevance scoring system. Score the passage's relevance to the query.\n\n")
	sb.WriteString("Query: ")
	sb.WriteString(query)
	sb.WriteString("\n\nPassage:\n")
	sb.WriteString(text)
	sb.WriteString("\n\nScore the passage from 0.0 to 1.0 based on relevance to the query.\n")
	sb.WriteString(`Output ONLY valid JSON in this exact format: {"score": 0.7}` + "\n")
	sb.WriteString("Be strict: irrelevant passages score below 0.3, somewhat relevant 0.3-0.7, highly relevant above 0.7.\n")
	sb.WriteString("Output only JSON, no explanation:")
	return sb.String()
}

// parseJudgment extracts the score from a model response, tolerating
// markdown code fences and surrounding prose.
func parseJudgment(response string) (float64, error) {
	response = strings.TrimSpace(response)

	if idx := strings.Index(response, "```json"); idx != -1 {
		start := idx + 7
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	} else if idx := strings.Index(response, "```"); idx != -1 {
		start := idx + 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			response = response[start : start+end]
		}
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end < start {
		return 0, fmt.Errorf("no JSON object in judge response")
	}

	var j judgment
	if err := json.Unmarshal([]byte(response[start:end+1]), &j); err != nil {
		return 0, fmt.Errorf("failed to parse judge response: %w", err)
	}

	return j.Score, nil
}
