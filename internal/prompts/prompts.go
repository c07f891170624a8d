// Package prompts holds the prompt templates used by the research
// pipeline. Templates are plain format strings so callers stay in
// control of the data they interpolate.
package prompts

import (
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// Shared
// ============================================================================

// ResponseTerms are the stance labels the final evaluation must pick from.
var ResponseTerms = []string{
	"Highly Unlikely", "Unlikely", "Somewhat Unlikely", "Uncertain",
	"Somewhat Likely", "Likely", "Highly Likely",
}

// AnalystSystemPrompt frames every analysis call.
func AnalystSystemPrompt() string {
	return fmt.Sprintf("You are a professional forecaster interviewing for a job. Today's date is %s.",
		time.Now().Format("2006-01-02"))
}

// ExtractionSystemPrompt frames structured-output parsing calls.
const ExtractionSystemPrompt = "You are a helpful assistant that parses text and extracts structured information."

// MarketBlock renders the market metadata section shared by the
// analysis and evaluation prompts.
func MarketBlock(question, description, focusText string) string {
	var b strings.Builder
	b.WriteString("Market Question: " + question + "\n")
	if description != "" {
		b.WriteString("Description: " + description + "\n")
	}
	if focusText != "" {
		b.WriteString("Research Focus: " + focusText + "\n")
	}
	return b.String()
}

// PriceBlock renders the latest consensus estimate, or a placeholder
// when price data is unavailable.
func PriceBlock(center, lower, upper float64, available bool) string {
	if !available {
		return "No market price data available."
	}
	return fmt.Sprintf(
		"Latest Market Data:\nConsensus center estimate: %.3f\nLower bound of consensus: %.3f\nUpper bound of consensus: %.3f",
		center, lower, upper)
}

// ============================================================================
// Query generation
// ============================================================================

// QueryGeneration asks for n diverse web-search queries as JSON.
// Iterations after the first pass in the prior analysis so queries
// target what is still unknown.
func QueryGeneration(marketBlock string, n, iteration int, priorAnalysis string) string {
	var b strings.Builder
	b.WriteString(marketBlock)
	b.WriteString("\n")
	if iteration > 1 && priorAnalysis != "" {
		b.WriteString("Analysis so far:\n")
		b.WriteString(priorAnalysis)
		b.WriteString("\n\nGenerate queries that fill the remaining gaps in the analysis above. ")
		b.WriteString("Focus on historical precedents, base rates, and recent developments not yet covered.\n\n")
	}
	fmt.Fprintf(&b, `Give PRECISELY %d independent web search queries that would best help understand what would need to occur for the YES outcome of the above market to happen. Ensure diversity of angle: historical precedents and rate of change, analogous situations and how their conditions differ from ours, and current odds or expert opinions (both positive and negative).

Each query MUST contain all named entities and be fully understandable as a standalone, searchable query without any headers or context.

Return JSON: {"queries": ["query 1", "query 2", ...]}`, n)
	return b.String()
}

// ============================================================================
// Analysis
// ============================================================================

// Analysis asks for a streamed balanced analysis over the gathered
// sources, ending with a LIKELIHOOD line.
func Analysis(marketBlock, priceBlock, sources string, iteration, maxIterations int) string {
	var b strings.Builder
	b.WriteString(marketBlock)
	b.WriteString("\n")
	b.WriteString(priceBlock)
	b.WriteString("\n\nWeb research gathered so far:\n")
	b.WriteString(sources)
	fmt.Fprintf(&b, "\n\nThis is research iteration %d of %d.\n\n", iteration, maxIterations)
	b.WriteString(`First, state today's date. Then, state the market resolution date if known.

Compress key factual information from the sources into a list of core factual points to reference. Do not draw conclusions in this step. Place this section in <facts></facts> tags.

Provide a few reasons why the answer might be no. Rate the strength of each reason on a scale of 1-10. Use <no></no> tags.

Provide a few reasons why the answer might be yes. Rate the strength of each reason on a scale of 1-10. Use <yes></yes> tags.

Aggregate your considerations. Do not summarize or repeat previous points; instead, investigate how the competing factors interact and weigh against each other. Adjust for news' negativity bias and sensationalism bias by considering reasons the provided sources might be biased or exaggerated. If the question is timing based, focus on the amount of time left until the deadline and the realism of how long the outcome is likely to take. Think like a superforecaster. Use <thinking></thinking> tags for this section.

At the end of your response, provide a likelihood of the YES outcome of the market as a decimal between 0 and 1, formatted as follows:
LIKELIHOOD: [your decimal here]`)
	return b.String()
}

// ============================================================================
// Insights extraction
// ============================================================================

// Insights asks for the structured summary of an analysis as JSON.
func Insights(marketBlock, analysis string) string {
	var b strings.Builder
	b.WriteString(marketBlock)
	b.WriteString("\nAnalysis:\n")
	b.WriteString(analysis)
	b.WriteString(`

Extract from the analysis above:
- the final probability of the YES outcome, as a percentage string (e.g. "65%"); use the LIKELIHOOD line when present
- the most relevant remaining areas for further research

Return JSON: {"probability": "<pct>", "areasForResearch": ["area 1", "area 2", ...]}`)
	return b.String()
}

// ============================================================================
// Final evaluation
// ============================================================================

// FinalEvaluation asks for the balanced closing assessment across all
// iteration analyses, anchored to the price consensus when available.
func FinalEvaluation(marketBlock, priceBlock, allAnalyses string) string {
	var b strings.Builder
	b.WriteString(marketBlock)
	b.WriteString("\n")
	b.WriteString(priceBlock)
	b.WriteString("\n\nIteration analyses:\n")
	b.WriteString(allAnalyses)
	fmt.Fprintf(&b, `

Based on the market information, the analyses above, and the latest market data (if available), provide a final evaluation of the likelihood of the YES outcome. Consider both the optimistic and pessimistic factors, and provide a balanced assessment. If market data is available, why is the consensus where it is? Does your analysis allow you to stray from the consensus? If you have conviction, do not be afraid to stray from it. Give a final evaluation using one of the following terms for the outcome:

%s

Finally, give a final decimal likelihood of the YES outcome between 0 and 1, formatted as follows:
LIKELIHOOD: [your decimal here]`, strings.Join(ResponseTerms, ", "))
	return b.String()
}

// ============================================================================
// Historical comparisons
// ============================================================================

// HistoricalComparison asks for analogous past events as JSON.
func HistoricalComparison(marketBlock string, n int) string {
	var b strings.Builder
	b.WriteString(marketBlock)
	fmt.Fprintf(&b, `
Find the %d most analogous historical events for the market above. Focus on events with the highest precedent value for forecasting this outcome.

Return JSON: {"events": [{"title": "<event>", "date": "<when>", "similarities": ["..."], "differences": ["..."]}]}`, n)
	return b.String()
}

// ============================================================================
// Likelihood parsing
// ============================================================================

// LikelihoodExtraction asks for the numeric value in the
// "LIKELIHOOD: [x]" line as JSON, null when missing.
func LikelihoodExtraction(analysis string) string {
	return fmt.Sprintf(`Extract the numeric value in the 'LIKELIHOOD: [x]' line from the following text.
Return JSON: {"likelihood": <float>} (0..1). If not found, return {"likelihood": null}.

Text:
%s`, analysis)
}
