// Package prompt builds the fixed completion prompts. All builders are pure:
// they substitute pretty-printed JSON copies of their inputs into template
// strings at named placeholders, each replaced at most once.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const analysisTemplate = `
You are an expert marketing strategist analyzing a business for comprehensive strategic planning.
Review the following business information and questionnaire responses, then provide a thorough analysis.

Business Context: {business_context}
Questionnaire Responses: {responses}

Provide a comprehensive analysis in JSON format including:
1. businessModelAssessment: Evaluation of the business model strengths and weaknesses
2. marketOpportunity: Analysis of market size, trends, and opportunities
3. competitivePositioning: Assessment of competitive landscape and positioning
4. customerAvatarRefinement: Detailed ideal customer profile based on responses
5. strategicRecommendations: Array of specific, actionable strategic recommendations
6. riskFactors: Array of potential challenges and risks to consider
7. growthPotential: Assessment of growth opportunities and scalability

Structure your analysis professionally with clear insights and actionable observations.
Return only valid JSON without any markdown formatting or additional text.
`

const strategyTemplate = `
Based on the business analysis provided, develop a comprehensive marketing strategy that follows the 9-square marketing plan framework.

Business Analysis: {analysis}
Business Context: {business_context}
Questionnaire Responses: {responses}

Generate a complete marketing plan in JSON format with the following structure:

{
  "onePagePlan": {
    "before": {
      "targetMarket": "Detailed description of ideal customer avatar",
      "message": "Clear, compelling unique value proposition",
      "media": ["Top 3 marketing channels with specific rationale"]
    },
    "during": {
      "leadCapture": "Specific lead capture mechanism and compelling offer",
      "leadNurture": "Strategic nurturing sequence and content strategy",
      "salesConversion": "Optimized sales process and key conversion tactics"
    },
    "after": {
      "deliverExperience": "Customer delivery and onboarding strategy",
      "lifetimeValue": "Retention and customer growth strategies",
      "referrals": "Systematic referral generation system"
    }
  },
  "implementationGuide": {
    "executiveSummary": "2-3 paragraph overview of the strategy and expected outcomes",
    "actionPlans": {
      "phase1": "First 30 days action items with specific tasks",
      "phase2": "Days 31-90 action items and initiatives",
      "phase3": "Days 91-180 scaling and optimization activities"
    },
    "timeline": "Detailed implementation timeline with milestones",
    "resources": "Required resources, tools, and budget estimates",
    "kpis": "Key performance indicators and success metrics to track",
    "templates": "Specific templates, scripts, and tools needed"
  },
  "strategicInsights": {
    "strengths": ["Key business strengths to leverage"],
    "opportunities": ["Market opportunities to pursue"],
    "positioning": "Recommended market positioning strategy",
    "competitiveAdvantage": "Unique competitive advantages to emphasize",
    "growthPotential": "Assessment of growth potential and scalability",
    "risks": ["Key risks and mitigation strategies"],
    "investments": ["Recommended marketing investments and priorities"],
    "roi": "Expected return on investment and key metrics"
  }
}

Ensure all recommendations are:
- Industry-specific and relevant
- Actionable with clear next steps
- Budget-conscious based on stated constraints
- Measurable with specific KPIs
- Realistic for the business size and maturity

Return only valid JSON without any markdown formatting or additional text.
`

// squarePrompts maps each square of the 9-square framework to its lead-in.
var squarePrompts = map[int]string{
	1: "Generate detailed target market analysis and customer avatar for marketing square 1",
	2: "Generate comprehensive value proposition and messaging strategy for marketing square 2",
	3: "Generate media channel strategy and reach optimization for marketing square 3",
	4: "Generate lead capture mechanisms and acquisition strategy for marketing square 4",
	5: "Generate lead nurturing and relationship building strategy for marketing square 5",
	6: "Generate sales conversion and closing optimization for marketing square 6",
	7: "Generate customer experience and delivery optimization for marketing square 7",
	8: "Generate lifetime value and growth strategy for marketing square 8",
	9: "Generate referral system and advocacy strategy for marketing square 9",
}

// Analysis builds the step-1 analysis prompt. Inputs are JSON text.
func Analysis(businessContext, responses string) string {
	p := strings.Replace(analysisTemplate, "{business_context}", indentJSON(businessContext), 1)
	return strings.Replace(p, "{responses}", indentJSON(responses), 1)
}

// Strategy builds the step-2 generation prompt from the analysis output plus
// the original inputs.
func Strategy(analysis, businessContext, responses string) string {
	p := strings.Replace(strategyTemplate, "{analysis}", indentJSON(analysis), 1)
	p = strings.Replace(p, "{business_context}", indentJSON(businessContext), 1)
	return strings.Replace(p, "{responses}", indentJSON(responses), 1)
}

// Square builds a square-specific prompt for squares 1 through 9. The
// analysis section is included only when an analysis exists.
func Square(square int, businessContext, responses, analysis string) (string, error) {
	lead, ok := squarePrompts[square]
	if !ok {
		return "", fmt.Errorf("invalid marketing square %d: must be 1-9", square)
	}

	var sb strings.Builder
	sb.WriteString(lead)
	sb.WriteString("\n\nBusiness Context: ")
	sb.WriteString(indentJSON(businessContext))
	sb.WriteString("\nRelevant Responses: ")
	sb.WriteString(indentJSON(responses))
	if analysis != "" {
		sb.WriteString("\nPrevious Analysis: ")
		sb.WriteString(indentJSON(analysis))
	}
	sb.WriteString("\n\nProvide specific, actionable recommendations for this marketing square in JSON format.\n")
	sb.WriteString("Include implementation steps, success metrics, and industry-specific best practices.\n")
	sb.WriteString("Return only valid JSON without any markdown formatting or additional text.\n")
	return sb.String(), nil
}

// Validation builds the questionnaire-feedback prompt.
func Validation(responses string) string {
	var sb strings.Builder
	sb.WriteString("Review these marketing questionnaire responses and provide feedback:\n\n")
	sb.WriteString(indentJSON(responses))
	sb.WriteString("\n\nAnalyze the responses and provide:\n")
	sb.WriteString("1. suggestions: Array of specific suggestions for improving or clarifying responses\n")
	sb.WriteString("2. completionScore: Numerical score from 0-100 indicating response quality and completeness\n\n")
	sb.WriteString("Focus on:\n")
	sb.WriteString("- Completeness of responses\n")
	sb.WriteString("- Specificity and actionability\n")
	sb.WriteString("- Clarity of business objectives\n")
	sb.WriteString("- Market understanding depth\n\n")
	sb.WriteString("Return only valid JSON without any markdown formatting or additional text.\n")
	return sb.String()
}

// indentJSON pretty-prints a JSON text. Non-JSON input passes through
// unchanged so a corrupted stored field still yields a usable prompt.
func indentJSON(s string) string {
	if s == "" {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, []byte(s), "", "  "); err != nil {
		return s
	}
	return buf.String()
}
