// Package render turns a completed plan's generated content into a PDF
// document for download and email attachments.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/planward/planward/internal/plan"
)

// Document is a rendered download artifact.
type Document struct {
	Bytes       []byte
	ContentType string
	Filename    string
}

// Disposition returns the Content-Disposition header value.
func (d Document) Disposition() string {
	return fmt.Sprintf(`attachment; filename="%s"`, d.Filename)
}

type generatedContent struct {
	OnePagePlan         onePagePlan    `json:"onePagePlan"`
	ImplementationGuide map[string]any `json:"implementationGuide"`
	StrategicInsights   map[string]any `json:"strategicInsights"`
}

type onePagePlan struct {
	Before map[string]any `json:"before"`
	During map[string]any `json:"during"`
	After  map[string]any `json:"after"`
}

// PDF renders the plan's generated content. The plan must carry content; the
// caller guards on completion status.
func PDF(p plan.Plan, now time.Time) (Document, error) {
	var content generatedContent
	if err := json.Unmarshal([]byte(p.GeneratedContent), &content); err != nil {
		return Document{}, fmt.Errorf("decode generated content: %w", err)
	}

	doc := fpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Marketing Plan", false)
	doc.SetAutoPageBreak(true, 15)
	doc.AddPage()

	doc.SetFont("Helvetica", "B", 20)
	doc.CellFormat(0, 12, "Marketing Plan", "", 1, "C", false, 0, "")
	doc.SetFont("Helvetica", "", 10)
	doc.SetTextColor(110, 110, 110)
	doc.CellFormat(0, 6, "Generated "+now.Format("January 2, 2006"), "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.Ln(6)

	writeSection(doc, "Before: Attracting Your Market", content.OnePagePlan.Before)
	writeSection(doc, "During: Converting Leads", content.OnePagePlan.During)
	writeSection(doc, "After: Growing Customers", content.OnePagePlan.After)
	writeSection(doc, "Implementation Guide", content.ImplementationGuide)
	writeSection(doc, "Strategic Insights", content.StrategicInsights)

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("render pdf: %w", err)
	}
	return Document{
		Bytes:       buf.Bytes(),
		ContentType: "application/pdf",
		Filename:    "marketing-plan-" + now.Format("2006-01-02") + ".pdf",
	}, nil
}

func writeSection(doc *fpdf.Fpdf, title string, fields map[string]any) {
	if len(fields) == 0 {
		return
	}
	doc.SetFont("Helvetica", "B", 13)
	doc.SetFillColor(235, 238, 245)
	doc.CellFormat(0, 9, title, "", 1, "L", true, 0, "")
	doc.Ln(2)

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		doc.SetFont("Helvetica", "B", 10)
		doc.CellFormat(0, 6, humanize(k), "", 1, "L", false, 0, "")
		doc.SetFont("Helvetica", "", 10)
		writeValue(doc, fields[k], 0)
		doc.Ln(2)
	}
	doc.Ln(3)
}

func writeValue(doc *fpdf.Fpdf, v any, depth int) {
	indent := strings.Repeat("   ", depth)
	switch t := v.(type) {
	case string:
		doc.MultiCell(0, 5, indent+t, "", "L", false)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok {
				doc.MultiCell(0, 5, indent+"- "+s, "", "L", false)
				continue
			}
			writeValue(doc, item, depth+1)
		}
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			doc.MultiCell(0, 5, indent+humanize(k)+":", "", "L", false)
			writeValue(doc, t[k], depth+1)
		}
	case float64:
		doc.MultiCell(0, 5, fmt.Sprintf("%s%v", indent, t), "", "L", false)
	case bool:
		doc.MultiCell(0, 5, fmt.Sprintf("%s%v", indent, t), "", "L", false)
	case nil:
	default:
		doc.MultiCell(0, 5, fmt.Sprintf("%s%v", indent, t), "", "L", false)
	}
}

// humanize renders a camelCase JSON key as a title, e.g. "targetMarket"
// becomes "Target Market".
func humanize(key string) string {
	var sb strings.Builder
	for i, r := range key {
		if i == 0 {
			if r >= 'a' && r <= 'z' {
				r -= 'a' - 'A'
			}
			sb.WriteRune(r)
			continue
		}
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte(' ')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
