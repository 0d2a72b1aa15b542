package http

import (
	"html/template"
	"strconv"
	"time"

	"cashly/internal/analytics"
	"cashly/internal/core"
)

type expenseResponse struct {
	ID           int64         `json:"id"`
	ReceiptID    int64         `json:"receipt_id"`
	MerchantName string        `json:"merchant_name"`
	Amount       core.Money    `json:"amount"`
	Currency     string        `json:"currency"`
	Category     core.Category `json:"category"`
	Date         string        `json:"date,omitempty"`
	Description  string        `json:"description,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

type receiptResponse struct {
	ID            int64              `json:"id"`
	ImageURL      string             `json:"image_url"`
	UploadedAt    time.Time          `json:"uploaded_at"`
	ProcessedAt   *time.Time         `json:"processed_at,omitempty"`
	Status        core.ReceiptStatus `json:"status"`
	FailureReason string             `json:"failure_reason,omitempty"`
	Merchant      string             `json:"merchant,omitempty"`
	Total         core.Money         `json:"total"`
	Expenses      []expenseResponse  `json:"expenses"`
}

func imagePath(id int64) string {
	return "/receipts/" + strconv.FormatInt(id, 10) + "/image"
}

func toReceiptResponse(rec core.Receipt) receiptResponse {
	out := receiptResponse{
		ID:            rec.ID,
		ImageURL:      imagePath(rec.ID),
		UploadedAt:    rec.UploadedAt,
		ProcessedAt:   rec.ProcessedAt,
		Status:        rec.Status,
		FailureReason: rec.FailureReason,
		Merchant:      rec.Merchant(),
		Total:         rec.Total(),
		Expenses:      make([]expenseResponse, 0, len(rec.Expenses)),
	}
	for _, e := range rec.Expenses {
		item := expenseResponse{
			ID:           e.ID,
			ReceiptID:    e.ReceiptID,
			MerchantName: e.MerchantName,
			Amount:       e.Amount,
			Currency:     e.Currency,
			Category:     e.Category,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt,
		}
		if e.Date != nil {
			item.Date = e.Date.Format(time.DateOnly)
		}
		if e.Confidence.Valid {
			c := e.Confidence.Decimal.InexactFloat64()
			item.Confidence = &c
		}
		out.Expenses = append(out.Expenses, item)
	}
	return out
}

type option struct {
	Label  string
	Href   template.URL
	Active bool
}

func analysisURL(path string, p AnalysisParams) template.URL {
	return template.URL(path + "?" + p.Query())
}

type categoryRow struct {
	Label   string
	Amount  string
	Percent string
	Width   int
}

type timelineRow struct {
	Label  string
	Amount string
}

type analysisPage struct {
	Nav           string
	Params        AnalysisParams
	RangeLabel    string
	Ranges        []option
	Buckets       []option
	HasData       bool
	Total         string
	Count         int64
	Average       string
	Categories    []categoryRow
	Timeline      []timelineRow
	CategoryChart template.URL
	TimelineChart template.URL
	Error         string
}

func newAnalysisPage(params AnalysisParams, snap analytics.Snapshot, currency string) analysisPage {
	page := analysisPage{
		Nav:           "analysis",
		Params:        params,
		RangeLabel:    core.RangeLabel(params.Range),
		HasData:       snap.HasData(),
		Total:         formatMoney(snap.Totals.Total, currency),
		Count:         snap.Totals.Count,
		Average:       formatMoney(snap.Totals.Average, currency),
		CategoryChart: analysisURL("/analysis/chart/categories.png", params),
		TimelineChart: analysisURL("/analysis/chart/timeline.png", params),
	}
	for _, token := range core.RangeTokens {
		page.Ranges = append(page.Ranges, option{
			Label:  token,
			Href:   analysisURL("/analysis", AnalysisParams{Range: token, Bucket: params.Bucket}),
			Active: token == params.Range,
		})
	}
	for _, b := range []core.Bucket{core.BucketDay, core.BucketWeek, core.BucketMonth} {
		page.Buckets = append(page.Buckets, option{
			Label:  string(b),
			Href:   analysisURL("/analysis", AnalysisParams{Range: params.Range, Bucket: b}),
			Active: b == snap.Bucket,
		})
	}

	sum := core.SumCategories(snap.Categories)
	var max int64
	for _, row := range snap.Categories {
		if row.Total.Cents > max {
			max = row.Total.Cents
		}
	}
	for _, row := range snap.Categories {
		width := 0
		if max > 0 && row.Total.Cents > 0 {
			width = int((row.Total.Cents*100 + max/2) / max)
			if width < 2 {
				width = 2
			}
		}
		page.Categories = append(page.Categories, categoryRow{
			Label:   row.Category.Label(),
			Amount:  formatMoney(row.Total, currency),
			Percent: strconv.FormatFloat(row.Total.Percent(sum), 'f', 1, 64) + "%",
			Width:   width,
		})
	}
	for _, row := range snap.Timeline {
		page.Timeline = append(page.Timeline, timelineRow{
			Label:  snap.Bucket.Label(row.Start),
			Amount: formatMoney(row.Total, currency),
		})
	}
	return page
}

type receiptRow struct {
	ID            int64
	Merchant      string
	Date          string
	Status        string
	FailureReason string
	Categories    []string
	Total         string
	Items         int
	ImageURL      string
}

type receiptsPage struct {
	Nav      string
	Receipts []receiptRow
	Queued   bool
	MaxMB    int64
	Accept   string
	Error    string
}

func newReceiptRow(rec core.Receipt, currency string) receiptRow {
	row := receiptRow{
		ID:            rec.ID,
		Merchant:      rec.Merchant(),
		Date:          rec.UploadedAt.Format("02 Jan 2006"),
		Status:        string(rec.Status),
		FailureReason: rec.FailureReason,
		Total:         formatMoney(rec.Total(), currency),
		Items:         len(rec.Expenses),
		ImageURL:      imagePath(rec.ID),
	}
	if row.Merchant == "" {
		row.Merchant = "Receipt #" + strconv.FormatInt(rec.ID, 10)
	}
	seen := make(map[core.Category]bool)
	for _, e := range rec.Expenses {
		if !seen[e.Category] {
			seen[e.Category] = true
			row.Categories = append(row.Categories, e.Category.Label())
		}
	}
	if len(rec.Expenses) > 0 && rec.Expenses[0].Currency != "" {
		row.Total = formatMoney(rec.Total(), rec.Expenses[0].Currency)
	}
	if d := firstExpenseDate(rec); d != nil {
		row.Date = d.Format("02 Jan 2006")
	}
	return row
}

func firstExpenseDate(rec core.Receipt) *time.Time {
	for _, e := range rec.Expenses {
		if e.Date != nil {
			return e.Date
		}
	}
	return nil
}
