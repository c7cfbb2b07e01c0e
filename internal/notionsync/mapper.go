package notionsync

import (
	"time"

	"github.com/dvloznov/monzo-export/internal/export"
	"github.com/jomei/notionapi"
)

// Property names of the Notion transactions database.
const (
	PropDescription   = "Description"
	PropTransactionID = "Transaction ID"
	PropDate          = "Date"
	PropAmount        = "Amount"
	PropCurrency      = "Currency"
	PropLocalAmount   = "Local Amount"
	PropLocalCurrency = "Local Currency"
	PropCategory      = "Category"
	PropAccount       = "Account"
	PropMerchant      = "Merchant"
	PropNotes         = "Notes"
	PropDeclined      = "Decline Reason"
	PropPot           = "Pot"
	PropSettled       = "Settled"
	PropTopUp         = "Top Up"
)

// TransactionProperties maps a persisted transaction onto page properties.
// merchants resolves merchant IDs to display names; unknown IDs are shown as is.
func TransactionProperties(tx export.TransactionRow, merchants map[string]string) notionapi.Properties {
	gbp, _ := tx.GBPAmount.Float64()
	local, _ := tx.LocalAmount.Float64()

	props := notionapi.Properties{
		PropDescription: notionapi.TitleProperty{
			Title: richText(tx.Description),
		},
		PropTransactionID: notionapi.RichTextProperty{
			RichText: richText(tx.TransactionID),
		},
		PropDate:        dateProperty(tx.Created),
		PropAmount:      notionapi.NumberProperty{Number: gbp},
		PropLocalAmount: notionapi.NumberProperty{Number: local},
		PropAccount: notionapi.RichTextProperty{
			RichText: richText(tx.AccountID),
		},
		PropTopUp: notionapi.CheckboxProperty{Checkbox: tx.IsLoad},
	}

	// Notion rejects select options with an empty name.
	if tx.Currency != "" {
		props[PropCurrency] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Currency}}
	}
	if tx.LocalCurrency != "" {
		props[PropLocalCurrency] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.LocalCurrency}}
	}
	if tx.Category != "" {
		props[PropCategory] = notionapi.SelectProperty{Select: notionapi.Option{Name: tx.Category}}
	}

	if tx.MerchantID != nil {
		name := *tx.MerchantID
		if n, ok := merchants[name]; ok && n != "" {
			name = n
		}
		props[PropMerchant] = notionapi.RichTextProperty{RichText: richText(name)}
	}
	if tx.Notes != nil {
		props[PropNotes] = notionapi.RichTextProperty{RichText: richText(*tx.Notes)}
	}
	if tx.DeclineReason != nil {
		props[PropDeclined] = notionapi.RichTextProperty{RichText: richText(*tx.DeclineReason)}
	}
	if tx.PotID != nil {
		props[PropPot] = notionapi.RichTextProperty{RichText: richText(*tx.PotID)}
	}
	if tx.Settled != nil {
		props[PropSettled] = dateProperty(*tx.Settled)
	}

	return props
}

func richText(s string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{Content: s},
		},
	}
}

func dateProperty(t time.Time) notionapi.DateProperty {
	d := notionapi.Date(t.UTC())
	return notionapi.DateProperty{
		Date: &notionapi.DateObject{Start: &d},
	}
}

// transactionIDOf reads the transaction ID stored on a page, or "".
func transactionIDOf(page notionapi.Page) string {
	switch p := page.Properties[PropTransactionID].(type) {
	case *notionapi.RichTextProperty:
		return firstPlainText(p.RichText)
	case notionapi.RichTextProperty:
		return firstPlainText(p.RichText)
	}
	return ""
}

func firstPlainText(rt []notionapi.RichText) string {
	if len(rt) == 0 {
		return ""
	}
	if rt[0].PlainText != "" {
		return rt[0].PlainText
	}
	if rt[0].Text != nil {
		return rt[0].Text.Content
	}
	return ""
}
