package app

import (
	"net/url"
	"strings"
)

const paymentEndpoint = "https://www.paypal.com/cgi-bin/webscr"

type BillingOptions struct {
	Recipient string
	ItemName  string
	Amount    string
}

// PaymentLink is the upgrade checkout URL, or "" when no recipient is
// configured.
func (s *ChatService) PaymentLink() string {
	b := s.opts.Billing
	if strings.TrimSpace(b.Recipient) == "" {
		return ""
	}
	if b.ItemName == "" {
		b.ItemName = "SentientPro"
	}
	if b.Amount == "" {
		b.Amount = "10.00"
	}
	return paymentEndpoint +
		"?cmd=_xclick" +
		"&business=" + url.QueryEscape(b.Recipient) +
		"&item_name=" + url.QueryEscape(b.ItemName) +
		"&amount=" + url.QueryEscape(b.Amount)
}
