package stripe

import (
	"time"

	"github.com/samber/lo"
	stripego "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/revenue-engine/internal/providers"
	"github.com/angelmondragon/revenue-engine/pkg/enums"
)

// invoiceFacts is what a paid invoice contributes to the intents it settled.
type invoiceFacts struct {
	subscription bool
	attribution  providers.Attribution
}

func factsOf(inv *stripego.Invoice) invoiceFacts {
	facts := invoiceFacts{attribution: providers.AttributionFrom(inv.Metadata)}
	if inv.Parent != nil && inv.Parent.SubscriptionDetails != nil {
		facts.subscription = true
		facts.attribution = facts.attribution.Or(providers.AttributionFrom(inv.Parent.SubscriptionDetails.Metadata))
	}

	var lines []*stripego.InvoiceLineItem
	if inv.Lines != nil {
		lines = inv.Lines.Data
	}
	if lo.ContainsBy(lines, recurringLine) {
		facts.subscription = true
	}
	if len(lines) > 0 && lines[0] != nil {
		facts.attribution = facts.attribution.Or(lineProduct(lines[0]))
	}
	return facts
}

// recurringLine reports whether the line was billed by a subscription item.
func recurringLine(line *stripego.InvoiceLineItem) bool {
	if line == nil {
		return false
	}
	return line.Subscription != nil || (line.Parent != nil && line.Parent.SubscriptionItemDetails != nil)
}

func lineProduct(line *stripego.InvoiceLineItem) providers.Attribution {
	product := providers.Attribution{ProductName: lo.EmptyableToPtr(line.Description)}
	if line.Pricing != nil && line.Pricing.PriceDetails != nil {
		product.ProductID = lo.EmptyableToPtr(line.Pricing.PriceDetails.Product)
	}
	return providers.AttributionFrom(line.Metadata).Or(product)
}

func intentIDs(inv *stripego.Invoice) []string {
	if inv.Payments == nil {
		return nil
	}
	return lo.FilterMap(inv.Payments.Data, func(p *stripego.InvoicePayment, _ int) (string, bool) {
		if p == nil || p.Payment == nil || p.Payment.PaymentIntent == nil {
			return "", false
		}
		return p.Payment.PaymentIntent.ID, p.Payment.PaymentIntent.ID != ""
	})
}

func saleDraft(pi *stripego.PaymentIntent, inv invoiceFacts) providers.Draft {
	amount := pi.AmountReceived
	if amount <= 0 {
		amount = pi.Amount
	}
	txType := enums.TransactionTypeSale
	if inv.subscription {
		txType = enums.TransactionTypeSubscription
	}

	attribution := providers.AttributionFrom(pi.Metadata)
	if pi.LatestCharge != nil {
		attribution = attribution.Or(providers.AttributionFrom(pi.LatestCharge.Metadata))
	}
	attribution = attribution.Or(inv.attribution)

	return providers.Draft{
		TransactionID:    pi.ID,
		Type:             txType,
		Status:           enums.TransactionStatusCompleted,
		OriginalAmount:   providers.FromMinorUnits(amount, string(pi.Currency)),
		OriginalCurrency: string(pi.Currency),
		Attribution:      attribution,
		Metadata:         pi.Metadata,
		Created:          time.Unix(pi.Created, 0),
	}
}

func refundDraft(re *stripego.Refund, inv invoiceFacts) providers.Draft {
	attribution := providers.AttributionFrom(re.Metadata)
	if re.Charge != nil {
		attribution = attribution.Or(providers.AttributionFrom(re.Charge.Metadata))
	}
	attribution = attribution.Or(inv.attribution)

	metadata := lo.Assign(map[string]string{}, re.Metadata)
	if re.PaymentIntent != nil && re.PaymentIntent.ID != "" {
		metadata["payment_intent"] = re.PaymentIntent.ID
	}

	return providers.Draft{
		TransactionID:    re.ID,
		Type:             enums.TransactionTypeRefund,
		Status:           enums.TransactionStatusRefunded,
		OriginalAmount:   providers.FromMinorUnits(re.Amount, string(re.Currency)),
		OriginalCurrency: string(re.Currency),
		Attribution:      attribution,
		Metadata:         metadata,
		Created:          time.Unix(re.Created, 0),
	}
}
