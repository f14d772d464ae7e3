package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/linehub/billing/pkg/email"
	"github.com/linehub/billing/pkg/money"
	"github.com/linehub/billing/svc/billing"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/ledger"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
	"github.com/linehub/billing/svc/reminder"
)

// InvoiceIssued emails a new invoice with its PDF attached.
func (n *Notifier) InvoiceIssued(ctx context.Context, notice billing.Notice) error {
	inv := notice.Invoice
	v := view{Name: notice.Profile.Name, Invoice: inv}
	d := ledger.Dispatch{
		Subject:   ledger.Subject{Kind: ledger.SubjectInvoice, ID: inv.ID},
		Policy:    ledger.Ever,
		UserID:    ptr(inv.UserID),
		InvoiceID: ptr(inv.ID),
		Metadata: map[string]any{
			"invoice_number": inv.Number,
			"total":          inv.Total.StringFixed(2),
		},
	}
	if notice.Request != nil {
		v.Link = notice.Request.Link
		d.PaymentRequestID = ptr(notice.Request.Request.ID)
	}

	html, text, err := n.render(TemplateInvoiceIssued, v)
	if err != nil {
		return err
	}
	d.Message = email.Message{
		To:       notice.Profile.Email,
		Subject:  fmt.Sprintf("Your %s invoice %s", n.brand.CompanyName, inv.Number),
		HTMLBody: html,
		TextBody: text,
		Tag:      TemplateInvoiceIssued,
	}
	if len(notice.PDF) > 0 {
		d.Message.Attachments = []email.Attachment{{
			Name:        inv.Number + ".pdf",
			ContentType: "application/pdf",
			Content:     notice.PDF,
		}}
	}
	return n.send(ctx, d)
}

var reminderSubjects = map[string]string{
	reminder.TemplateUpcoming: "Invoice %s is due soon",
	reminder.TemplateDue:      "Invoice %s is due today",
	reminder.TemplateOverdue:  "Invoice %s is overdue",
}

// PaymentReminder emails a milestone reminder with a freshly issued link and
// returns the ledger result so a skipped send can be told apart.
func (n *Notifier) PaymentReminder(ctx context.Context, notice reminder.Notice) (ledger.Result, error) {
	inv := notice.Invoice
	tmpl := notice.Milestone.Template
	v := view{
		Name:    notice.Profile.Name,
		Invoice: inv,
		Stage:   strings.TrimPrefix(tmpl, "payment_reminder_"),
	}
	d := ledger.Dispatch{
		Subject:   ledger.Subject{Kind: ledger.SubjectInvoice, ID: inv.ID},
		Policy:    ledger.Ever,
		UserID:    ptr(inv.UserID),
		InvoiceID: ptr(inv.ID),
		Metadata: map[string]any{
			"invoice_number": inv.Number,
			"offset_days":    notice.Milestone.OffsetDays,
		},
	}
	if notice.Request != nil {
		v.Link = notice.Request.Link
		d.PaymentRequestID = ptr(notice.Request.Request.ID)
	}

	html, text, err := n.render("payment_reminder", v)
	if err != nil {
		return ledger.Result{}, err
	}
	subject, ok := reminderSubjects[tmpl]
	if !ok {
		subject = "Payment reminder for invoice %s"
	}
	d.Message = email.Message{
		To:       notice.Profile.Email,
		Subject:  fmt.Sprintf(subject, inv.Number),
		HTMLBody: html,
		TextBody: text,
		Tag:      tmpl,
	}
	return n.dispatch(ctx, d)
}

// PaymentReceipt confirms a settled card payment.
func (n *Notifier) PaymentReceipt(ctx context.Context, notice checkout.ReceiptNotice) error {
	rc, r := notice.Receipt, notice.Request
	html, text, err := n.render(TemplatePaymentReceipt, view{
		Name:        r.Customer.Name,
		Receipt:     rc,
		Description: r.Description,
	})
	if err != nil {
		return err
	}
	return n.send(ctx, ledger.Dispatch{
		Subject:          ledger.Subject{Kind: ledger.SubjectPaymentRequest, ID: r.ID},
		Policy:           ledger.Ever,
		UserID:           ptr(r.Customer.UserID),
		InvoiceID:        r.InvoiceID,
		PaymentRequestID: ptr(r.ID),
		Metadata: map[string]any{
			"receipt_reference":     rc.Reference,
			"transaction_reference": rc.TransactionReference,
			"amount":                money.Format(rc.Amount, rc.Currency),
		},
		Message: email.Message{
			To:       r.Customer.Email,
			Subject:  "Payment received, receipt " + rc.Reference,
			HTMLBody: html,
			TextBody: text,
			Tag:      TemplatePaymentReceipt,
		},
	})
}

// PaymentLink emails a standalone card payment or Direct Debit setup link.
func (n *Notifier) PaymentLink(ctx context.Context, issued *paymentrequest.Issued) error {
	r := issued.Request
	dd := r.Type == paymentrequest.TypeDDSetup
	tmpl, subject := TemplatePaymentLinkCard, "Payment request from "+n.brand.CompanyName
	if dd {
		tmpl, subject = TemplatePaymentLinkDD, "Set up your Direct Debit with "+n.brand.CompanyName
	}

	html, text, err := n.render("payment_link", view{
		Name:        r.Customer.Name,
		Link:        issued.Link,
		DirectDebit: dd,
		Request:     r,
	})
	if err != nil {
		return err
	}
	return n.send(ctx, ledger.Dispatch{
		Subject:          ledger.Subject{Kind: ledger.SubjectPaymentRequest, ID: r.ID},
		Policy:           ledger.Ever,
		UserID:           ptr(r.Customer.UserID),
		InvoiceID:        r.InvoiceID,
		PaymentRequestID: ptr(r.ID),
		Metadata:         map[string]any{"type": string(r.Type)},
		Message: email.Message{
			To:       r.Customer.Email,
			Subject:  subject,
			HTMLBody: html,
			TextBody: text,
			Tag:      tmpl,
		},
	})
}

// MandateReceived acknowledges a submitted Direct Debit instruction.
func (n *Notifier) MandateReceived(ctx context.Context, m *mandate.Mandate) error {
	html, text, err := n.render(TemplateMandateReceived, view{Name: m.CustomerName, Mandate: m})
	if err != nil {
		return err
	}
	return n.send(ctx, ledger.Dispatch{
		Subject:          ledger.Subject{Kind: ledger.SubjectMandate, ID: m.ID},
		Policy:           ledger.Ever,
		UserID:           ptr(m.UserID),
		PaymentRequestID: ptr(m.PaymentRequestID),
		MandateID:        ptr(m.ID),
		Metadata:         map[string]any{"mandate_reference": m.Reference},
		Message: email.Message{
			To:       m.CustomerEmail,
			Subject:  "We have received your Direct Debit instruction",
			HTMLBody: html,
			TextBody: text,
			Tag:      TemplateMandateReceived,
		},
	})
}

var statusLabels = map[mandate.Status]string{
	mandate.StatusPending:             "pending",
	mandate.StatusVerified:            "verified",
	mandate.StatusSubmittedToProvider: "submitted to your bank",
	mandate.StatusActive:              "active",
	mandate.StatusCancelled:           "cancelled",
	mandate.StatusFailed:              "failed",
}

// MandateStatusChanged tells the customer their mandate moved on. The same
// status is not announced twice within the status window.
func (n *Notifier) MandateStatusChanged(ctx context.Context, m *mandate.Mandate, from mandate.Status) error {
	label := statusLabels[m.Status]
	if label == "" {
		label = string(m.Status)
	}
	html, text, err := n.render("dd_status", view{
		Name:        m.CustomerName,
		Mandate:     m,
		Status:      string(m.Status),
		StatusLabel: label,
	})
	if err != nil {
		return err
	}
	tmpl := TemplateMandateStatusBase + string(m.Status)
	return n.send(ctx, ledger.Dispatch{
		Subject:          ledger.Subject{Kind: ledger.SubjectMandate, ID: m.ID},
		Policy:           ledger.Within(n.statusWindow),
		UserID:           ptr(m.UserID),
		PaymentRequestID: ptr(m.PaymentRequestID),
		MandateID:        ptr(m.ID),
		Metadata: map[string]any{
			"mandate_reference": m.Reference,
			"from":              string(from),
			"to":                string(m.Status),
		},
		Message: email.Message{
			To:       m.CustomerEmail,
			Subject:  "Your Direct Debit is " + label,
			HTMLBody: html,
			TextBody: text,
			Tag:      tmpl,
		},
	})
}
