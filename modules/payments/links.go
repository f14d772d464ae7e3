package payments

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/pkg/logger"
	"github.com/linehub/billing/pkg/reqmeta"
	"github.com/linehub/billing/pkg/validator"
	"github.com/linehub/billing/svc/checkout"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

// RequestView is what a link holder may see of a payment request.
type RequestView struct {
	ID           uuid.UUID             `json:"id"`
	Type         paymentrequest.Type   `json:"type"`
	Amount       decimal.Decimal       `json:"amount"`
	Currency     string                `json:"currency"`
	Description  string                `json:"description,omitempty"`
	CustomerName string                `json:"customerName"`
	InvoiceID    *uuid.UUID            `json:"invoiceId,omitempty"`
	DueDate      *time.Time            `json:"dueDate,omitempty"`
	Status       paymentrequest.Status `json:"status"`
	ExpiresAt    time.Time             `json:"expiresAt"`
}

func newRequestView(r *paymentrequest.PaymentRequest) RequestView {
	return RequestView{
		ID:           r.ID,
		Type:         r.Type,
		Amount:       r.Amount,
		Currency:     r.Currency,
		Description:  r.Description,
		CustomerName: r.Customer.Name,
		InvoiceID:    r.InvoiceID,
		DueDate:      r.DueDate,
		Status:       r.Status,
		ExpiresAt:    r.ExpiresAt,
	}
}

type linkResponse struct {
	Success bool        `json:"success"`
	Request RequestView `json:"request"`
}

type payQuery struct {
	Token     string `query:"token"`
	RequestID string `query:"requestId"`
	Status    string `query:"status"`
	Signature string `query:"sig"`
}

// pay serves both the emailed card link and the provider return URL.
func (m *Module) pay(ctx handler.Context, q payQuery) handler.Response {
	if q.Token == "" && q.RequestID != "" {
		return m.providerReturn(ctx, q)
	}
	if err := validator.Apply(validator.RequiredString("token", q.Token)); err != nil {
		return handler.Error(err)
	}

	r, err := m.requests.Validate(ctx, q.Token, paymentrequest.TypeCardPayment)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(linkResponse{Success: true, Request: newRequestView(r)})
}

// providerReturn settles the outcome carried by the return URL and sends the
// browser on to the portal result page. Failures still redirect, with
// status=error and the error code.
func (m *Module) providerReturn(ctx handler.Context, q payQuery) handler.Response {
	params := url.Values{}

	id, err := uuid.Parse(q.RequestID)
	if err == nil {
		var res *checkout.Result
		res, err = m.checkout.VerifyOutcome(ctx, checkout.VerifyParams{
			RequestID: id,
			Outcome:   checkout.Outcome(q.Status),
			Signature: q.Signature,
		})
		if err == nil {
			params.Set("status", res.Status)
			params.Set("requestId", id.String())
		}
	}
	if err != nil {
		info := handler.Classify(err, Classify)
		m.log.LogAttrs(ctx, info.LogLevel, "provider return not settled",
			logger.Error(err),
			slog.String("request_id", q.RequestID),
			slog.String("reported_status", q.Status),
		)
		params.Set("status", "error")
		params.Set("code", info.Body.Code)
	}

	return handler.Redirect(strings.TrimRight(m.cfg.PublicAppURL, "/") + "/pay/result?" + params.Encode())
}

type ddQuery struct {
	Token string `query:"token"`
}

func (m *Module) ddSetup(ctx handler.Context, q ddQuery) handler.Response {
	if err := validator.Apply(validator.RequiredString("token", q.Token)); err != nil {
		return handler.Error(err)
	}

	r, err := m.requests.Validate(ctx, q.Token, paymentrequest.TypeDDSetup)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(linkResponse{Success: true, Request: newRequestView(r)})
}

const (
	ActionValidateToken        = "validate-token"
	ActionCreateSession        = "create-worldpay-session"
	ActionSubmitMandate        = "submit-dd-mandate"
	ActionVerifyPayment        = "verify-payment"
	ActionCreatePaymentRequest = "create-payment-request"
)

// functionRequest is the union of every action's body.
type functionRequest struct {
	Action      string              `json:"action"`
	Token       string              `json:"token"`
	Type        paymentrequest.Type `json:"type"`
	ReturnURL   string              `json:"returnUrl"`
	MandateData *mandate.Data       `json:"mandateData"`
	RequestID   string              `json:"requestId"`
	Status      string              `json:"status"`
	Signature   string              `json:"sig"`
	Payment     *CreateRequestBody  `json:"payment"`
}

type sessionResponse struct {
	Success              bool   `json:"success"`
	CheckoutURL          string `json:"checkoutUrl"`
	TransactionReference string `json:"transactionReference"`
}

type mandateResponse struct {
	Success          bool      `json:"success"`
	MandateID        uuid.UUID `json:"mandateId"`
	MandateReference string    `json:"mandateReference"`
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Status  string `json:"status"`
}

// function is the portal's single RPC-style endpoint.
func (m *Module) function(ctx handler.Context, req functionRequest) handler.Response {
	switch req.Action {
	case ActionValidateToken:
		if err := validator.Apply(
			validator.RequiredString("token", req.Token),
			validator.RequiredString("type", string(req.Type)),
			validator.InList("type", req.Type, paymentrequest.TypeCardPayment, paymentrequest.TypeDDSetup),
		); err != nil {
			return handler.Error(err)
		}
		r, err := m.requests.Validate(ctx, req.Token, req.Type)
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(linkResponse{Success: true, Request: newRequestView(r)})

	case ActionCreateSession:
		if err := validator.Apply(
			validator.RequiredString("token", req.Token),
			validator.RequiredString("returnUrl", req.ReturnURL),
		); err != nil {
			return handler.Error(err)
		}
		s, err := m.checkout.CreateSession(ctx, req.Token, req.ReturnURL)
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(sessionResponse{
			Success:              true,
			CheckoutURL:          s.CheckoutURL,
			TransactionReference: s.TransactionReference,
		})

	case ActionSubmitMandate:
		if err := validator.Apply(
			validator.RequiredString("token", req.Token),
			validator.Required("mandateData", req.MandateData != nil),
		); err != nil {
			return handler.Error(err)
		}
		meta := reqmeta.FromContext(ctx)
		consent := mandate.Consent{IP: meta.IP, UserAgent: meta.UserAgent}
		if consent.IP == "" {
			consent.IP = reqmeta.ClientIP(ctx.Request())
		}
		if consent.UserAgent == "" {
			consent.UserAgent = ctx.Request().UserAgent()
		}
		md, err := m.mandates.Submit(ctx, req.Token, *req.MandateData, consent)
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(mandateResponse{Success: true, MandateID: md.ID, MandateReference: md.Reference})

	case ActionVerifyPayment:
		if err := validator.Apply(
			validator.RequiredString("requestId", req.RequestID),
			validator.RequiredString("status", req.Status),
		); err != nil {
			return handler.Error(err)
		}
		id, err := uuid.Parse(req.RequestID)
		if err != nil {
			return handler.Error(paymentrequest.ErrNotFound)
		}
		res, err := m.checkout.VerifyOutcome(ctx, checkout.VerifyParams{
			RequestID: id,
			Outcome:   checkout.Outcome(req.Status),
			Signature: req.Signature,
		})
		if err != nil {
			return handler.Error(err)
		}
		return handler.JSON(verifyResponse{Success: true, Status: res.Status})

	case ActionCreatePaymentRequest:
		if !secretMatches(ctx.Request().Header.Get(AdminSecretHeader), m.cfg.AdminSecret) {
			return handler.Error(handler.ErrUnauthorized)
		}
		if err := validator.Apply(validator.Required("payment", req.Payment != nil)); err != nil {
			return handler.Error(err)
		}
		return m.createRequest(ctx, *req.Payment)

	default:
		return handler.Error(ErrUnknownAction)
	}
}
