package payments

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/handler"
	"github.com/linehub/billing/svc/mandate"
	"github.com/linehub/billing/svc/paymentrequest"
)

// CreateRequestBody is an operator-issued payment link.
type CreateRequestBody struct {
	Type          paymentrequest.Type `json:"type"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
	Description   string              `json:"description"`
	UserID        uuid.UUID           `json:"userId"`
	CustomerName  string              `json:"customerName"`
	CustomerEmail string              `json:"customerEmail"`
	AccountNumber string              `json:"accountNumber"`
	InvoiceID     *uuid.UUID          `json:"invoiceId"`
	DueDate       string              `json:"dueDate"`
}

type createdResponse struct {
	Success   bool      `json:"success"`
	RequestID uuid.UUID `json:"requestId"`
	Link      string    `json:"link"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (m *Module) adminCreateRequest(ctx handler.Context, body CreateRequestBody) handler.Response {
	return m.createRequest(ctx, body)
}

func (m *Module) createRequest(ctx handler.Context, body CreateRequestBody) handler.Response {
	p := paymentrequest.CreateParams{
		Type:        body.Type,
		Amount:      body.Amount,
		Currency:    body.Currency,
		Description: body.Description,
		Customer: paymentrequest.Customer{
			UserID:        body.UserID,
			Name:          body.CustomerName,
			Email:         body.CustomerEmail,
			AccountNumber: body.AccountNumber,
		},
		InvoiceID: body.InvoiceID,
	}
	if body.DueDate != "" {
		due, err := time.Parse(time.DateOnly, body.DueDate)
		if err != nil {
			return handler.Error(ErrInvalidDate)
		}
		p.DueDate = &due
	}

	issued, err := m.requests.Request(ctx, p)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(createdResponse{
		Success:   true,
		RequestID: issued.Request.ID,
		Link:      issued.Link,
		ExpiresAt: issued.Request.ExpiresAt,
	}, handler.WithJSONStatus(http.StatusCreated))
}

type mandatePath struct {
	ID uuid.UUID `path:"id" json:"-"`
}

type mandateView struct {
	Success bool             `json:"success"`
	Mandate *mandate.Mandate `json:"mandate"`
}

func (m *Module) adminGetMandate(ctx handler.Context, p mandatePath) handler.Response {
	md, err := m.mandates.Get(ctx, p.ID)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(mandateView{Success: true, Mandate: md})
}

type transitionBody struct {
	ID     uuid.UUID      `path:"id" json:"-"`
	Status mandate.Status `json:"status"`
}

func (m *Module) adminTransitionMandate(ctx handler.Context, b transitionBody) handler.Response {
	md, err := m.mandates.Transition(ctx, b.ID, b.Status, actor(ctx.Request()))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(mandateView{Success: true, Mandate: md})
}

type bankDetailsView struct {
	Success     bool                 `json:"success"`
	BankDetails *mandate.BankDetails `json:"bankDetails"`
}

func (m *Module) adminRevealBankDetails(ctx handler.Context, p mandatePath) handler.Response {
	bd, err := m.mandates.RevealBankDetails(ctx, p.ID, actor(ctx.Request()))
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(bankDetailsView{Success: true, BankDetails: bd})
}
