package invoicepdf

import (
	"context"
	"fmt"

	"github.com/linehub/billing/pkg/objectstore"
	"github.com/linehub/billing/svc/billing"
)

// ObjectPutter is the part of objectstore.Store the archive needs.
type ObjectPutter interface {
	Put(ctx context.Context, obj objectstore.Object) (string, error)
}

// Archive stores rendered invoices as <user>/<yyyy>/<number>.pdf.
type Archive struct {
	store ObjectPutter
}

// NewArchive wraps store. Panics if store is nil.
func NewArchive(store ObjectPutter) *Archive {
	if store == nil {
		panic("invoicepdf: object store is required")
	}
	return &Archive{store: store}
}

// Archive implements billing.Archiver.
func (a *Archive) Archive(ctx context.Context, inv *billing.Invoice, pdf []byte) (string, error) {
	return a.store.Put(ctx, objectstore.Object{
		Key:         fmt.Sprintf("%s/%s/%s.pdf", inv.UserID, inv.BillingPeriodStart.Format("2006"), inv.Number),
		ContentType: "application/pdf",
		Body:        pdf,
		Metadata: map[string]string{
			"invoice-id":     inv.ID.String(),
			"invoice-number": inv.Number,
		},
	})
}
