package checkout

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TransactionReference builds PAY-<8 hex of request id>-<unix>-<4 hex>.
func TransactionReference(requestID uuid.UUID, at time.Time) string {
	b := make([]byte, 2)
	_, _ = rand.Read(b)
	return fmt.Sprintf("PAY-%s-%d-%s", hex.EncodeToString(requestID[:4]), at.Unix(), hex.EncodeToString(b))
}
