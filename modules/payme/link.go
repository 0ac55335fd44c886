package payme

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/svc/billing"
)

const checkoutBase = "https://checkout.paycom.uz/"

// CheckoutURL builds the provider's payment-initiation link. The path
// segment is a base64 bundle of the cash register id,the amount in minor units
// and the account fields the RPC calls later echo back.
func CheckoutURL(cfg Config, planID string, userID uuid.UUID, amount billing.Amount) string {
	params := fmt.Sprintf("m=%s;ac.user_id=%s;ac.plan_id=%s;a=%d",
		cfg.MerchantID, userID.String(), planID, int64(amount))
	return checkoutBase + base64.StdEncoding.EncodeToString([]byte(params))
}
