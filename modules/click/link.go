package click

import (
	"net/url"

	"github.com/google/uuid"

	"github.com/dmitrymomot/subpay/svc/billing"
)

const checkoutBase = "https://my.click.uz/services/pay"

// CheckoutURL builds the provider's payment-initiation link. The
// transaction_param carries the "planID.userID" reference the callback
// later presents as merchant_trans_id.
func CheckoutURL(cfg Config, planID string, userID uuid.UUID, amount billing.Amount) string {
	q := url.Values{}
	q.Set("service_id", cfg.ServiceID)
	q.Set("merchant_id", cfg.MerchantID)
	q.Set("merchant_user_id", cfg.MerchantUserID)
	q.Set("amount", amount.MajorString())
	q.Set("transaction_param", planID+"."+userID.String())
	return checkoutBase + "?" + q.Encode()
}
