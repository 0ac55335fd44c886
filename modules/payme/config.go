package payme

import "time"

type Config struct {
	MerchantID string `env:"PAYME_MERCHANT_ID,required"` // MerchantID identifies the cash register in checkout links.
	Login      string `env:"PAYME_LOGIN" envDefault:"Paycom"`
	Key        string `env:"PAYME_KEY,required"` // Key is the basic-auth password the provider sends with every call.

	// PendingTimeout bounds how long a created transaction may stay unpaid
	// before perform attempts are refused with a timeout cancellation.
	PendingTimeout time.Duration `env:"PAYME_PENDING_TIMEOUT" envDefault:"15m"`
}
