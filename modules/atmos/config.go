package atmos

import "time"

type Config struct {
	BaseURL        string `env:"ATMOS_BASE_URL" envDefault:"https://partner.atmos.uz"`
	ConsumerKey    string `env:"ATMOS_CONSUMER_KEY,required"`    // ConsumerKey authenticates the bearer-token request.
	ConsumerSecret string `env:"ATMOS_CONSUMER_SECRET,required"` // ConsumerSecret pairs with the key.
	StoreID        string `env:"ATMOS_STORE_ID,required"`        // StoreID identifies the merchant in pay calls.

	// APITimeout bounds every outbound gateway call.
	APITimeout time.Duration `env:"ATMOS_API_TIMEOUT" envDefault:"10s"`
}
