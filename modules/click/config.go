package click

type Config struct {
	ServiceID      string `env:"CLICK_SERVICE_ID,required"`       // ServiceID is the merchant service id issued by the provider.
	MerchantID     string `env:"CLICK_MERCHANT_ID,required"`      // MerchantID identifies the merchant in checkout links.
	SecretKey      string `env:"CLICK_SECRET_KEY,required"`       // SecretKey signs and verifies callback requests.
	MerchantUserID string `env:"CLICK_MERCHANT_USER_ID,required"` // MerchantUserID is required by the checkout link format.
}
