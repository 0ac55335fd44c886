package telegram

import "time"

type Config struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN,required"`

	// SendTimeout bounds each outbound message; notifications run after
	// ledger commits and must never hang a request.
	SendTimeout time.Duration `env:"TELEGRAM_SEND_TIMEOUT" envDefault:"5s"`
}
