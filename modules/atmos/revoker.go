package atmos

import (
	"context"

	"github.com/dmitrymomot/subpay/svc/cards"
)

// Revoker removes saved card tokens at the provider on cancellation.
// It satisfies the canceller's TokenRevoker; upstream tolerates failures,
// so it only reports them.
type Revoker struct {
	gw Gateway
}

func NewRevoker(gw Gateway) *Revoker {
	return &Revoker{gw: gw}
}

func (r *Revoker) RevokeToken(ctx context.Context, card cards.SavedCard) error {
	return r.gw.RemoveCard(ctx, card.Token)
}
