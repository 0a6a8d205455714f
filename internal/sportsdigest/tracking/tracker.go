package tracking

import (
	"context"
	"log/slog"
)

// Store records engagement.
type Store interface {
	RecordOpen(ctx context.Context, deliveryID string) (bool, error)
	RecordClick(ctx context.Context, deliveryID, url string) error
}

// Tracker records opens and clicks coming back from delivered emails.
type Tracker struct {
	store  Store
	signer *LinkSigner
	logger *slog.Logger
}

func NewTracker(store Store, signer *LinkSigner) *Tracker {
	return &Tracker{store: store, signer: signer, logger: slog.Default()}
}

// RecordOpen sets opened_at on the first call; later calls are no-ops.
func (t *Tracker) RecordOpen(ctx context.Context, deliveryID string) (bool, error) {
	first, err := t.store.RecordOpen(ctx, deliveryID)
	if err != nil {
		return false, err
	}
	if first {
		t.logger.Debug("delivery opened", "delivery", deliveryID)
	}
	return first, nil
}

// RecordClick appends url to the delivery's clicked links and bumps its counter.
func (t *Tracker) RecordClick(ctx context.Context, deliveryID, url string) error {
	return t.store.RecordClick(ctx, deliveryID, url)
}

// Redirect verifies a signed click token, records the click and returns the
// destination URL.
func (t *Tracker) Redirect(ctx context.Context, token string) (string, error) {
	claims, err := t.signer.Verify(token)
	if err != nil {
		return "", err
	}
	if err := t.store.RecordClick(ctx, claims.DeliveryID, claims.URL); err != nil {
		// the reader still gets where they were going
		t.logger.Warn("record click failed", "delivery", claims.DeliveryID, "error", err)
	}
	return claims.URL, nil
}
