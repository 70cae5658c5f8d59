package settings

import (
	"context"
	"sync/atomic"

	"github.com/SakuraBurst/rewardbot/internal/referrer/types"
	"github.com/go-faster/errors"
)

type settingsStore interface {
	LoadSettings(ctx context.Context, defaults types.SiteSettings) (types.SiteSettings, error)
	SaveSettings(ctx context.Context, s types.SiteSettings) error
}

// Holder keeps the site settings snapshot shared by all requests.
type Holder struct {
	store    settingsStore
	defaults types.SiteSettings
	current  atomic.Pointer[types.SiteSettings]
}

func NewHolder(store settingsStore, defaults types.SiteSettings) *Holder {
	h := &Holder{store: store, defaults: defaults}
	h.current.Store(&defaults)
	return h
}

// Load reads the settings row, creating it from defaults when it does not exist.
func (h *Holder) Load(ctx context.Context) error {
	s, err := h.store.LoadSettings(ctx, h.defaults)
	if err != nil {
		return errors.Wrap(err, "store.LoadSettings failed: ")
	}
	h.current.Store(&s)
	return nil
}

func (h *Holder) Get() types.SiteSettings {
	return *h.current.Load()
}

// Update persists s and replaces the snapshot.
func (h *Holder) Update(ctx context.Context, s types.SiteSettings) error {
	if s.WithdrawalMinAmount.IsNegative() || s.ReferralCost.IsNegative() {
		return ErrNegativeSetting
	}
	if err := h.store.SaveSettings(ctx, s); err != nil {
		return errors.Wrap(err, "store.SaveSettings failed: ")
	}
	h.current.Store(&s)
	return nil
}

var ErrNegativeSetting = errors.New("settings must not be negative")
