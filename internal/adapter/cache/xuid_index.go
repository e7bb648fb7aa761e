package cache

import (
	"fmt"

	"fx-rate-cache/internal/domain/model"
)

// XuidIndex maps normalised currency xuids to currency ids.
type XuidIndex struct {
	ids *BoundedMap[model.Xuid, model.CurrencyID]
}

func NewXuidIndex(capacity int) *XuidIndex {
	return &XuidIndex{ids: NewBoundedMap[model.Xuid, model.CurrencyID](capacity)}
}

// Insert maps raw to id. Repeating a mapping is a no-op; mapping an xuid
// that is already taken to a different id fails with model.ErrSourceRead.
func (x *XuidIndex) Insert(raw string, id model.CurrencyID) error {
	xuid, err := model.NormalizeXuid(raw)
	if err != nil {
		return err
	}
	if existing, ok := x.ids.Get(xuid); ok && existing != id {
		return fmt.Errorf("%w: xuid %q maps to currencies %d and %d", model.ErrSourceRead, xuid, existing, id)
	}
	if err := x.ids.Insert(xuid, id); err != nil {
		return fmt.Errorf("xuid %q: %w", xuid, err)
	}
	return nil
}

func (x *XuidIndex) Resolve(raw string) (model.CurrencyID, error) {
	xuid, err := model.NormalizeXuid(raw)
	if err != nil {
		return 0, err
	}
	id, ok := x.ids.Get(xuid)
	if !ok {
		return 0, fmt.Errorf("%w: %q", model.ErrUnknownCurrency, xuid)
	}
	return id, nil
}

func (x *XuidIndex) Len() int {
	return x.ids.Len()
}

func (x *XuidIndex) Clear() {
	x.ids.Clear()
}
