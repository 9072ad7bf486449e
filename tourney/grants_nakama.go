package tourney

import (
	"context"
	"encoding/json"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	stashStorageCollection = "tourney_stash"
	stashStorageKey        = "items"
)

// NakamaWallet is the wallet slice of runtime.NakamaModule.
type NakamaWallet interface {
	WalletUpdate(ctx context.Context, userID string, changeset map[string]int64, metadata map[string]interface{}, updateLedger bool) (updated map[string]int64, previous map[string]int64, err error)
}

type NakamaGranterModule interface {
	NakamaStorage
	NakamaWallet
}

type stash struct {
	Items []ItemPayload `json:"items"`
}

// NakamaRewardGranter pays currency and levels into the wallet and keeps items in a per-user stash
// object the game client collects from. The stash has no capacity, so nothing overflows.
type NakamaRewardGranter struct {
	nk          NakamaGranterModule
	currencyKey string
	levelsKey   string
}

func NewNakamaRewardGranter(nk NakamaGranterModule, currencyKey, levelsKey string) *NakamaRewardGranter {
	return &NakamaRewardGranter{nk: nk, currencyKey: currencyKey, levelsKey: levelsKey}
}

func (g *NakamaRewardGranter) GrantItems(ctx context.Context, playerID string, items []ItemPayload) ([]ItemPayload, error) {
	if len(items) == 0 {
		return nil, nil
	}

	objects, err := g.nk.StorageRead(ctx, []*runtime.StorageRead{{
		Collection: stashStorageCollection,
		Key:        stashStorageKey,
		UserID:     playerID,
	}})
	if err != nil {
		return nil, err
	}

	current := &stash{}
	version := "*"
	if len(objects) > 0 && objects[0].Value != "" {
		if err := json.Unmarshal([]byte(objects[0].Value), current); err != nil {
			return nil, ErrPayloadDecode
		}
		version = objects[0].Version
	}
	current.Items = append(current.Items, items...)

	value, err := json.Marshal(current)
	if err != nil {
		return nil, ErrPayloadEncode
	}
	_, err = g.nk.StorageWrite(ctx, []*runtime.StorageWrite{{
		Collection:      stashStorageCollection,
		Key:             stashStorageKey,
		UserID:          playerID,
		Value:           string(value),
		Version:         version,
		PermissionRead:  runtime.STORAGE_PERMISSION_OWNER_READ,
		PermissionWrite: runtime.STORAGE_PERMISSION_NO_WRITE,
	}})
	if err != nil {
		return nil, err
	}
	return nil, nil
}

func (g *NakamaRewardGranter) GrantCurrency(ctx context.Context, playerID string, amount int64) error {
	return g.walletAdd(ctx, playerID, g.currencyKey, amount, "tourney_currency")
}

func (g *NakamaRewardGranter) GrantBonusLevels(ctx context.Context, playerID string, levels int) error {
	return g.walletAdd(ctx, playerID, g.levelsKey, int64(levels), "tourney_levels")
}

func (g *NakamaRewardGranter) walletAdd(ctx context.Context, playerID, key string, amount int64, reason string) error {
	if amount <= 0 {
		return nil
	}
	_, _, err := g.nk.WalletUpdate(ctx, playerID, map[string]int64{key: amount}, map[string]interface{}{"reason": reason}, true)
	return err
}
