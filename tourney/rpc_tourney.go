package tourney

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/heroiclabs/nakama-common/runtime"
)

const (
	RpcIdTourneyCreate      = "tourney_create"
	RpcIdTourneyRemove      = "tourney_remove"
	RpcIdTourneyList        = "tourney_list"
	RpcIdTourneyFinish      = "tourney_finish"
	RpcIdRewardsList        = "tourney_rewards_list"
	RpcIdRewardClaim        = "tourney_reward_claim"
	RpcIdTourneyProgressGet = "tourney_progress_get"
	RpcIdStandingsGet       = "tourney_standings_get"
	RpcIdTourneyEvent       = "tourney_event"
)

type rpcFn func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error)

type nameRequest struct {
	Name string `json:"name"`
}

type rewardsListRequest struct {
	Province bool `json:"province,omitempty"`
}

type rewardClaimRequest struct {
	Tournament string `json:"tournament"`
	Province   bool   `json:"province,omitempty"`
}

type progressRequest struct {
	Tournament string `json:"tournament"`
}

type standingsRequest struct {
	Tournament string `json:"tournament"`
	Limit      int    `json:"limit,omitempty"`
}

// EventRequest reports a game event, or a placed block when BlockPlaced is set.
type EventRequest struct {
	Event
	BlockPlaced bool `json:"block_placed,omitempty"`
}

func (e *Engine) RegisterRpcs(initializer runtime.Initializer) error {
	rpcs := map[string]rpcFn{
		RpcIdTourneyCreate:      rpcTourneyCreate(e),
		RpcIdTourneyRemove:      rpcTourneyRemove(e),
		RpcIdTourneyList:        rpcTourneyList(e),
		RpcIdTourneyFinish:      rpcTourneyFinish(e),
		RpcIdRewardsList:        rpcRewardsList(e),
		RpcIdRewardClaim:        rpcRewardClaim(e),
		RpcIdTourneyProgressGet: rpcTourneyProgressGet(e),
		RpcIdStandingsGet:       rpcStandingsGet(e),
		RpcIdTourneyEvent:       rpcTourneyEvent(e),
	}
	for id, fn := range rpcs {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return err
		}
	}
	return nil
}

func sessionUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	return userID, ok && userID != ""
}

// Admin RPCs may only be called server to server, without a user session.
func requireServer(ctx context.Context, logger runtime.Logger) error {
	if _, ok := sessionUserID(ctx); ok {
		logger.Warn("Rejected admin RPC from a user session")
		return ErrPermissionDenied
	}
	return nil
}

func requireUser(ctx context.Context, logger runtime.Logger) (string, error) {
	userID, ok := sessionUserID(ctx)
	if !ok {
		logger.Error("No user ID in context")
		return "", ErrNoSessionUser
	}
	return userID, nil
}

func decodePayload(logger runtime.Logger, payload string, target interface{}) error {
	if payload == "" {
		return ErrPayloadEmpty
	}
	if err := json.Unmarshal([]byte(payload), target); err != nil {
		logger.Error("Failed to unmarshal request: %v", err)
		return ErrPayloadDecode
	}
	return nil
}

func encodeResponse(logger runtime.Logger, response interface{}) (string, error) {
	data, err := json.Marshal(response)
	if err != nil {
		logger.Error("Failed to marshal response: %v", err)
		return "", ErrPayloadEncode
	}
	return string(data), nil
}

// rpcError maps plain errors to runtime errors so Nakama reports a proper status code.
func rpcError(err error) error {
	var runtimeErr *runtime.Error
	if errors.As(err, &runtimeErr) {
		return runtimeErr
	}
	return ErrInternal
}

func rpcTourneyCreate(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if err := requireServer(ctx, logger); err != nil {
			return "", err
		}
		request := &CreateRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		tournament, err := e.Create(ctx, request)
		if err != nil {
			logger.Error("Failed to create tournament: %v", err)
			return "", rpcError(err)
		}
		return encodeResponse(logger, tournament)
	}
}

func rpcTourneyRemove(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if err := requireServer(ctx, logger); err != nil {
			return "", err
		}
		request := &nameRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		removed, err := e.Remove(ctx, request.Name)
		if err != nil {
			logger.Error("Failed to remove tournament: %v", err)
			return "", rpcError(err)
		}
		return encodeResponse(logger, map[string]bool{"removed": removed})
	}
}

func rpcTourneyList(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		return encodeResponse(logger, map[string]interface{}{"tournaments": e.Catalog.List()})
	}
}

func rpcTourneyFinish(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if err := requireServer(ctx, logger); err != nil {
			return "", err
		}
		request := &nameRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		finalized, err := e.Finish(ctx, request.Name)
		if err != nil {
			logger.Error("Failed to finish tournament: %v", err)
			return "", rpcError(err)
		}
		return encodeResponse(logger, map[string]bool{"finalized": finalized})
	}
}

func rpcRewardsList(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := requireUser(ctx, logger)
		if err != nil {
			return "", err
		}
		request := &rewardsListRequest{}
		if payload != "" {
			if err := decodePayload(logger, payload, request); err != nil {
				return "", err
			}
		}
		rewards, err := e.Claims.Pending(ctx, userID, request.Province)
		if err != nil {
			return "", rpcError(err)
		}
		return encodeResponse(logger, map[string]interface{}{"rewards": rewards})
	}
}

func rpcRewardClaim(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := requireUser(ctx, logger)
		if err != nil {
			return "", err
		}
		request := &rewardClaimRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		result, err := e.Claims.Claim(ctx, userID, request.Tournament, request.Province)
		if err != nil {
			return "", rpcError(err)
		}
		return encodeResponse(logger, result)
	}
}

func rpcTourneyProgressGet(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		userID, err := requireUser(ctx, logger)
		if err != nil {
			return "", err
		}
		request := &progressRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		key := NormalizeName(request.Tournament)
		return encodeResponse(logger, map[string]interface{}{
			"tournament": key,
			"progress":   e.Progress.GetProgress(userID, key),
		})
	}
}

func rpcStandingsGet(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		request := &standingsRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		tournament, err := e.Catalog.Get(request.Tournament)
		if err != nil {
			return "", rpcError(err)
		}
		limit := request.Limit
		if limit <= 0 {
			limit = DefaultRewardedPositions + 1
		}
		standings, err := e.Standings.Top(ctx, tournament.Key(), tournament.TargetMode, limit)
		if err != nil {
			return "", rpcError(err)
		}
		return encodeResponse(logger, map[string]interface{}{
			"tournament": tournament.Key(),
			"standings":  standings,
		})
	}
}

func rpcTourneyEvent(e *Engine) rpcFn {
	return func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
		if err := requireServer(ctx, logger); err != nil {
			return "", err
		}
		request := &EventRequest{}
		if err := decodePayload(logger, payload, request); err != nil {
			return "", err
		}
		if request.BlockPlaced {
			e.Events.BlockPlaced(request.Location)
			return encodeResponse(logger, map[string]interface{}{"updated": []string{}})
		}
		updated, err := e.Events.Handle(ctx, request.Event)
		if err != nil {
			return "", rpcError(err)
		}
		return encodeResponse(logger, map[string]interface{}{"updated": updated})
	}
}
