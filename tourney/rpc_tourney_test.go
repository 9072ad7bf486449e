package tourney

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/heroiclabs/nakama-common/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func userContext(userID string) context.Context {
	return context.WithValue(context.Background(), runtime.RUNTIME_CTX_USER_ID, userID)
}

func TestRpcCreateIsServerOnly(t *testing.T) {
	engine, _, _, _ := testEngine(t, nil)
	logger := &testLoggerImpl{t}
	create := rpcTourneyCreate(engine)
	payload := `{"name":"Weekly Mining","duration":"weekly","objective":"MINE_BLOCK:STONE","reward_pool":[{"item":"gem"}]}`

	_, err := create(userContext("a"), logger, nil, nil, payload)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	response, err := create(context.Background(), logger, nil, nil, payload)
	require.NoError(t, err)
	var tournament Tournament
	require.NoError(t, json.Unmarshal([]byte(response), &tournament))
	assert.Equal(t, "weekly_mining", tournament.Key())
	assert.Equal(t, TargetPlayer, tournament.TargetMode)

	_, err = create(context.Background(), logger, nil, nil, "")
	assert.ErrorIs(t, err, ErrPayloadEmpty)
	_, err = create(context.Background(), logger, nil, nil, "{")
	assert.ErrorIs(t, err, ErrPayloadDecode)
	_, err = create(context.Background(), logger, nil, nil, `{"name":"x","objective":"MINE_BLOCK:STONE"}`)
	assert.ErrorIs(t, err, ErrBadInput)
}

func TestRpcEventProgressAndStandings(t *testing.T) {
	engine, _, _, _ := testEngine(t, nil)
	logger := &testLoggerImpl{t}
	createEnded(t, engine, "weekly_mining", stoneObjective, "")

	event := rpcTourneyEvent(engine)
	for _, player := range []string{"a", "a", "b"} {
		response, err := event(context.Background(), logger, nil, nil, `{"player_id":"`+player+`","objective":"MINE_BLOCK:STONE"}`)
		require.NoError(t, err)
		assert.JSONEq(t, `{"updated":["weekly_mining"]}`, response)
	}
	_, err := event(userContext("a"), logger, nil, nil, `{"player_id":"a","objective":"MINE_BLOCK:STONE"}`)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	response, err := rpcTourneyProgressGet(engine)(userContext("a"), logger, nil, nil, `{"tournament":"Weekly Mining"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tournament":"weekly_mining","progress":2}`, response)

	_, err = rpcTourneyProgressGet(engine)(context.Background(), logger, nil, nil, `{"tournament":"weekly_mining"}`)
	assert.ErrorIs(t, err, ErrNoSessionUser)

	response, err = rpcStandingsGet(engine)(userContext("a"), logger, nil, nil, `{"tournament":"weekly_mining"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"tournament":"weekly_mining","standings":[{"id":"a","score":2},{"id":"b","score":1}]}`, response)

	_, err = rpcStandingsGet(engine)(userContext("a"), logger, nil, nil, `{"tournament":"unknown"}`)
	assert.ErrorIs(t, err, ErrTournamentNotFound)
}

func TestRpcFinishListAndClaim(t *testing.T) {
	engine, _, _, _ := testEngine(t, nil)
	logger := &testLoggerImpl{t}
	createEnded(t, engine, "weekly_mining", stoneObjective, "")
	seedProgress(t, engine.Progress, "weekly_mining", map[string]int64{"a": 3})

	response, err := rpcTourneyList(engine)(userContext("a"), logger, nil, nil, "")
	require.NoError(t, err)
	assert.Contains(t, response, `"weekly_mining"`)

	response, err = rpcTourneyFinish(engine)(context.Background(), logger, nil, nil, `{"name":"weekly_mining"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"finalized":true}`, response)

	response, err = rpcRewardsList(engine)(userContext("a"), logger, nil, nil, "")
	require.NoError(t, err)
	var listed struct {
		Rewards map[string]*RewardRecord `json:"rewards"`
	}
	require.NoError(t, json.Unmarshal([]byte(response), &listed))
	require.Contains(t, listed.Rewards, "weekly_mining")
	assert.Equal(t, int64(3), listed.Rewards["weekly_mining"].Score)

	claim := rpcRewardClaim(engine)
	response, err = claim(userContext("a"), logger, nil, nil, `{"tournament":"weekly_mining"}`)
	require.NoError(t, err)
	var result ClaimResult
	require.NoError(t, json.Unmarshal([]byte(response), &result))
	assert.Equal(t, 0, result.Reward.Position)

	_, err = claim(userContext("a"), logger, nil, nil, `{"tournament":"weekly_mining"}`)
	assert.ErrorIs(t, err, ErrRewardNotFound)
}

func TestRpcRemove(t *testing.T) {
	engine, _, _, _ := testEngine(t, nil)
	logger := &testLoggerImpl{t}
	createEnded(t, engine, "weekly_mining", stoneObjective, "")

	remove := rpcTourneyRemove(engine)
	response, err := remove(context.Background(), logger, nil, nil, `{"name":"Weekly Mining"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed":true}`, response)

	response, err = remove(context.Background(), logger, nil, nil, `{"name":"Weekly Mining"}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"removed":false}`, response)
}

func TestRpcErrorKeepsRuntimeErrors(t *testing.T) {
	assert.Equal(t, ErrTournamentNotFound, rpcError(ErrTournamentNotFound))
	assert.Equal(t, ErrPersist, rpcError(ErrPersist))
	assert.Equal(t, ErrInternal, rpcError(assert.AnError))
}
