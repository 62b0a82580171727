package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jason-s-yu/scoretracker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("boom")
}

func (failingStore) Set(context.Context, string, string) error {
	return errors.New("boom")
}

func TestLoadMissingKey(t *testing.T) {
	s := NewSnapshots(NewMemoryStore(), "", nil)
	assert.Equal(t, DefaultKey, s.Key())

	_, ok := s.Load(context.Background())
	assert.False(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshots(NewMemoryStore(), "k", nil)

	state := models.NewGameState()
	state.Players = []*models.Player{{ID: 1, Name: "Ann"}, {ID: 2, Name: "Bob", Order: 1}}
	state.Rounds = []*models.Round{models.NewRound(1)}
	state.Rounds[0].Scores[2] = 0
	state.GameStatus = models.StatusActive
	state.CurrentPlayerIndex = 1
	require.NoError(t, s.Save(ctx, state))

	got, ok := s.Load(ctx)
	require.True(t, ok)
	assert.Equal(t, state.GameID, got.GameID)
	assert.Equal(t, 1, got.CurrentPlayerIndex)
	v, played := got.Rounds[0].Score(2)
	assert.True(t, played)
	assert.Equal(t, 0, v)
}

func TestLoadFallsBackOnGarbage(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryStore()
	s := NewSnapshots(kv, "k", nil)

	require.NoError(t, kv.Set(ctx, "k", "{not json"))
	_, ok := s.Load(ctx)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "k", `{"gameId":"1","gameStatus":"bogus"}`))
	_, ok = s.Load(ctx)
	assert.False(t, ok)
}

func TestLoadFallsBackOnStoreError(t *testing.T) {
	s := NewSnapshots(failingStore{}, "k", nil)
	_, ok := s.Load(context.Background())
	assert.False(t, ok)
	assert.Error(t, s.Save(context.Background(), models.NewGameState()))
}

func TestDecodeAcceptsBrowserSnapshot(t *testing.T) {
	raw := `{"gameId":"1718000000000","players":[{"id":1,"name":"Ann","order":0,"stars":1},{"id":2,"name":"Bob","order":1,"stars":0}],` +
		`"rounds":[{"roundNum":1,"scores":{"1":0,"2":450},"starsAwarded":{"1":1}},{"roundNum":2,"scores":{},"starsAwarded":{}}],` +
		`"currentRound":2,"currentPlayerIndex":0,"gameStatus":"active","winner":null,"threshold10kTriggered":false,"tieBreakPlayers":null}`

	state, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 450, state.CumulativeTotal(2))
	assert.Equal(t, 1, state.Rounds[0].StarsAwarded[1])
	assert.Nil(t, state.TieBreakPlayers)
}
