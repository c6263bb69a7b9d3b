package scene

import (
	"testing"

	"scene-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollapseForFriend(t *testing.T) {
	raw := models.ScenePlan{
		{Type: models.StepWorld, Description: "Вечер, кафе"},
		{Type: models.StepThoughts, CharacterID: "c2", Description: "Лев замечает грусть"},
		{Type: models.StepSpeech, CharacterID: "c1", Description: "Анна спрашивает, как дела"},
		{Type: models.StepWorld, Description: "Музыка стихает"},
		{Type: models.StepSpeech, CharacterID: "c2", Description: "Лев предлагает прогуляться"},
	}

	t.Run("friend id wins", func(t *testing.T) {
		got, err := CollapseForFriend(raw, "friend")
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, models.StepSpeech, got[0].Type)
		assert.Equal(t, "friend", got[0].CharacterID)
		assert.Equal(t, "Лев замечает грусть\nАнна спрашивает, как дела\nЛев предлагает прогуляться", got[0].Description)
	})

	t.Run("first actor when no friend", func(t *testing.T) {
		got, err := CollapseForFriend(raw, "")
		require.NoError(t, err)
		assert.Equal(t, "c2", got[0].CharacterID)
		assert.NoError(t, got.Validate(models.ScenePolicy{MaxBeats: 1, MaxBeatsPerActor: 1}))
	})

	t.Run("world only plan", func(t *testing.T) {
		got, err := CollapseForFriend(models.ScenePlan{{Type: models.StepWorld, Description: "Тишина"}}, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Тишина", got[0].Description)
	})

	t.Run("no speaker", func(t *testing.T) {
		_, err := CollapseForFriend(models.ScenePlan{{Type: models.StepWorld, Description: "Тишина"}}, "")
		assert.ErrorIs(t, err, models.ErrInvalidPlan)
	})

	t.Run("raw plan is untouched", func(t *testing.T) {
		before := append(models.ScenePlan(nil), raw...)
		_, _ = CollapseForFriend(raw, "friend")
		assert.Equal(t, before, raw)
	})
}
