package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "acclaim/pkg/domain-errors"
)

func TestValidateLevelTable(t *testing.T) {
	require.NoError(t, ValidateLevelTable())
}

func TestLevelFor(t *testing.T) {
	tests := []struct {
		name           string
		classification DomainClassification
		level          CertificationLevel
		fallback       bool
	}{
		{"savoir maps to bronze", ClassificationSavoir, LevelBronze, false},
		{"savoir-faire maps to silver", ClassificationSavoirFaire, LevelSilver, false},
		{"savoir-etre maps to silver", ClassificationSavoirEtre, LevelSilver, false},
		{"savoir-agir maps to platinum", ClassificationSavoirAgir, LevelPlatinum, false},
		{"unknown code falls back to bronze", "SAVOIR_NOUVEAU", LevelBronze, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level, fallback, err := LevelFor(tt.classification)
			require.NoError(t, err)
			assert.Equal(t, tt.level, level)
			assert.Equal(t, tt.fallback, fallback)
		})
	}

	t.Run("missing classification is a precondition failure", func(t *testing.T) {
		_, _, err := LevelFor("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodePrecondition))
	})
}

func TestRevocationGuards(t *testing.T) {
	badge := &Badge{Active: true}
	require.NoError(t, badge.CanRevoke())

	badge.Active = false
	err := badge.CanRevoke()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
}
