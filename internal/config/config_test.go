package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/auramd-consensus-server/internal/domain"
)

func TestNewManagerDefaults(t *testing.T) {
	manager, err := NewManager()
	require.NoError(t, err)

	cfg := manager.GetConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Engine.MaxDifferentialDiagnoses)
	assert.InDelta(t, 0.2, cfg.Engine.AgreementThreshold, 1e-9)
	assert.InDelta(t, 0.1, cfg.Engine.AgreementBonus, 1e-9)
	assert.InDelta(t, 0.8, cfg.Engine.SingleSourcePenalty, 1e-9)
	assert.Equal(t, "sqlite", cfg.Review.Backend)
	assert.True(t, cfg.Sources.OpenAI.Enabled)
	assert.True(t, cfg.Sources.Anthropic.Enabled)

	assert.NoError(t, manager.Validate())
}

func TestValidateEngine(t *testing.T) {
	tests := []struct {
		name    string
		cfg     domain.EngineConfig
		wantErr string
	}{
		{
			name: "valid",
			cfg:  domain.EngineConfig{MaxDifferentialDiagnoses: 10, AgreementThreshold: 0.2, AgreementBonus: 0.1, SingleSourcePenalty: 0.8},
		},
		{
			name:    "zero max results",
			cfg:     domain.EngineConfig{MaxDifferentialDiagnoses: 0, AgreementThreshold: 0.2, AgreementBonus: 0.1, SingleSourcePenalty: 0.8},
			wantErr: "engine.max_differential_diagnoses",
		},
		{
			name:    "negative bonus",
			cfg:     domain.EngineConfig{MaxDifferentialDiagnoses: 10, AgreementThreshold: 0.2, AgreementBonus: -0.1, SingleSourcePenalty: 0.8},
			wantErr: "engine.agreement_bonus",
		},
		{
			name:    "threshold above one",
			cfg:     domain.EngineConfig{MaxDifferentialDiagnoses: 10, AgreementThreshold: 1.5, AgreementBonus: 0.1, SingleSourcePenalty: 0.8},
			wantErr: "engine.agreement_threshold",
		},
		{
			name:    "zero penalty",
			cfg:     domain.EngineConfig{MaxDifferentialDiagnoses: 10, AgreementThreshold: 0.2, AgreementBonus: 0.1, SingleSourcePenalty: 0},
			wantErr: "engine.single_source_penalty",
		},
		{
			name:    "penalty above one",
			cfg:     domain.EngineConfig{MaxDifferentialDiagnoses: 10, AgreementThreshold: 0.2, AgreementBonus: 0.1, SingleSourcePenalty: 1.2},
			wantErr: "engine.single_source_penalty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var cfgErr *domain.ConfigurationError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, tt.wantErr, cfgErr.Field)
		})
	}
}
