package billing_test

import (
	"errors"
	"testing"

	"github.com/fieldcrm/crm-api/internal/billing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	t.Run("missing base work", func(t *testing.T) {
		err := billing.Validate(&billing.Draft{Addons: []billing.Addon{{Code: "PKU", Quantity: 1}}})
		require.Error(t, err)
		assert.ErrorIs(t, err, billing.ErrBaseWorkRequired)

		var ruleErr *billing.RuleError
		require.True(t, errors.As(err, &ruleErr))
		assert.Equal(t, billing.RuleBaseRequired, ruleErr.Rule)
	})

	t.Run("nil draft", func(t *testing.T) {
		assert.ErrorIs(t, billing.Validate(nil), billing.ErrBaseWorkRequired)
	})

	t.Run("override base with activation", func(t *testing.T) {
		for _, base := range []string{"P1P", "P2P", "P3P", "PUTD", "DU"} {
			err := billing.Validate(&billing.Draft{
				BaseWork:   base,
				Activation: &billing.Activation{Type: "I_1P"},
			})
			assert.ErrorIs(t, err, billing.ErrActivationNotAllowed, base)
			assert.EqualError(t, err, "activation not allowed for override base work")
		}
	})

	t.Run("override base without activation", func(t *testing.T) {
		assert.NoError(t, billing.Validate(&billing.Draft{BaseWork: "P1P"}))
	})

	t.Run("multiroom limit", func(t *testing.T) {
		draft := &billing.Draft{
			BaseWork:   "W1",
			Activation: &billing.Activation{Type: "I_2P", MultiroomCount: 4},
		}
		assert.ErrorIs(t, billing.Validate(draft), billing.ErrMultiroomLimitExceeded)

		draft.Activation.MultiroomCount = 3
		assert.NoError(t, billing.Validate(draft))
	})

	t.Run("DMR without activation", func(t *testing.T) {
		err := billing.Validate(&billing.Draft{
			BaseWork: "W1",
			Addons:   []billing.Addon{{Code: "DMR", Quantity: 1}},
		})
		assert.ErrorIs(t, err, billing.ErrDMRRequiresActivation)
	})

	t.Run("first violation wins", func(t *testing.T) {
		// Override base with activation and too many multiroom units: rule 2 is reported.
		err := billing.Validate(&billing.Draft{
			BaseWork:   "DU",
			Activation: &billing.Activation{Type: "I_1P", MultiroomCount: 5},
		})
		assert.ErrorIs(t, err, billing.ErrActivationNotAllowed)
	})
}

func TestBuildDraft(t *testing.T) {
	catalog := billing.NewCatalog(
		[]string{"W1", "W2", "P1P", "DU"},
		[]string{"I_1P", "I_2P", "I_3P"},
		[]string{"DMR", "PKU"},
	)

	t.Run("maps base activation and addons", func(t *testing.T) {
		draft, err := billing.BuildDraft([]billing.WorkCode{
			{Code: "w1", Quantity: 1},
			{Code: "I_2P", Quantity: 1},
			{Code: "DMR", Quantity: 2},
			{Code: "PKU", Quantity: 3},
		}, catalog)
		require.NoError(t, err)
		assert.Equal(t, "W1", draft.BaseWork)
		require.NotNil(t, draft.Activation)
		assert.Equal(t, "I_2P", draft.Activation.Type)
		assert.Equal(t, 2, draft.Activation.MultiroomCount)
		assert.Equal(t, []billing.Addon{{Code: "DMR", Quantity: 2}, {Code: "PKU", Quantity: 3}}, draft.Addons)
		assert.NoError(t, billing.Validate(draft))

		assert.Equal(t, []billing.Line{
			{Code: "W1", Quantity: 1},
			{Code: "I_2P", Quantity: 1},
			{Code: "DMR", Quantity: 2},
			{Code: "PKU", Quantity: 3},
		}, draft.Lines())
	})

	t.Run("repeated DMR adds up to the multiroom count", func(t *testing.T) {
		draft, err := billing.BuildDraft([]billing.WorkCode{
			{Code: "W2"}, {Code: "I_1P"}, {Code: "DMR", Quantity: 2}, {Code: "DMR", Quantity: 2},
		}, catalog)
		require.NoError(t, err)
		assert.Equal(t, 4, draft.Activation.MultiroomCount)
		assert.ErrorIs(t, billing.Validate(draft), billing.ErrMultiroomLimitExceeded)
	})

	t.Run("two base codes", func(t *testing.T) {
		_, err := billing.BuildDraft([]billing.WorkCode{{Code: "W1"}, {Code: "W2"}}, catalog)
		assert.ErrorIs(t, err, billing.ErrMultipleBaseWork)
	})

	t.Run("two activations", func(t *testing.T) {
		_, err := billing.BuildDraft([]billing.WorkCode{{Code: "W1"}, {Code: "I_1P"}, {Code: "I_3P"}}, catalog)
		assert.ErrorIs(t, err, billing.ErrMultipleActivations)
	})

	t.Run("unknown code", func(t *testing.T) {
		_, err := billing.BuildDraft([]billing.WorkCode{{Code: "W1"}, {Code: "XYZ"}}, catalog)
		assert.ErrorIs(t, err, billing.ErrUnknownWorkCode)
	})
}
