package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tailoredShirt() Product {
	return Product{
		ID:   "shirt",
		Name: "Tailored shirt",
		Pipeline: []StepDefinition{
			{ID: "cut", Label: "Cut"},
			{ID: "sew", Label: "Sew", RequiredMetadataFields: []string{"operator"}},
			{ID: "ship", Label: "Ship", RequiredMetadataFields: []string{"carrier", "tracking"}},
		},
	}
}

func TestProductStep(t *testing.T) {
	p := tailoredShirt()

	step, ok := p.Step("sew")
	require.True(t, ok)
	assert.Equal(t, "Sew", step.Label)

	_, ok = p.Step("paint")
	assert.False(t, ok)
	assert.Equal(t, []string{"cut", "sew", "ship"}, p.StepIDs())
}

func TestMissingMetadata(t *testing.T) {
	step, _ := tailoredShirt().Step("ship")

	assert.Equal(t, []string{"carrier", "tracking"}, step.MissingMetadata(nil))
	assert.Equal(t, []string{"tracking"}, step.MissingMetadata(map[string]string{"carrier": "ups", "tracking": ""}))
	assert.Empty(t, step.MissingMetadata(map[string]string{"carrier": "ups", "tracking": "1Z"}))
}

func TestInvalidStepError_Details(t *testing.T) {
	err := NewInvalidStepError("paint", []string{"cut", "sew"})

	assert.True(t, errors.Is(err, ErrInvalidStep))
	assert.False(t, errors.Is(err, ErrMissingMetadata))
	assert.Equal(t, KindValidation, KindOf(err))
	assert.Contains(t, err.Error(), `"paint"`)
	assert.Contains(t, err.Error(), "cut, sew")

	var de *Error
	require.True(t, errors.As(err, &de))
	assert.Equal(t, []string{"cut", "sew"}, de.Details["valid_step_ids"])
}

func TestMissingMetadataError_NamesLabelAndFields(t *testing.T) {
	step, _ := tailoredShirt().Step("sew")
	err := NewMissingMetadataError(step, []string{"operator"})

	assert.ErrorIs(t, err, ErrMissingMetadata)
	assert.Contains(t, err.Error(), "Sew")
	assert.Contains(t, err.Error(), "operator")
}

func TestKindOf_ForeignError(t *testing.T) {
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(Upstream("catalog", errors.New("timeout"))))
}
