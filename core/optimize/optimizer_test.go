package optimize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbin/fleetops/core/model"
)

func TestOptimizeSingleBin(t *testing.T) {
	opt := NewFillLevelOptimizer(0, 0)
	stops, duration := opt.Optimize([]model.Bin{{ID: "b1", FillLevel: 90}})
	require.Len(t, stops, 1)
	assert.Equal(t, "b1", stops[0].BinID)
	assert.Equal(t, 1, stops[0].Order)
	assert.Equal(t, 0, stops[0].EstimatedOffsetMinute)
	assert.Equal(t, 15, duration)
}

func TestOptimizeOrdersByFillDescending(t *testing.T) {
	opt := NewFillLevelOptimizer(15, 10)
	stops, duration := opt.Optimize([]model.Bin{
		{ID: "b1", FillLevel: 90},
		{ID: "b2", FillLevel: 95},
	})
	require.Len(t, stops, 2)
	assert.Equal(t, "b2", stops[0].BinID)
	assert.Equal(t, "b1", stops[1].BinID)
	assert.Equal(t, 0, stops[0].EstimatedOffsetMinute)
	assert.Equal(t, 25, stops[1].EstimatedOffsetMinute)
	assert.Equal(t, 40, duration)
}

func TestOptimizeTieBreaksOnID(t *testing.T) {
	opt := NewFillLevelOptimizer(15, 10)
	stops, _ := opt.Optimize([]model.Bin{
		{ID: "b9", FillLevel: 90},
		{ID: "b1", FillLevel: 90},
		{ID: "b5", FillLevel: 90},
	})
	require.Len(t, stops, 3)
	assert.Equal(t, []string{"b1", "b5", "b9"}, []string{stops[0].BinID, stops[1].BinID, stops[2].BinID})
}

func TestOptimizeEmptyInput(t *testing.T) {
	opt := NewFillLevelOptimizer(15, 10)
	stops, duration := opt.Optimize(nil)
	assert.Nil(t, stops)
	assert.Zero(t, duration)
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	opt := NewFillLevelOptimizer(15, 10)
	bins := []model.Bin{
		{ID: "b1", FillLevel: 10},
		{ID: "b2", FillLevel: 99},
	}
	_, _ = opt.Optimize(bins)
	assert.Equal(t, "b1", bins[0].ID)
}

func TestOptimizeOutputValidatesAsRoute(t *testing.T) {
	opt := NewFillLevelOptimizer(15, 10)
	stops, duration := opt.Optimize([]model.Bin{
		{ID: "b1", FillLevel: 91},
		{ID: "b2", FillLevel: 87},
		{ID: "b3", FillLevel: 99},
	})
	r := model.Route{ID: "r1", Type: model.RouteEmergency, Stops: stops, EstimatedDuration: duration}
	require.NoError(t, r.Validate())
	assert.Equal(t, 65, duration)
}
