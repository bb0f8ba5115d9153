package framework

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAggregatedError(t *testing.T) {
	var errs AggregatedError
	require.NoError(t, errs.Add(nil, nil).Aggregate())

	first := errors.New("first")
	errs.Add(first)
	require.Equal(t, "first", errs.Aggregate().Error())

	second := errors.New("second")
	err := errs.Add(nil, second).Aggregate()
	require.Equal(t, "Multiple errors:\nfirst\nsecond", err.Error())
	require.True(t, errors.Is(err, first))
	require.True(t, errors.Is(err, second))
}
