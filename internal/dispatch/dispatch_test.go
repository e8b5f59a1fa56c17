package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_UnknownMethod(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Dispatch(context.Background(), "doesNotExist", "agent-1", time.Time{}, nil)
	require.Error(t, err)
	var dErr *Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, KindInvalidParams, dErr.Kind)
}

func TestDispatch_WrongParamType(t *testing.T) {
	d := &Dispatcher{}
	_, err := d.Dispatch(context.Background(), "queryDecisions", "agent-1", time.Time{}, "not-the-right-type")
	require.Error(t, err)
	var dErr *Error
	require.ErrorAs(t, err, &dErr)
	assert.Equal(t, KindInvalidParams, dErr.Kind)
}

func TestDispatch_GetNeighborsNilGraphReturnsEmpty(t *testing.T) {
	d := &Dispatcher{}
	out, err := d.Dispatch(context.Background(), "getNeighbors", "agent-1", time.Time{}, GetNeighborsParams{ID: "abc12345"})
	require.NoError(t, err)
	assert.Nil(t, out)
}
