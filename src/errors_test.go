package subghz

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTag_NilStaysNil(t *testing.T) {
	assert.NoError(t, Tag(ComponentRadio, nil))
}

func TestStatus_WrappingKeepsOriginChain(t *testing.T) {
	inner := Tag(ComponentTransport, ErrTransport)
	outer := Tag(ComponentRadio, inner)

	assert.ErrorIs(t, outer, ErrTransport)
	assert.Equal(t, "radio: transport: transport exchange failed", outer.Error())

	var st Status
	require.ErrorAs(t, outer, &st)
	assert.Equal(t, ComponentRadio, st.Component, "outermost tag wins in As")
}

func TestStatus_SentinelsStayDistinguishable(t *testing.T) {
	err := Tag(ComponentNode, fmt.Errorf("%w: payload 200 bytes", ErrFifoOverrun))
	assert.ErrorIs(t, err, ErrFifoOverrun)
	assert.NotErrorIs(t, err, ErrFifoNotReady)
	assert.NotErrorIs(t, err, ErrStateTimeout)
}

func TestErrorStack_LIFO(t *testing.T) {
	var s ErrorStack
	s.Push(ErrTransport)
	s.Push(ErrTimer)

	assert.Equal(t, 2, s.Len())
	assert.ErrorIs(t, s.Pop(), ErrTimer)
	assert.ErrorIs(t, s.Pop(), ErrTransport)
	assert.Nil(t, s.Pop())
}

func TestErrorStack_NilPushIgnored(t *testing.T) {
	var s ErrorStack
	s.Push(nil)
	assert.Equal(t, 0, s.Len())
}

func TestErrorStack_BoundedWithDropCount(t *testing.T) {
	var s ErrorStack
	for i := 0; i < errorStackCap+5; i++ {
		s.Push(fmt.Errorf("failure %d", i))
	}

	assert.Equal(t, errorStackCap, s.Len())
	assert.Equal(t, 5, s.Dropped())

	all := s.All()
	require.Len(t, all, errorStackCap)
	assert.Equal(t, "failure 0", all[0].Error(), "oldest entries survive, newest are dropped")
	assert.Equal(t, fmt.Sprintf("failure %d", errorStackCap-1), all[errorStackCap-1].Error())
}

func TestErrorStack_Reset(t *testing.T) {
	var s ErrorStack
	for i := 0; i < errorStackCap+1; i++ {
		s.Push(errors.New("x"))
	}
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.Dropped())
	assert.Empty(t, s.All())
}
