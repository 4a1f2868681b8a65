package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShapeNumElements(t *testing.T) {
	assert.Equal(t, 24, Shape{2, 3, 4}.NumElements())
	assert.Equal(t, 5, Shape{5}.NumElements())
	assert.Equal(t, 1, Shape{}.NumElements(), "scalar has one element")
}

func TestShapeValidate(t *testing.T) {
	assert.NoError(t, Shape{2, 3}.Validate())
	assert.Error(t, Shape{2, 0}.Validate())
	assert.Error(t, Shape{-1, 3}.Validate())
}

func TestShapeEqual(t *testing.T) {
	assert.True(t, Shape{2, 3}.Equal(Shape{2, 3}))
	assert.False(t, Shape{2, 3}.Equal(Shape{3, 2}))
	assert.False(t, Shape{2, 3}.Equal(Shape{2, 3, 1}), "rank differences are never coerced")
}

func TestShapeClone(t *testing.T) {
	s := Shape{2, 3}
	c := s.Clone()
	c[0] = 9
	assert.Equal(t, 2, s[0])
}

func TestShapeComputeStrides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.ComputeStrides())
	assert.Equal(t, []int{1}, Shape{7}.ComputeStrides())
}

func TestBroadcast(t *testing.T) {
	tests := []struct {
		name string
		a, b Shape
		want Shape
	}{
		{"same shape", Shape{3, 5}, Shape{3, 5}, Shape{3, 5}},
		{"stretch column", Shape{3, 1}, Shape{3, 5}, Shape{3, 5}},
		{"missing leading dim", Shape{5}, Shape{3, 5}, Shape{3, 5}},
		{"bias row", Shape{1, 2}, Shape{1, 1}, Shape{1, 2}},
		{"both stretch", Shape{1, 5}, Shape{3, 1}, Shape{3, 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Broadcast(tt.a, tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBroadcastIncompatible(t *testing.T) {
	_, err := Broadcast(Shape{3, 4}, Shape{3, 5})
	assert.Error(t, err)
}
