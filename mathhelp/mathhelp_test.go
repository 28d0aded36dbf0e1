package mathhelp

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithinGrid(t *testing.T) {
	tests := []struct {
		i    int64
		size uint
		want bool
	}{
		{i: 0, size: 10, want: true},
		{i: 9, size: 10, want: true},
		{i: 10, size: 10, want: false},
		{i: -1, size: 10, want: false},
		{i: 0, size: 0, want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d in %d", tt.i, tt.size), func(t *testing.T) {
			assert.Equal(t, tt.want, WithinGrid(tt.i, tt.size))
		})
	}
}

func TestAlmostEqual(t *testing.T) {
	tests := []struct {
		a, b float64
		want bool
	}{
		{a: 559082264.0287178, b: 559082264.029, want: true},
		{a: 559082264.0287178, b: 559082265, want: false},
		{a: 0, b: 0, want: true},
		{a: 0, b: 1e-12, want: true},
		{a: -1e-10, b: 1e-10, want: true},
		{a: 0, b: 1e-6, want: false},
		{a: -20037508.3427892, b: -20037508.342789244, want: true},
		{a: 1, b: -1, want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v~%v", tt.a, tt.b), func(t *testing.T) {
			assert.Equal(t, tt.want, AlmostEqual(tt.a, tt.b, 1e-9))
		})
	}
}
