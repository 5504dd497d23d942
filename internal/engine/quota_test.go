package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisitQuota(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		takes int
		want  bool
	}{
		{"under limit", 3, 2, true},
		{"at limit", 3, 3, true},
		{"over limit", 3, 4, false},
		{"zero is unlimited", 0, 1000, true},
		{"negative is unlimited", -1, 1000, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := newVisitQuota(tt.limit)
			var ok bool
			for range tt.takes {
				ok = q.take()
			}
			assert.Equal(t, tt.want, ok)
			assert.Equal(t, tt.takes, q.current)
		})
	}
}
