package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"ragchat/internal/domain"
)

func TestCheckDims(t *testing.T) {
	tests := []struct {
		name    string
		inputs  int
		vectors [][]float32
		wantErr bool
	}{
		{"matching", 2, [][]float32{{1, 2}, {3, 4}}, false},
		{"empty batch", 0, nil, false},
		{"count mismatch", 3, [][]float32{{1}, {2}}, true},
		{"empty vector", 1, [][]float32{{}}, true},
		{"ragged", 2, [][]float32{{1, 2}, {3}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckDims("test", tt.inputs, tt.vectors)
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrEmbedding)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
