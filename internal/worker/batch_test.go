package worker

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/ignite/campaign-engine/internal/domain"
)

func TestSplit_Sizes(t *testing.T) {
	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{"250 by 100", 250, 100, []int{100, 100, 50}},
		{"250 by 1000", 250, 1000, []int{250}},
		{"exact multiple", 300, 100, []int{100, 100, 100}},
		{"smaller than one batch", 3, 100, []int{3}},
		{"size one", 3, 1, []int{1, 1, 1}},
		{"non-positive size", 5, 0, []int{5}},
		{"empty", 0, 10, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batches := Split(testRecipients(tt.n), tt.size)
			var sizes []int
			for _, b := range batches {
				sizes = append(sizes, len(b))
			}
			assert.Equal(t, tt.sizes, sizes)
		})
	}
}

func TestSplit_ConcatenationReproducesInput(t *testing.T) {
	for _, n := range []int{1, 2, 7, 99, 100, 101, 250, 1001} {
		for _, size := range []int{1, 3, 50, 100, 1000} {
			in := testRecipients(n)
			var joined []domain.Recipient
			for _, b := range Split(in, size) {
				assert.LessOrEqual(t, len(b), size)
				joined = append(joined, b...)
			}
			if diff := cmp.Diff(in, joined); diff != "" {
				t.Errorf("n=%d size=%d: partition mismatch (-want +got):\n%s", n, size, diff)
			}
		}
	}
}

func TestSplit_BatchesDoNotAliasOnAppend(t *testing.T) {
	in := testRecipients(4)
	batches := Split(in, 2)
	_ = append(batches[0], domain.Recipient{ID: "intruder"})
	assert.Equal(t, "r-002", in[2].ID)
}
