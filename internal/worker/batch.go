package worker

import "github.com/ignite/campaign-engine/internal/domain"

// Split partitions recipients into consecutive batches of at most size,
// preserving order. The last batch may be smaller. A non-positive size puts
// everything in one batch. The batches share the input's backing array.
func Split(recipients []domain.Recipient, size int) [][]domain.Recipient {
	if len(recipients) == 0 {
		return nil
	}
	if size <= 0 || size >= len(recipients) {
		return [][]domain.Recipient{recipients}
	}

	batches := make([][]domain.Recipient, 0, (len(recipients)+size-1)/size)
	for start := 0; start < len(recipients); start += size {
		end := min(start+size, len(recipients))
		batches = append(batches, recipients[start:end:end])
	}
	return batches
}
