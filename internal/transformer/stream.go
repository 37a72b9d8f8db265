package transformer

import (
	"context"

	"featurepipe/internal/record"
)

// Item carries one decoded record and its position in the input so that
// writers can keep order.
type Item struct {
	Seq int64
	Raw record.Raw
}

// Result is a transformed Item.
type Result struct {
	Seq    int64
	Record Record
}

// ApplyLoop transforms items from in and forwards them to out in arrival
// order. It returns when in is closed or ctx is canceled.
func (t *Transformer) ApplyLoop(ctx context.Context, in <-chan Item, out chan<- Result) error {
	for it := range in {
		select {
		case out <- Result{Seq: it.Seq, Record: t.Apply(it.Raw)}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
