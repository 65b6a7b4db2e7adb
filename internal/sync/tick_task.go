package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lnm-trading/agent/internal/lnm"
	"github.com/lnm-trading/agent/internal/lnmws"
	"github.com/lnm-trading/agent/internal/storage"
)

// tickPayload is the decoded shape of a futures:btc_usd:last-price push.
type tickPayload struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// ErrTickStreamFailed wraps any error surfaced while consuming the live
// tick stream; per spec this task's failures are never recoverable in
// place, they escalate straight to the supervisor.
var ErrTickStreamFailed = fmt.Errorf("sync: live tick stream failed")

// RunTickStream subscribes to the tick channel and persists every tick
// best-effort (duplicates on unique Time are ignored), forwarding each one
// on out until ctx is canceled or the connection fails.
func RunTickStream(ctx context.Context, ws *lnmws.Client, ticks storage.TickRepository, channel string, out chan<- storage.PriceTick) error {
	if err := ws.Subscribe(ctx, []string{channel}); err != nil {
		return fmt.Errorf("%w: subscribe: %v", ErrTickStreamFailed, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-ws.Events():
			if !ok {
				return fmt.Errorf("%w: event stream closed", ErrTickStreamFailed)
			}
			if evt.Channel != channel {
				continue
			}
			var payload tickPayload
			if err := json.Unmarshal(evt.Data, &payload); err != nil {
				continue
			}
			price, err := lnm.NewPrice(payload.Price)
			if err != nil {
				continue
			}
			tick := storage.PriceTick{Time: time.UnixMilli(payload.Time).UTC(), LastPrice: price}
			if err := ticks.Insert(ctx, tick); err != nil {
				continue
			}
			select {
			case out <- tick:
			default:
			}
		}
	}
}
