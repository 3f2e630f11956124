package queue

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
)

// SubscribeResult returns a channel that receives notifications for one
// task. The subscription is established before this function returns,
// so a caller that subscribes before enqueueing cannot miss the
// completion event. There is still no replay: events published while
// nobody is subscribed are dropped.
//
// The returned cancel function closes the subscription and, eventually,
// the channel. The channel is also closed when ctx is done.
func (q *Queue) SubscribeResult(ctx context.Context, taskID string) (<-chan Notification, func(), error) {
	pubsub := q.rdb.Subscribe(ctx, q.eventsKey(taskID))

	// Force the SUBSCRIBE round trip so publishes after this point are
	// guaranteed to be delivered.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Notification, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-pubsub.Channel():
				if !ok {
					return
				}
				var n Notification
				if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
					q.logger.Warn(ctx, "dropping malformed notification",
						zap.String("task_id", taskID),
						zap.Error(err),
					)
					continue
				}
				select {
				case out <- n:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
