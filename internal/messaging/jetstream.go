package messaging

import (
	"errors"

	"github.com/nats-io/nats.go"
)

const eventsStream = "SOCIAL_EVENTS"

// EnsureStream creates (or validates) the stream backing the topic exchange:
// every domain event lands under social.event.>.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(eventsStream); err != nil {
		if errors.Is(err, nats.ErrStreamNotFound) {
			if _, addErr := js.AddStream(&nats.StreamConfig{
				Name:      eventsStream,
				Subjects:  []string{"social.event.>"},
				Retention: nats.LimitsPolicy,
				Storage:   nats.FileStorage,
				Replicas:  1,
			}); addErr != nil {
				return addErr
			}
		} else {
			return err
		}
	}
	return nil
}
