// Package ingress feeds producer events from the message bus into the
// dispatcher. Sources decode and validate each payload; anything malformed
// is logged and skipped.
package ingress

import (
	"encoding/json"
	"fmt"

	"github.com/alfredjeanlab/notify/internal/model"
)

// Publisher accepts validated events. notify.Service implements it.
type Publisher interface {
	Publish(ev model.Event)
}

// Decode parses a JSON producer event and validates it.
func Decode(data []byte) (model.Event, error) {
	var ev model.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return model.Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return model.Event{}, err
	}
	return ev, nil
}
