package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"chartengine/internal/indicator"

	goredis "github.com/go-redis/redis/v8"
)

// SelectionCommand asks the engine to change a chart's indicator.
// Spec uses the indicator.ParseSelection form; "NONE" clears.
type SelectionCommand struct {
	Chart string `json:"chart"`
	Spec  string `json:"indicator"`
}

// ParseSelectionCommand decodes a command payload and its selection.
func ParseSelectionCommand(payload string) (SelectionCommand, indicator.Selection, error) {
	var cmd SelectionCommand
	if err := json.Unmarshal([]byte(payload), &cmd); err != nil {
		return SelectionCommand{}, indicator.Selection{}, fmt.Errorf("decode selection command: %w", err)
	}
	if cmd.Chart == "" {
		return SelectionCommand{}, indicator.Selection{}, fmt.Errorf("selection command: missing chart")
	}
	sel, err := indicator.ParseSelection(cmd.Spec)
	if err != nil {
		return cmd, indicator.Selection{}, err
	}
	return cmd, sel, nil
}

// SubscribeSelections subscribes to the selection command channel.
func SubscribeSelections(ctx context.Context, client *goredis.Client, channel string) *goredis.PubSub {
	return client.Subscribe(ctx, channel)
}

// PublishSelection sends a selection command.
func PublishSelection(ctx context.Context, client *goredis.Client, channel string, cmd SelectionCommand) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return client.Publish(ctx, channel, payload).Err()
}
