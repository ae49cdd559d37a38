// Package directory keeps the local pet and provider projection in step with
// profile events.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
)

const (
	TopicPetUpserted      = "profile.pet.upserted.v1"
	TopicPetDeleted       = "profile.pet.deleted.v1"
	TopicProviderUpserted = "profile.provider.upserted.v1"
)

var Topics = []string{TopicPetUpserted, TopicPetDeleted, TopicProviderUpserted}

// Writer is implemented by storage.DirectoryRepository.
type Writer interface {
	UpsertPet(ctx context.Context, tx pgx.Tx, petID, ownerID, name string) error
	DeletePet(ctx context.Context, tx pgx.Tx, petID string) error
	UpsertProvider(ctx context.Context, tx pgx.Tx, providerID, displayName string, active bool) error
}

type petEvent struct {
	PetID   string `json:"pet_id"`
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

type providerEvent struct {
	ProviderID  string `json:"provider_id"`
	DisplayName string `json:"display_name"`
	Active      *bool  `json:"active"`
}

type Applier struct {
	writer Writer
	logger *slog.Logger
}

func NewApplier(writer Writer, logger *slog.Logger) *Applier {
	return &Applier{writer: writer, logger: logger}
}

// Apply returns nil for malformed payloads after logging them; redelivering
// them cannot succeed.
func (a *Applier) Apply(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
	switch msg.Topic {
	case TopicPetUpserted, TopicPetDeleted:
		var evt petEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil || strings.TrimSpace(evt.PetID) == "" {
			a.logger.Error("invalid pet event", "err", err, "topic", msg.Topic)
			return nil
		}
		if msg.Topic == TopicPetDeleted {
			return a.writer.DeletePet(ctx, tx, evt.PetID)
		}
		if strings.TrimSpace(evt.OwnerID) == "" {
			a.logger.Error("pet event without owner", "pet_id", evt.PetID)
			return nil
		}
		return a.writer.UpsertPet(ctx, tx, evt.PetID, evt.OwnerID, evt.Name)
	case TopicProviderUpserted:
		var evt providerEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil || strings.TrimSpace(evt.ProviderID) == "" {
			a.logger.Error("invalid provider event", "err", err, "topic", msg.Topic)
			return nil
		}
		active := evt.Active == nil || *evt.Active
		return a.writer.UpsertProvider(ctx, tx, evt.ProviderID, evt.DisplayName, active)
	default:
		return fmt.Errorf("directory: unexpected topic %q", msg.Topic)
	}
}
