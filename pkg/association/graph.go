package association

import (
	"context"
	"fmt"
	"slices"

	"github.com/cuemby/filebox/pkg/events"
	"github.com/cuemby/filebox/pkg/files"
	"github.com/cuemby/filebox/pkg/log"
	"github.com/cuemby/filebox/pkg/storage"
	"github.com/cuemby/filebox/pkg/types"
	"github.com/rs/zerolog"
)

// Graph maintains the directed container -> data links stored in each
// container's associatedIds
type Graph struct {
	repo   *files.Repository
	events *events.Broker
	logger zerolog.Logger
}

// NewGraph creates a graph over repo. broker may be nil.
func NewGraph(repo *files.Repository, broker *events.Broker) *Graph {
	return &Graph{
		repo:   repo,
		events: broker,
		logger: log.WithComponent("association"),
	}
}

// Associate links dataID to containerID. Both entries must exist. Linking an
// id that is already linked changes nothing.
func (g *Graph) Associate(ctx context.Context, containerID, dataID string) error {
	if containerID == dataID {
		return fmt.Errorf("%w: %s cannot reference itself", storage.ErrInvalidEntry, containerID)
	}

	added := false
	_, err := g.repo.Update(ctx, containerID, func(c *types.FileEntry, s *files.Snapshot) error {
		if !s.Exists(dataID) {
			return fmt.Errorf("%w: file %s", storage.ErrNotFound, dataID)
		}
		if c.HasAssociation(dataID) {
			return files.ErrNoChange
		}
		c.AssociatedIDs = append(c.AssociatedIDs, dataID)
		added = true
		return nil
	})
	if err != nil {
		return err
	}

	if added {
		g.logger.Debug().Str("container_id", containerID).Str("data_id", dataID).Msg("Associated file")
		g.events.Publish(&events.Event{
			Type:     events.EventFileAssociated,
			FileID:   containerID,
			Metadata: map[string]string{"data_id": dataID},
		})
	}
	return nil
}

// Disassociate removes the link from containerID to dataID if there is one.
// The container must exist.
func (g *Graph) Disassociate(ctx context.Context, containerID, dataID string) error {
	removed := false
	_, err := g.repo.Update(ctx, containerID, func(c *types.FileEntry, _ *files.Snapshot) error {
		if !c.HasAssociation(dataID) {
			return files.ErrNoChange
		}
		c.AssociatedIDs = slices.DeleteFunc(c.AssociatedIDs, func(id string) bool { return id == dataID })
		removed = true
		return nil
	})
	if err != nil {
		return err
	}

	if removed {
		g.logger.Debug().Str("container_id", containerID).Str("data_id", dataID).Msg("Disassociated file")
		g.events.Publish(&events.Event{
			Type:     events.EventFileDisassociated,
			FileID:   containerID,
			Metadata: map[string]string{"data_id": dataID},
		})
	}
	return nil
}

// ListAssociated resolves the container's associated ids to entries, in
// association order. Ids that no longer resolve are left out.
func (g *Graph) ListAssociated(ctx context.Context, containerID string) ([]*types.FileEntry, error) {
	var (
		out      []*types.FileEntry
		dangling int
	)
	err := g.repo.Read(ctx, "association.list", func(s *files.Snapshot) error {
		c, ok, err := s.Get(containerID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: file %s", storage.ErrNotFound, containerID)
		}
		out, err = s.GetMany(c.AssociatedIDs)
		dangling = len(c.AssociatedIDs) - len(out)
		return err
	})
	if err != nil {
		return nil, err
	}
	if dangling > 0 {
		g.logger.Warn().Str("container_id", containerID).Int("dangling", dangling).Msg("Container lists ids that are not stored")
	}
	return out, nil
}
