package peersync

import (
	"github.com/iudanet/linkmesh/internal/models"
	"github.com/iudanet/linkmesh/pkg/api"
)

func toWire(e *models.ReplicaEntry) api.Entry {
	return api.Entry{
		ID:             e.ID,
		ShortCode:      e.ShortCode,
		DestinationURL: e.DestinationURL,
		Description:    e.Description,
		CreatedAt:      e.CreatedAt,
		NodeID:         e.Meta.NodeID,
		Timestamp:      e.Meta.Timestamp,
	}
}

func fromWire(e api.Entry) *models.ReplicaEntry {
	return &models.ReplicaEntry{
		Redirect: models.Redirect{
			ID:             e.ID,
			ShortCode:      e.ShortCode,
			DestinationURL: e.DestinationURL,
			Description:    e.Description,
			CreatedAt:      e.CreatedAt.UTC(),
		},
		Meta: models.WriteMeta{
			NodeID:    e.NodeID,
			Timestamp: e.Timestamp,
		},
	}
}

func toWireAll(entries []*models.ReplicaEntry) []api.Entry {
	out := make([]api.Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toWire(e))
	}
	return out
}
