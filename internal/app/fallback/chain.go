package fallback

import (
	"context"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/rockola/internal/domain/media"
	"github.com/osa030/rockola/internal/infra/config"
)

// SourceWithMetadata wraps a source with its display name.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain tries sources in order; the first non-empty playlist wins.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{sources: sources}
}

// NewChainFromConfig builds the standard chain: the server suggestion
// first, then the configured default playlist if there is one.
func NewChainFromConfig(cfg *config.Config) *Chain {
	sources := []SourceWithMetadata{{Source: ServerSource{}, DisplayName: "jukebox API"}}
	if cfg.Fallback.DefaultPlaylist != "" {
		sources = append(sources, SourceWithMetadata{
			Source:      NewStaticSource(cfg.Fallback.DefaultPlaylist),
			DisplayName: "default playlist",
		})
		zlog.Info().Msgf("registered fallback source: name=default playlist playlist=%s", cfg.Fallback.DefaultPlaylist)
	}
	return NewChain(sources)
}

// Resolve returns the first playlist a source yields, or a zero reference
// when no source has one.
func (c *Chain) Resolve(ctx context.Context, serverPlaylistID string) media.Reference {
	for i, sm := range c.sources {
		ref, err := sm.Source.Resolve(ctx, serverPlaylistID)
		if err != nil {
			zlog.Warn().Msgf("fallback source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			continue
		}
		if ref.IsZero() {
			zlog.Debug().Msgf("fallback source has no playlist: index=%d source=%s", i+1, sm.DisplayName)
			continue
		}
		zlog.Debug().Msgf("fallback playlist resolved: source=%s playlist=%s", sm.DisplayName, ref.ID)
		return ref
	}
	return media.Reference{Kind: media.KindPlaylist}
}
