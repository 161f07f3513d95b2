package journal

import (
	"context"
	"fmt"

	"github.com/KevinKickass/HaptiKnitConsole/internal/config"
)

// Open builds the journal selected by cfg.Driver.
func Open(ctx context.Context, cfg config.JournalConfig) (Journal, error) {
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		s := NewSQLite(cfg.SQLitePath)
		if err := s.Init(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		return NewPostgres(ctx, cfg.Database)
	default:
		return nil, fmt.Errorf("unknown journal driver %q", cfg.Driver)
	}
}
