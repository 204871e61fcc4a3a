package circle

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sweeney/pw-dashboard/internal/alert"
)

// Source provides the configuration documents of the backend.
type Source interface {
	StaticConfig(ctx context.Context) (StaticDocument, error)
	ControlConfig(ctx context.Context) (ControlDocument, error)
	SaveControlConfig(ctx context.Context, doc ControlDocument) error
}

// Config is the loaded pair of documents together with the merged circles.
type Config struct {
	Static  StaticDocument
	Control ControlDocument
	Circles []Circle
}

// Load fetches the static document, then the dynamic one, and merges them.
// A static failure is returned. A dynamic failure is logged and raised as an
// alert; the circles are then built from the static document alone.
func Load(ctx context.Context, src Source, sink alert.Sink, log zerolog.Logger) (Config, error) {
	if sink == nil {
		sink = alert.Discard
	}
	static, err := src.StaticConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load static configuration")
		sink.SetAlert(alert.Danger("failed to load device inventory"))
		return Config{}, fmt.Errorf("load static config: %w", err)
	}

	control, err := src.ControlConfig(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to load dynamic configuration, showing static devices only")
		sink.SetAlert(alert.Danger("failed to load device control settings"))
		control = ControlDocument{}
	}

	for i, r := range static.Static {
		if strings.TrimSpace(r.MAC()) == "" {
			log.Warn().Int("index", i).Str("name", r.String(KeyName)).Msg("static device without mac ignored")
		}
	}
	circles, orphans := Merge(static.Static, control.Dynamic)
	for _, mac := range orphans {
		log.Debug().Str("mac", mac).Msg("dynamic entry without static device ignored")
	}
	log.Info().Int("circles", len(circles)).Msg("configuration loaded")

	return Config{Static: static, Control: control, Circles: circles}, nil
}
