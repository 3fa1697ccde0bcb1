package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/unklstewy/traffic-overlay/internal/db"
	"github.com/unklstewy/traffic-overlay/internal/surface"
	"github.com/unklstewy/traffic-overlay/pkg/adsb"
	"github.com/unklstewy/traffic-overlay/pkg/config"
	"github.com/unklstewy/traffic-overlay/pkg/overlay"
)

const (
	dbConnectAttempts = 5
	cleanupInterval   = time.Hour
)

// sinks are where the overlay sends announcements and notices.
type sinks struct {
	announcer overlay.Announcer
	notifier  overlay.Notifier
}

// stack is the feed, board, overlay and optional event log shared by every
// front end.
type stack struct {
	cfg      *config.Config
	data     adsb.DataSource
	feed     *adsb.Feed
	board    *surface.Board
	manager  *overlay.Manager
	database *db.DB
	events   *db.EventWriter
}

func newDataSource(cfg *config.Config) adsb.DataSource {
	src := cfg.ADSB.ActiveSource()
	switch src.Type {
	case config.SourceAirplanesLive:
		baseURL := src.BaseURL
		if baseURL == "" {
			baseURL = adsb.DefaultAirplanesLiveURL
		}
		client := adsb.NewAirplanesLiveClient(baseURL)
		client.SetRateLimit(src.RateLimit())
		log.Info().Str("source", src.Name).Str("url", baseURL).Msg("Using live ADS-B source")
		return client
	default:
		log.Info().Int("targets", cfg.ADSB.SimulatedTargets).Msg("Using simulated traffic")
		return adsb.NewSimulator(cfg.Ownship.Position(), cfg.ADSB.SimulatedTargets)
	}
}

func newStack(ctx context.Context, cfg *config.Config, out sinks) (*stack, error) {
	s := &stack{cfg: cfg, board: surface.NewBoard()}
	ownship := cfg.Ownship.Position()

	s.data = newDataSource(cfg)
	s.feed = adsb.NewFeed(s.data, adsb.FeedConfig{
		Center:   ownship,
		RadiusNM: cfg.ADSB.SearchRadiusNM,
		Interval: cfg.ADSB.UpdateInterval(),
		Alert: adsb.AlertCriteria{
			RadiusNM:       cfg.Overlay.AlertRadiusNM,
			AltitudeBandFt: cfg.Overlay.AlertAltitudeBandFt,
		},
		Retry: adsb.DefaultRetryConfig(),
	})

	opts := overlay.Options{
		AnimationDuration: cfg.Overlay.AnimationDuration(),
		FrameInterval:     cfg.Overlay.FrameInterval(),
		AnnouncementText:  cfg.Overlay.AnnouncementText,
		Announcer:         out.announcer,
		Ownship:           &ownship,
		Notifier:          loggingNotifier(out.notifier),
	}

	if cfg.Database.Enabled {
		database, err := db.ReconnectWithRetry(ctx, cfg.Database, dbConnectAttempts, time.Second)
		if err != nil {
			s.data.Close()
			return nil, err
		}
		if err := database.InitSchema(ctx); err != nil {
			database.Close()
			s.data.Close()
			return nil, err
		}
		s.database = database
		s.events = db.NewEventWriter(db.NewEventRepository(database), db.DefaultEventBuffer)
		opts.Recorder = s.events
	}

	s.manager = overlay.NewManager(s.feed, s.board, opts)
	return s, nil
}

// Run enables the overlay and runs front alongside the event log until
// ctx is cancelled or front returns. The overlay is disabled before the
// event log drains.
func (s *stack) Run(ctx context.Context, retention time.Duration, front func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.manager.Enable(); err != nil {
		return err
	}
	log.Info().
		Float64("lat", s.cfg.Ownship.Latitude).
		Float64("lon", s.cfg.Ownship.Longitude).
		Float64("radius_nm", s.cfg.ADSB.SearchRadiusNM).
		Msg("Traffic overlay enabled")

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		defer cancel()
		err := front(ctx)
		if derr := s.manager.Disable(); derr != nil {
			log.Warn().Err(derr).Msg("Failed to disable overlay")
		}
		return err
	})
	if s.events != nil {
		p.Go(s.events.Run)
		p.Go(func(ctx context.Context) error {
			s.cleanupLoop(ctx, retention)
			return nil
		})
	}

	err := p.Wait()
	if s.events != nil {
		log.Info().Uint64("written", s.events.Written()).Uint64("dropped", s.events.Dropped()).Msg("Event log closed")
	}
	return err
}

func (s *stack) cleanupLoop(ctx context.Context, retention time.Duration) {
	if retention <= 0 {
		return
	}
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		n, err := s.database.CleanupOldEvents(ctx, retention)
		if err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("Event cleanup failed")
		} else if n > 0 {
			log.Info().Int64("deleted", n).Msg("Cleaned up old events")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *stack) healthy(ctx context.Context) bool {
	return db.HealthCheck(ctx, s.database)
}

// eventLog joins the repository reads with the database stats.
type eventLog struct {
	*db.EventRepository
	database *db.DB
}

func (e eventLog) GetStats(ctx context.Context) (map[string]int64, error) {
	return e.database.GetStats(ctx)
}

func (s *stack) eventLog() eventLog {
	return eventLog{EventRepository: db.NewEventRepository(s.database), database: s.database}
}

// Close releases the data source and the database.
func (s *stack) Close() {
	if err := s.data.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close data source")
	}
	if s.database != nil {
		if err := s.database.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database")
		}
	}
}

// loggingNotifier logs every notice and forwards it to next.
func loggingNotifier(next overlay.Notifier) overlay.Notifier {
	return overlay.NotifierFunc(func(n overlay.Notice) {
		log.Info().
			Str("id", n.ID).
			Str("label", n.Label).
			Str("classification", n.Classification.String()).
			Float64("distance_mi", n.DistanceMiles).
			Str("bearing", n.Bearing.String()).
			Str("heading", n.Heading.String()).
			Dur("time_to_reach", n.TimeToReach).
			Msg("Traffic notice")
		if next != nil {
			next.Notify(n)
		}
	})
}
