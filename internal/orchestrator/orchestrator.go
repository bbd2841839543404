package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/config"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/couchdb"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/discovery"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/eventbus"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/health"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/refresher"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/system"
	"github.com/sirupsen/logrus"
)

const serviceName = "refresher"

// ErrNotStarted is returned by Run and RunCycle before Start.
var ErrNotStarted = errors.New("orchestrator: not started")

// Orchestrator runs discovery and refresh cycles, once or in daemon mode.
//
// Lifecycle:
//  1. Start() - builds the CouchDB client, connects NATS and starts the health server if configured
//  2. Run() - runs cycles until done (run once) or until ctx is cancelled (daemon)
//  3. Stop() - closes optional connections
//
// NATS and the health server are optional: failing to set them up logs a
// warning and refreshing goes on without them.
type Orchestrator struct {
	config  *config.RunConfig
	runtime *config.Runtime
	log     *logrus.Logger

	couch     *couchdb.Client
	discovery *discovery.Client
	driver    *refresher.Driver

	publisher    *eventbus.Publisher
	tracker      *health.Tracker
	healthServer *health.HealthServer

	// waits between daemon cycles
	wait func(ctx context.Context, d time.Duration) error
}

func NewOrchestrator(cfg *config.RunConfig, rt *config.Runtime, log *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		config:  cfg,
		runtime: rt,
		log:     log,
		tracker: health.NewTracker(),
		wait:    sleep,
	}
}

// Start prepares the orchestrator. It performs no request against CouchDB.
func (o *Orchestrator) Start() error {
	o.log.Info("Starting Refresher Orchestrator...")

	couch, err := couchdb.NewClient(couchdb.Options{
		Server:   o.config.Server,
		User:     o.config.User,
		Password: o.config.Password,
		Timeout:  o.runtime.RequestTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to create CouchDB client: %w", err)
	}

	o.couch = couch
	o.discovery = discovery.NewClient(couch, o.log)
	o.driver = refresher.NewDriver(couch, o.discovery, o.log)

	if o.config.DiscoverAll() {
		o.log.Info("No databases configured, discovering them from the server")
	} else {
		o.log.Infof("Refreshing %d configured databases", len(o.config.Databases))
	}

	o.connectNATS()
	o.startHealthServer()

	o.log.Info("Refresher Orchestrator started successfully")
	return nil
}

// connectNATS sets up the cycle report publisher when NATS_URL is set.
func (o *Orchestrator) connectNATS() {
	if o.runtime.NatsURL == "" {
		o.log.Debug("NATS URL not configured, cycle reports will not be published")
		return
	}

	o.log.Infof("Connecting to NATS at: %s", o.runtime.NatsURL)

	publisher, err := eventbus.NewPublisher(o.runtime.NatsURL, o.log)
	if err != nil {
		o.log.WithError(err).Warn("Failed to connect NATS publisher, cycle reports will not be published")
		return
	}

	if !publisher.IsConnected() {
		o.log.Warn("NATS not reachable yet, publisher will keep retrying")
	}

	o.publisher = publisher
}

// startHealthServer serves /health when HEALTH_PORT is set.
func (o *Orchestrator) startHealthServer() {
	if o.runtime.HealthPort == "" {
		return
	}

	o.healthServer = health.NewHealthServer(serviceName, o.tracker)
	addr := ":" + o.runtime.HealthPort

	go func() {
		o.log.Infof("Health check listening on %s", addr)
		if err := o.healthServer.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.log.WithError(err).Warn("Health server failed")
		}
	}()
}

// Run executes one cycle, or in daemon mode repeats cycles with the
// configured delay between the end of one and the start of the next until
// ctx is cancelled. A failed database discovery is returned in run once mode
// and only logged in daemon mode.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.driver == nil {
		return ErrNotStarted
	}

	for {
		if o.config.Daemon {
			o.log.Info("Running in daemon mode. Ctrl-C to stop")
		}

		if _, err := o.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !o.config.Daemon {
				return err
			}
			o.log.WithError(err).Error("Refresh cycle aborted")
		}

		if !o.config.Daemon {
			return nil
		}

		o.log.Infof("Will sleep for %d seconds", o.config.DaemonDelaySec)
		if err := o.wait(ctx, o.config.DaemonDelay()); err != nil {
			return err
		}
	}
}

// RunCycle discovers databases and refreshes their views once. The error is
// non-nil only when the database list could not be fetched.
func (o *Orchestrator) RunCycle(ctx context.Context) (*refresher.CycleReport, error) {
	if o.driver == nil {
		return nil, ErrNotStarted
	}

	startedAt := time.Now()

	databases, err := o.discovery.Databases(ctx, o.config.Databases)
	if err != nil {
		report := refresher.Failed(startedAt, err)
		o.finishCycle(report)
		return report, err
	}

	report := o.driver.UpdateViews(ctx, databases)
	o.finishCycle(report)

	return report, nil
}

// finishCycle hands the report to the health tracker and the event bus.
func (o *Orchestrator) finishCycle(report *refresher.CycleReport) {
	if o.publisher != nil {
		report.Host = system.Snapshot(context.Background())
	}

	o.tracker.Record(report)

	if o.publisher == nil {
		return
	}

	if err := o.publisher.PublishCycle(eventbus.NewCycleEvent(o.config.Server, report)); err != nil {
		o.log.WithError(err).Warn("Failed to publish cycle report")
	}
}

// Tracker exposes the cycle history used by the health endpoint.
func (o *Orchestrator) Tracker() *health.Tracker {
	return o.tracker
}

// Stop closes optional connections. It is safe to call without Start.
func (o *Orchestrator) Stop() error {
	o.log.Info("Stopping Orchestrator...")

	if o.healthServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.healthServer.Shutdown(ctx); err != nil {
			o.log.WithError(err).Warn("Error stopping health server")
		}
	}

	if o.publisher != nil {
		o.publisher.Close()
	}

	o.log.Info("Orchestrator stopped successfully")
	return nil
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
