// Package refresher forces CouchDB to bring view indexes up to date by
// querying every view once.
package refresher

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/couchdb"
	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/discovery"
	"github.com/sirupsen/logrus"
)

// ViewLister is the part of the discovery client the driver needs.
type ViewLister interface {
	ListViews(ctx context.Context, database string) discovery.ViewLookup
}

// Driver queries views one at a time. Failures are logged and skipped,
// nothing is retried.
type Driver struct {
	couch  *couchdb.Client
	lister ViewLister
	log    *logrus.Logger
}

func NewDriver(couch *couchdb.Client, lister ViewLister, log *logrus.Logger) *Driver {
	return &Driver{
		couch:  couch,
		lister: lister,
		log:    log,
	}
}

// ViewPath is the query endpoint of view in database.
func ViewPath(database string, view discovery.ViewDescriptor) string {
	return couchdb.Path(database, "_design", discovery.DesignDocument, "_view", view.Name)
}

// ViewQuery returns the smallest query that still makes the server update
// the index. Reduce views also need the reduce step to run.
func ViewQuery(view discovery.ViewDescriptor) string {
	if view.HasReduce {
		return "limit=1&reduce=true&group=true"
	}
	return "limit=1"
}

// UpdateViews refreshes every view of every database in order and returns
// what happened. Databases without views are skipped.
func (d *Driver) UpdateViews(ctx context.Context, databases []string) *CycleReport {
	report := NewCycleReport()

	d.log.Infof("Will update views in databases: %s", strings.Join(databases, ", "))

	for _, database := range databases {
		if ctx.Err() != nil {
			d.log.Warn("Refresh interrupted")
			break
		}

		lookup := d.lister.ListViews(ctx, database)
		result := DatabaseReport{
			Database: database,
			Lookup:   lookup.Status.String(),
			Views:    len(lookup.Views),
		}

		if lookup.Empty() {
			d.log.WithField("database", database).Warnf("No views in %s, skipping", database)
			report.Add(result)
			continue
		}

		for _, view := range lookup.Views {
			if err := d.UpdateView(ctx, database, view); err != nil {
				result.Failed++
				continue
			}
			result.Refreshed++
		}

		report.Add(result)
	}

	report.Finish()
	d.log.Infof("Refreshed %d views in %d databases (%d failed) in %s",
		report.ViewsRefreshed(), len(report.Databases), report.ViewsFailed(), report.Duration)

	return report
}

// UpdateView queries one view and discards the answer. The error is
// returned for bookkeeping only, it has already been logged.
func (d *Driver) UpdateView(ctx context.Context, database string, view discovery.ViewDescriptor) error {
	path := ViewPath(database, view)
	query := ViewQuery(view)
	entry := d.log.WithFields(logrus.Fields{
		"database": database,
		"view":     view.Name,
	})

	entry.Infof("Updating view %s.%s", database, view.Name)

	start := time.Now()
	err := d.couch.Touch(ctx, path, query)
	if err == nil {
		entry.WithField("took", time.Since(start).Round(time.Millisecond)).Debug("View updated")
		return nil
	}

	var couchErr *couchdb.Error
	if errors.As(err, &couchErr) {
		entry.WithError(err).Warn("Updating view rejected by server")
	} else {
		entry.WithError(err).Error("Updating view failed")
	}

	return err
}
