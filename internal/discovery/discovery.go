// Package discovery finds the databases and views the refresher operates on.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/couchdb"
	"github.com/sirupsen/logrus"
)

const (
	// SystemPrefix marks system databases such as _users and _replicator.
	SystemPrefix = "_"

	// DesignDocument is the design document holding the refreshed views.
	DesignDocument = "views"
)

// ViewDescriptor is a view of the design document and whether it declares a reduce function.
type ViewDescriptor struct {
	Name      string `json:"name"`
	HasReduce bool   `json:"has_reduce"`
}

// LookupStatus tells apart the outcomes of a view lookup.
type LookupStatus int

const (
	LookupFound LookupStatus = iota
	LookupNotFound
	LookupFailed
)

func (s LookupStatus) String() string {
	switch s {
	case LookupFound:
		return "found"
	case LookupNotFound:
		return "not_found"
	case LookupFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ViewLookup is the result of ListViews. Views is only set for LookupFound
// and Err only for LookupFailed.
type ViewLookup struct {
	Status LookupStatus
	Views  []ViewDescriptor
	Err    error
}

// Empty reports whether there is nothing to refresh.
func (l ViewLookup) Empty() bool {
	return len(l.Views) == 0
}

type Client struct {
	couch *couchdb.Client
	log   *logrus.Logger
}

func NewClient(couch *couchdb.Client, log *logrus.Logger) *Client {
	return &Client{
		couch: couch,
		log:   log,
	}
}

// Databases returns explicit when it is not empty, otherwise every
// non-system database on the server.
func (c *Client) Databases(ctx context.Context, explicit []string) ([]string, error) {
	if len(explicit) > 0 {
		return explicit, nil
	}
	return c.ListDatabases(ctx)
}

// ListDatabases returns the server's databases without system databases, in
// server order. Failures are returned to the caller.
func (c *Client) ListDatabases(ctx context.Context) ([]string, error) {
	path := couchdb.Path("_all_dbs")
	url := c.couch.URL(path, "")

	c.log.WithField("url", url).Info("Getting databases")

	var all []string
	if err := c.couch.GetJSON(ctx, path, &all); err != nil {
		c.log.WithError(err).WithField("url", url).Error("Getting databases failed")
		return nil, fmt.Errorf("list databases from %s: %w", url, err)
	}

	databases := make([]string, 0, len(all))
	for _, db := range all {
		if strings.HasPrefix(db, SystemPrefix) {
			continue
		}
		databases = append(databases, db)
	}

	c.log.Debugf("Found %d databases, %d after dropping system databases", len(all), len(databases))

	return databases, nil
}

// designDoc is the part of a design document the refresher reads.
type designDoc struct {
	Views map[string]json.RawMessage `json:"views"`
}

// ListViews reads the views design document of database. It never returns
// an error: a missing document is LookupNotFound, anything else that goes
// wrong is logged and reported as LookupFailed.
func (c *Client) ListViews(ctx context.Context, database string) ViewLookup {
	path := couchdb.Path(database, "_design", DesignDocument)
	entry := c.log.WithFields(logrus.Fields{
		"database": database,
		"url":      c.couch.URL(path, ""),
	})

	entry.Info("Getting views")

	var doc designDoc
	if err := c.couch.GetJSON(ctx, path, &doc); err != nil {
		if couchdb.IsNotFound(err) {
			entry.Debug("No views design document")
			return ViewLookup{Status: LookupNotFound}
		}
		entry.WithError(err).Error("Getting views failed")
		return ViewLookup{Status: LookupFailed, Err: err}
	}

	views, err := parseViews(doc.Views)
	if err != nil {
		entry.WithError(err).Error("Getting views failed")
		return ViewLookup{Status: LookupFailed, Err: err}
	}

	return ViewLookup{Status: LookupFound, Views: views}
}

// parseViews turns the views map into descriptors sorted by name.
func parseViews(raw map[string]json.RawMessage) ([]ViewDescriptor, error) {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	views := make([]ViewDescriptor, 0, len(names))
	for _, name := range names {
		var definition map[string]json.RawMessage
		if err := json.Unmarshal(raw[name], &definition); err != nil || definition == nil {
			return nil, fmt.Errorf("view %q: definition is not an object", name)
		}

		_, hasReduce := definition["reduce"]
		views = append(views, ViewDescriptor{Name: name, HasReduce: hasReduce})
	}

	return views, nil
}
