package eventbus

import (
	"encoding/json"
	"time"

	"github.com/EricMurray-e-m-dev/StartupMonkey/refresher/internal/refresher"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// SubjectCycle receives one message per finished refresh cycle.
const SubjectCycle = "views.refreshed"

// CycleEvent is the payload published on SubjectCycle.
type CycleEvent struct {
	Server string `json:"server"`
	*refresher.CycleReport
	ViewsRefreshed int   `json:"views_refreshed"`
	ViewsFailed    int   `json:"views_failed"`
	Timestamp      int64 `json:"timestamp"`
}

type Publisher struct {
	conn *nats.Conn
	log  *logrus.Logger
}

func NewPublisher(natsURL string, log *logrus.Logger) (*Publisher, error) {
	conn, err := nats.Connect(natsURL,
		nats.Name("couchdb-view-refresher"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
	)

	if err != nil {
		return nil, err
	}

	log.Infof("Refresher connected to NATS at %s", natsURL)

	return &Publisher{
		conn: conn,
		log:  log,
	}, nil
}

// NewCycleEvent wraps report for publishing.
func NewCycleEvent(server string, report *refresher.CycleReport) *CycleEvent {
	return &CycleEvent{
		Server:         server,
		CycleReport:    report,
		ViewsRefreshed: report.ViewsRefreshed(),
		ViewsFailed:    report.ViewsFailed(),
		Timestamp:      time.Now().Unix(),
	}
}

func (p *Publisher) PublishCycle(event *CycleEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(SubjectCycle, data); err != nil {
		return err
	}

	p.log.Debugf("Published cycle report to event bus [%s]", event.Server)

	return nil
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Close()
		p.log.Info("Refresher disconnected from NATS")
	}
}

func (p *Publisher) IsConnected() bool {
	return p.conn != nil && p.conn.IsConnected()
}
