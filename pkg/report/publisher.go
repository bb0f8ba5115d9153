package report

import (
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
	"github.com/juju/errors"

	"github.com/robotalks/mtkflash/pkg/report/mqtt"
)

// DefaultTimeout bounds broker operations.
const DefaultTimeout = 5 * time.Second

// ReportTopic is the topic of the protobuf report of host.
func ReportTopic(host string) string {
	return host + "/flash/report"
}

// MetaTopic is the topic of the JSON report of host.
func MetaTopic(host string) string {
	return host + "/flash/meta"
}

type queue interface {
	Connect() paho.Token
	PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token
	Sub(pattern string, handler mqtt.Handler) paho.Token
	Close() error
}

// Publisher publishes reports to the broker. Reports are retained so the
// last run of every host stays visible.
type Publisher struct {
	Timeout time.Duration

	queue     queue
	connected bool
}

// NewPublisher creates a Publisher. It connects on first use.
func NewPublisher(brokerURL string) (*Publisher, error) {
	q, err := mqtt.NewQueueFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Publisher{Timeout: DefaultTimeout, queue: q}, nil
}

func (p *Publisher) connect() error {
	if p.connected {
		return nil
	}
	if err := mqtt.Wait(p.queue.Connect(), p.Timeout); err != nil {
		return errors.Annotate(err, "connect broker")
	}
	p.connected = true
	return nil
}

// Publish publishes the report in protobuf and JSON.
func (p *Publisher) Publish(rep *FlashReport) error {
	if err := p.connect(); err != nil {
		return err
	}
	data, err := rep.Encode()
	if err != nil {
		return errors.Trace(err)
	}
	meta, err := rep.JSON()
	if err != nil {
		return errors.Trace(err)
	}
	if err := mqtt.Wait(p.queue.PubWith(ReportTopic(rep.Host), data, 1, true), p.Timeout); err != nil {
		return errors.Annotate(err, "publish report")
	}
	if err := mqtt.Wait(p.queue.PubWith(MetaTopic(rep.Host), meta, 1, true), p.Timeout); err != nil {
		return errors.Annotate(err, "publish meta")
	}
	glog.Infof("published %s report of %s", rep.Outcome, rep.Host)
	return nil
}

// Watch delivers the reports of all hosts, starting with the retained ones.
func (p *Publisher) Watch(handler func(*FlashReport)) error {
	if err := p.connect(); err != nil {
		return err
	}
	token := p.queue.Sub(ReportTopic("+"), func(topic string, payload []byte) {
		rep, err := Decode(payload)
		if err != nil {
			glog.Warningf("bad report on %s: %v", topic, err)
			return
		}
		handler(rep)
	})
	return errors.Annotate(mqtt.Wait(token, p.Timeout), "subscribe reports")
}

// Close disconnects from the broker.
func (p *Publisher) Close() error {
	p.connected = false
	return p.queue.Close()
}
