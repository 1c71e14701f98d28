package mqttout

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	opts        *mqtt.ClientOptions
	connectTok  *fakeToken
	publishTok  *fakeToken
	pubs        []published
	disconnects int
}

func (c *fakeClient) Connect() mqtt.Token { return c.connectTok }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.pubs = append(c.pubs, published{topic: topic, qos: qos, retained: retained, payload: payload.([]byte)})
	return c.publishTok
}

func (c *fakeClient) Disconnect(uint) { c.disconnects++ }

func withFakeClient(t *testing.T, c *fakeClient) {
	t.Helper()
	orig := newClientFn
	newClientFn = func(opts *mqtt.ClientOptions) client {
		c.opts = opts
		return c
	}
	t.Cleanup(func() { newClientFn = orig })
}

func TestConnect_ConfiguresClient(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{done: true}}
	withFakeClient(t, fc)

	p, err := Connect(Config{Broker: "tcp://127.0.0.1:1883", ClientID: "bussola", Topic: "boat/heading"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer p.Close()
	if len(fc.opts.Servers) != 1 || fc.opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Fatalf("servers=%v", fc.opts.Servers)
	}
	if fc.opts.ClientID != "bussola" || !fc.opts.AutoReconnect || !fc.opts.ConnectRetry {
		t.Fatalf("opts=%+v", fc.opts)
	}
}

func TestConnect_Validation(t *testing.T) {
	cases := []Config{
		{Topic: "t"},
		{Broker: "tcp://x:1883"},
		{Broker: "tcp://x:1883", Topic: "t", QoS: 3},
	}
	for _, cfg := range cases {
		if _, err := Connect(cfg); err == nil {
			t.Fatalf("Connect(%+v) expected error", cfg)
		}
	}
}

func TestConnect_Error(t *testing.T) {
	boom := errors.New("not authorized")
	fc := &fakeClient{connectTok: &fakeToken{done: true, err: boom}}
	withFakeClient(t, fc)

	if _, err := Connect(Config{Broker: "tcp://x:1883", Topic: "t"}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}
	if fc.disconnects != 1 {
		t.Fatalf("disconnects=%d want=1", fc.disconnects)
	}
}

func TestConnect_BrokerDownKeepsRetrying(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{}}
	withFakeClient(t, fc)

	p, err := Connect(Config{Broker: "tcp://x:1883", Topic: "t", Timeout: time.Millisecond})
	if err != nil || p == nil {
		t.Fatalf("p=%v err=%v", p, err)
	}
}

func TestPublisher_PublishRetainedJSON(t *testing.T) {
	fc := &fakeClient{connectTok: &fakeToken{done: true}, publishTok: &fakeToken{done: true}}
	withFakeClient(t, fc)
	p, err := Connect(Config{Broker: "tcp://x:1883", Topic: "boat/heading", QoS: 1})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}

	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	want := Message{HeadingDeg: 271, Precise: 271.4, RawX: -600, RawY: 66, RawZ: 110, Time: at}
	if err := p.Publish(want); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(fc.pubs) != 1 {
		t.Fatalf("pubs=%d want=1", len(fc.pubs))
	}
	pub := fc.pubs[0]
	if pub.topic != "boat/heading" || pub.qos != 1 || !pub.retained {
		t.Fatalf("pub=%+v", pub)
	}
	var got Message
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestPublisher_PublishErrors(t *testing.T) {
	boom := errors.New("broker gone")
	fc := &fakeClient{connectTok: &fakeToken{done: true}, publishTok: &fakeToken{done: true, err: boom}}
	withFakeClient(t, fc)
	p, _ := Connect(Config{Broker: "tcp://x:1883", Topic: "t"})
	if err := p.Publish(Message{}); !errors.Is(err, boom) {
		t.Fatalf("err=%v want %v", err, boom)
	}

	fc.publishTok = &fakeToken{}
	if err := p.Publish(Message{}); err == nil {
		t.Fatalf("expected timeout error")
	}
}
