package notify

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfert/analyst/internal/config"
	"github.com/onfert/analyst/internal/models"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

// fakeClient records publications; unused mqtt.Client methods panic.
type fakeClient struct {
	mqtt.Client
	mu           sync.Mutex
	connected    bool
	publishErr   error
	topics       []string
	payloads     [][]byte
	disconnected bool
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topics = append(c.topics, topic)
	c.payloads = append(c.payloads, payload.([]byte))
	return newFakeToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	c.connected = false
	c.disconnected = true
	c.mu.Unlock()
}

func saved() *models.SavedAnalysis {
	return &models.SavedAnalysis{
		ID:           "a1",
		Timestamp:    time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		SoilData:     models.DefaultSoilData(),
		ImagePreview: "data:image/png;base64,AAAA",
		Result: models.AnalysisResult{
			ProductRecommendation: models.ProductOrganomineral,
			Reasoning:             "Solo ácido.",
			Confidence:            0.77,
		},
	}
}

func TestMQTTPublisherPublish(t *testing.T) {
	client := &fakeClient{connected: true}
	p := newMQTTPublisher(client, "onfert/analyses", testLogger())

	require.NoError(t, p.Publish(context.Background(), saved()))
	require.Len(t, client.payloads, 1)
	assert.Equal(t, "onfert/analyses", client.topics[0])

	var msg Message
	require.NoError(t, json.Unmarshal(client.payloads[0], &msg))
	assert.Equal(t, "a1", msg.ID)
	assert.Equal(t, "Organomineral", msg.Product)
	assert.Equal(t, "Soja", msg.Crop)
	assert.NotContains(t, string(client.payloads[0]), "base64")

	require.NoError(t, p.Close())
	assert.True(t, client.disconnected)
}

func TestMQTTPublisherErrors(t *testing.T) {
	p := newMQTTPublisher(&fakeClient{connected: false}, "t", testLogger())
	assert.Error(t, p.Publish(context.Background(), saved()))

	p = newMQTTPublisher(&fakeClient{connected: true, publishErr: stderrors.New("broker rejected")}, "t", testLogger())
	err := p.Publish(context.Background(), saved())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker rejected")
}

func TestNewWithoutBrokerIsNoop(t *testing.T) {
	p, err := New(context.Background(), config.MQTTConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Noop{}, p)
	assert.NoError(t, p.Publish(context.Background(), saved()))
	assert.NoError(t, p.Close())
}
