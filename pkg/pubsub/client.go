// Package pubsub wraps the Pub/Sub v2 client used by cmd/outbox-publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var (
	ErrNoProject    = errors.New("pubsub: gcp project id is required")
	ErrNoTopics     = errors.New("pubsub: at least one topic is required")
	ErrUnknownTopic = errors.New("pubsub: topic was not declared at startup")
)

// Client publishes to a fixed set of topics declared when it is built. Each topic
// gets one ordered publisher, created lazily and stopped on Close.
type Client struct {
	api *pubsub.Client
	// topics maps the short name (and the full resource name) to the resource name.
	topics map[string]string

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and checks every declared topic exists.
func NewClient(ctx context.Context, projectID string, topics []string, logg *logger.Logger) (*Client, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, ErrNoProject
	}
	resolved, err := resolveTopics(projectID, topics)
	if err != nil {
		return nil, err
	}

	api, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("dial pubsub: %w", err)
	}
	c := &Client{api: api, topics: resolved, publishers: map[string]*pubsub.Publisher{}}
	if err := c.Ping(ctx); err != nil {
		_ = api.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "topics", c.resources()), "pubsub.connected")
	}
	return c, nil
}

func resolveTopics(projectID string, names []string) (map[string]string, error) {
	out := make(map[string]string, len(names)*2)
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		resource := name
		if !strings.HasPrefix(name, "projects/") {
			resource = "projects/" + projectID + "/topics/" + name
		} else if !strings.Contains(name, "/topics/") {
			return nil, fmt.Errorf("pubsub: malformed topic resource %q", name)
		}
		out[name] = resource
		out[resource] = resource
	}
	if len(out) == 0 {
		return nil, ErrNoTopics
	}
	return out, nil
}

func (c *Client) resources() []string {
	var out []string
	for _, resource := range c.topics {
		if !slices.Contains(out, resource) {
			out = append(out, resource)
		}
	}
	slices.Sort(out)
	return out
}

// Ping asks the admin API for every declared topic.
func (c *Client) Ping(ctx context.Context) error {
	for _, resource := range c.resources() {
		_, err := c.api.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: resource})
		switch {
		case err == nil:
		case status.Code(err) == codes.NotFound:
			return fmt.Errorf("pubsub: topic %s does not exist", resource)
		default:
			return fmt.Errorf("pubsub: get topic %s: %w", resource, err)
		}
	}
	return nil
}

// Publisher returns the ordered publisher for a declared topic.
func (c *Client) Publisher(topic string) (*pubsub.Publisher, error) {
	resource, ok := c.topics[strings.TrimSpace(topic)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTopic, topic)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	pub := c.publishers[resource]
	if pub == nil {
		pub = c.api.Publisher(resource)
		pub.EnableMessageOrdering = true
		c.publishers[resource] = pub
	}
	return pub, nil
}

// Close flushes pending messages and releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	for resource, pub := range c.publishers {
		pub.Stop()
		delete(c.publishers, resource)
	}
	c.mu.Unlock()
	return c.api.Close()
}
