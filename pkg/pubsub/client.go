package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/angelmondragon/revenue-engine/pkg/config"
	"github.com/angelmondragon/revenue-engine/pkg/logger"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	kindSubscriptions = "subscriptions"
	kindTopics        = "topics"
)

var (
	errProjectIDRequired    = errors.New("gcp project id is required")
	errSubscriptionRequired = errors.New("sync requests subscription is required")
	errTopicRequired        = errors.New("sync requests topic is required")
)

// Client carries sync requests between schedulers, the CLI and the worker.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	logg      *logger.Logger
}

// NewClient opens a client for the worker and checks the sync subscription exists.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	c, err := open(ctx, gcp, cfg, logg)
	if err != nil {
		return nil, err
	}
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.logg.Info(c.logg.WithField(ctx, "subscription", cfg.SyncRequestsSubscription), "pubsub subscriber ready")
	return c, nil
}

// NewPublisherClient opens a client for producers and checks the sync topic exists.
func NewPublisherClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	c, err := open(ctx, gcp, cfg, logg)
	if err != nil {
		return nil, err
	}
	if err := c.checkTopic(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	c.logg.Info(c.logg.WithField(ctx, "topic", cfg.SyncRequestsTopic), "pubsub publisher ready")
	return c, nil
}

func open(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}
	if logg == nil {
		logg = logger.Nop()
	}
	psClient, err := pubsub.NewClient(ctx, projectID, clientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}
	return &Client{client: psClient, projectID: projectID, cfg: cfg, logg: logg}, nil
}

func clientOptions(gcp config.GCPConfig) []option.ClientOption {
	if raw := strings.TrimSpace(gcp.CredentialsJSON); raw != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(raw))}
	}
	if path := strings.TrimSpace(gcp.ApplicationCredentials); path != "" {
		return []option.ClientOption{option.WithCredentialsFile(path)}
	}
	return nil
}

// SyncRequestsSubscription returns the subscriber delivering revenue sync requests.
func (c *Client) SyncRequestsSubscription() *pubsub.Subscriber {
	name := c.resourceName(kindSubscriptions, c.cfg.SyncRequestsSubscription)
	if name == "" || c.client == nil {
		return nil
	}
	return c.client.Subscriber(name)
}

// SyncRequestsPublisher returns the publisher used to enqueue sync requests.
// Callers own it and must Stop it to flush pending messages.
func (c *Client) SyncRequestsPublisher() *pubsub.Publisher {
	name := c.resourceName(kindTopics, c.cfg.SyncRequestsTopic)
	if name == "" || c.client == nil {
		return nil
	}
	return c.client.Publisher(name)
}

// PublishSyncRequest publishes one JSON sync request and waits for the server ack.
// tenant_id and provider are copied into attributes for subscription filters.
func (c *Client) PublishSyncRequest(ctx context.Context, data []byte, tenantID, provider string) (string, error) {
	publisher := c.SyncRequestsPublisher()
	if publisher == nil {
		return "", errTopicRequired
	}
	defer publisher.Stop()

	id, err := publisher.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			"tenant_id": tenantID,
			"provider":  provider,
		},
	}).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publishing sync request: %w", err)
	}
	return id, nil
}

// Ping checks the sync subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	name := c.resourceName(kindSubscriptions, c.cfg.SyncRequestsSubscription)
	if name == "" {
		return errSubscriptionRequired
	}
	_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	return describeLookup("subscription", c.cfg.SyncRequestsSubscription, err)
}

func (c *Client) checkTopic(ctx context.Context) error {
	name := c.resourceName(kindTopics, c.cfg.SyncRequestsTopic)
	if name == "" {
		return errTopicRequired
	}
	_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	return describeLookup("topic", c.cfg.SyncRequestsTopic, err)
}

func describeLookup(kind, name string, err error) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %q does not exist", kind, name)
	default:
		return fmt.Errorf("checking %s %q: %w", kind, name, err)
	}
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a bare ID into projects/<p>/<kind>/<id>. Full resource
// names of the same kind pass through.
func (c *Client) resourceName(kind, name string) string {
	n := strings.TrimSpace(name)
	if c == nil || n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + kind + "/" + n
}
