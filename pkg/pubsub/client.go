package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/auctionhouse-backend/pkg/config"
	"github.com/angelmondragon/auctionhouse-backend/pkg/logger"
)

// Client holds the Pub/Sub connection and resolves configured topic and
// subscription ids into resource names.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient connects and fails fast when a configured subscription is
// missing.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{client: psClient, projectID: projectID, cfg: cfg}
	if err := c.checkSubscriptions(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) subscriptionIDs() []string {
	var ids []string
	for _, name := range []string{c.cfg.AuctionSubscription, c.cfg.EscrowSubscription} {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func (c *Client) checkSubscriptions(ctx context.Context) error {
	ids := c.subscriptionIDs()
	if len(ids) == 0 {
		return errors.New("at least one pubsub subscription must be configured")
	}
	for _, id := range ids {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resourceName("subscriptions", id),
		})
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("subscription %q does not exist", id)
		}
		if err != nil {
			return fmt.Errorf("checking subscription %q: %w", id, err)
		}
	}
	return nil
}

// Subscriber returns a handle for a subscription id or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Subscriber(c.resourceName("subscriptions", name))
}

func (c *Client) AuctionSubscriber() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.AuctionSubscription)
}

func (c *Client) EscrowSubscriber() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.EscrowSubscription)
}

// Publisher returns a publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil || strings.TrimSpace(name) == "" {
		return nil
	}
	return c.client.Publisher(c.resourceName("topics", name))
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkSubscriptions(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) resourceName(kind, name string) string {
	return ResourceName(c.projectID, kind, name)
}

// ResourceName expands an id to projects/<project>/<kind>/<id>; names that
// are already fully qualified pass through.
func ResourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	return fmt.Sprintf("projects/%s/%s/%s", projectID, kind, n)
}
