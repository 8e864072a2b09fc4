package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// MaintenanceMessage is the notification published when a maintenance operation completes.
type MaintenanceMessage struct {
	AccountId     string          `json:"account_id"`
	Operation     string          `json:"operation"`
	Passed        bool            `json:"passed"`
	DryRun        bool            `json:"dry_run"`
	CorrelationId string          `json:"correlation_id"`
	CompletedAt   time.Time       `json:"completed_at"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

// GetPubSubClient returns a Pub/Sub client, initializing it on first use.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	var opts []option.ClientOption
	if credJSON := strings.TrimSpace(os.Getenv("PUBSUB_CREDENTIALS_JSON")); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}
	c, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("init pubsub client (project_id=%s): %w", projectID, err)
	}
	pubsubClient = c
	log.Printf("pubsub client ready (project_id=%s)", projectID)
	return pubsubClient, nil
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return os.Getenv("GCP_PROJECT")
}

// PublishMaintenanceMessage publishes msg to the topic named by the env var topicEnv
// and returns the server-assigned message ID. An unset topic is not an error: the
// notification is simply skipped and "" is returned.
func PublishMaintenanceMessage(ctx context.Context, topicEnv string, msg MaintenanceMessage) (string, error) {
	topicName := strings.TrimSpace(os.Getenv(topicEnv))
	if topicName == "" {
		return "", nil
	}
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	t := client.Topic(topicName)
	defer t.Stop()
	result := t.Publish(ctx, &pubsub.Message{
		Data: msgJSON,
		Attributes: map[string]string{
			"account_id": msg.AccountId,
			"operation":  msg.Operation,
		},
	})
	return result.Get(ctx)
}
