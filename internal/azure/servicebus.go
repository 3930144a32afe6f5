package azure

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/projectdiscovery/gologger"
)

// sender is the part of *azservicebus.Sender used to publish rules
type sender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// RuleMessage is the body of each published rule
type RuleMessage struct {
	RunID     string `json:"run_id"`
	ProjectID string `json:"project_id"`
	Regexp    string `json:"regexp"`
}

// ServiceBusClient wraps Azure Service Bus operations
type ServiceBusClient struct {
	client    *azservicebus.Client
	queueName string
	newSender func(queueName string) (sender, error)
}

// NewServiceBusClient creates a new Service Bus client
func NewServiceBusClient(connectionString, queueName string) (*ServiceBusClient, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, common.NewConfigurationError("SERVICEBUS_CONNECTION_STRING", fmt.Sprintf("failed to create service bus client: %v", err))
	}

	return &ServiceBusClient{
		client:    client,
		queueName: queueName,
		newSender: func(queueName string) (sender, error) {
			return client.NewSender(queueName, nil)
		},
	}, nil
}

// Close closes the Service Bus client
func (s *ServiceBusClient) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Close(ctx)
}

// StoreRules publishes one message per rule to the queue
func (s *ServiceBusClient) StoreRules(ctx context.Context, runID string, rules []models.Rule) error {
	if len(rules) == 0 {
		return nil
	}

	sender, err := s.newSender(s.queueName)
	if err != nil {
		return common.NewNetworkError("failed to create sender", err)
	}
	defer sender.Close(ctx)

	contentType := "application/json"
	for i, rule := range rules {
		body, err := json.Marshal(RuleMessage{RunID: runID, ProjectID: rule.OwnerID, Regexp: rule.Pattern})
		if err != nil {
			return common.NewInternalError("failed to marshal rule", err)
		}

		messageID := fmt.Sprintf("%s-%s", runID, rule.OwnerID)
		message := &azservicebus.Message{
			Body:        body,
			ContentType: &contentType,
			MessageID:   &messageID,
			ApplicationProperties: map[string]any{
				"run_id":     runID,
				"project_id": rule.OwnerID,
			},
		}

		if err := sender.SendMessage(ctx, message, nil); err != nil {
			return common.NewNetworkError(fmt.Sprintf("failed to publish rule %d/%d", i+1, len(rules)), err)
		}
	}

	gologger.Info().Msgf("Published %d rules to queue %s", len(rules), s.queueName)
	return nil
}

// Name returns the sink name
func (s *ServiceBusClient) Name() string {
	return "servicebus"
}
