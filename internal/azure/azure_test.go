package azure

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/allsafeASM/rulegen/internal/common"
	"github.com/allsafeASM/rulegen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUploader struct {
	container string
	blobName  string
	body      []byte
	err       error
}

func (f *fakeUploader) UploadBuffer(_ context.Context, containerName, blobName string, buffer []byte, _ *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container, f.blobName, f.body = containerName, blobName, buffer
	return azblob.UploadBufferResponse{}, f.err
}

type fakeSender struct {
	messages []*azservicebus.Message
	failAt   int
	closed   bool
}

func (f *fakeSender) SendMessage(_ context.Context, message *azservicebus.Message, _ *azservicebus.SendMessageOptions) error {
	if f.failAt > 0 && len(f.messages)+1 == f.failAt {
		return errors.New("link detached")
	}
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeSender) Close(context.Context) error {
	f.closed = true
	return nil
}

var testRules = []models.Rule{
	{OwnerID: "1", Pattern: `.*(invalid?syntax\.com|nonexistent\.com)$`},
	{OwnerID: "2", Pattern: `.*(random\.example\.com)$`},
}

func TestBlobStorageClient_StoreRules(t *testing.T) {
	up := &fakeUploader{}
	generatedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	client := &BlobStorageClient{
		uploader:      up,
		containerName: "rules",
		now:           func() time.Time { return generatedAt },
	}

	require.NoError(t, client.StoreRules(context.Background(), "run-1", testRules))

	assert.Equal(t, "rules", up.container)
	assert.Equal(t, "rules/run-1.json", up.blobName)

	var export RuleExport
	require.NoError(t, json.Unmarshal(up.body, &export))
	assert.Equal(t, "run-1", export.RunID)
	assert.True(t, generatedAt.Equal(export.GeneratedAt))
	assert.Equal(t, testRules, export.Rules)
	assert.Contains(t, string(up.body), `"regexp"`)
	assert.Contains(t, string(up.body), `"project_id"`)
}

func TestBlobStorageClient_StoreRulesEmptyWritesEmptyList(t *testing.T) {
	up := &fakeUploader{}
	client := &BlobStorageClient{uploader: up, containerName: "rules", now: time.Now}

	require.NoError(t, client.StoreRules(context.Background(), "run-2", nil))
	assert.Contains(t, string(up.body), `"rules": []`)
}

func TestBlobStorageClient_UploadFailure(t *testing.T) {
	up := &fakeUploader{err: errors.New("403 forbidden")}
	client := &BlobStorageClient{uploader: up, containerName: "rules", now: time.Now}

	err := client.StoreRules(context.Background(), "run-3", testRules)
	require.Error(t, err)
	assert.True(t, common.IsType(err, common.ErrorTypeStorage))
	assert.Equal(t, "blob", client.Name())
}

func newTestServiceBus(s *fakeSender) *ServiceBusClient {
	return &ServiceBusClient{
		queueName: "rules",
		newSender: func(string) (sender, error) { return s, nil },
	}
}

func TestServiceBusClient_StoreRules(t *testing.T) {
	s := &fakeSender{}
	client := newTestServiceBus(s)

	require.NoError(t, client.StoreRules(context.Background(), "run-1", testRules))
	require.Len(t, s.messages, 2)
	assert.True(t, s.closed)

	var msg RuleMessage
	require.NoError(t, json.Unmarshal(s.messages[1].Body, &msg))
	assert.Equal(t, RuleMessage{RunID: "run-1", ProjectID: "2", Regexp: `.*(random\.example\.com)$`}, msg)
	assert.Equal(t, "run-1-2", *s.messages[1].MessageID)
	assert.Equal(t, "2", s.messages[1].ApplicationProperties["project_id"])
}

func TestServiceBusClient_EmptyRulesSkipsSender(t *testing.T) {
	client := &ServiceBusClient{
		queueName: "rules",
		newSender: func(string) (sender, error) {
			t.Fatal("sender should not be created")
			return nil, nil
		},
	}
	require.NoError(t, client.StoreRules(context.Background(), "run-1", nil))
}

func TestServiceBusClient_SendFailure(t *testing.T) {
	s := &fakeSender{failAt: 2}
	client := newTestServiceBus(s)

	err := client.StoreRules(context.Background(), "run-1", testRules)
	require.Error(t, err)
	assert.True(t, common.IsType(err, common.ErrorTypeNetwork))
	assert.Contains(t, err.Error(), "2/2")
	assert.Len(t, s.messages, 1)
	assert.True(t, s.closed)
}

func TestServiceBusClient_SenderFailure(t *testing.T) {
	client := &ServiceBusClient{
		queueName: "rules",
		newSender: func(string) (sender, error) { return nil, errors.New("unauthorized") },
	}

	err := client.StoreRules(context.Background(), "run-1", testRules)
	require.Error(t, err)
	assert.True(t, common.IsType(err, common.ErrorTypeNetwork))
	assert.Equal(t, "servicebus", client.Name())
	assert.NoError(t, client.Close(context.Background()))
}
