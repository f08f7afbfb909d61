package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/common/aws"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/models"
)

type mockSNS struct {
	mock.Mock
}

func (m *mockSNS) Publish(ctx context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	args := m.Called(ctx, in)
	out, _ := args.Get(0).(*sns.PublishOutput)
	return out, args.Error(1)
}

func reviewTicket() models.TradeTicket {
	return models.TradeTicket{
		ClientName: "Maria Lopez",
		Account:    "ACC-1",
		Trade: models.Trade{
			TicketID: "TKT-1a2b3c4d",
			Side:     "BUY",
			Ticker:   "TSLA",
			Quantity: 100,
			Stage:    ReviewStage,
		},
	}
}

func TestSNSNotifier_ComplianceReview(t *testing.T) {
	api := &mockSNS{}
	var published *sns.PublishInput
	api.On("Publish", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { published = args.Get(1).(*sns.PublishInput) }).
		Return(&sns.PublishOutput{MessageId: awssdk.String("m-1")}, nil).Once()

	n := NewSNSNotifier(aws.NewSNSClientWithAPI(api), "arn:aws:sns:us-east-1:1:review", logger.NewTestLogger(t))
	require.NoError(t, n.ComplianceReview(context.Background(), reviewTicket()))

	require.NotNil(t, published)
	assert.Equal(t, "arn:aws:sns:us-east-1:1:review", awssdk.ToString(published.TopicArn))
	assert.Equal(t, "Compliance review: Maria Lopez TSLA", awssdk.ToString(published.Subject))
	assert.Equal(t, "TKT-1a2b3c4d", awssdk.ToString(published.MessageAttributes["ticketId"].StringValue))

	var msg reviewMessage
	require.NoError(t, json.Unmarshal([]byte(awssdk.ToString(published.Message)), &msg))
	assert.Equal(t, 100, msg.Quantity)
	assert.Equal(t, "ACC-1", msg.Account)
}

func TestSNSNotifier_FailureIsNotRetried(t *testing.T) {
	api := &mockSNS{}
	api.On("Publish", mock.Anything, mock.Anything).Return(nil, errors.New("access denied")).Once()

	n := NewSNSNotifier(aws.NewSNSClientWithAPI(api), "arn", logger.NewNoOpLogger())
	err := n.ComplianceReview(context.Background(), reviewTicket())
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	api.AssertNumberOfCalls(t, "Publish", 1)
}

func TestRecorder(t *testing.T) {
	var r Recorder
	require.NoError(t, r.ComplianceReview(context.Background(), reviewTicket()))
	require.Len(t, r.Tickets(), 1)
	assert.Equal(t, "TKT-1a2b3c4d", r.Tickets()[0].TicketID)
}
