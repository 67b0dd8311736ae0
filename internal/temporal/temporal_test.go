package temporal_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stanstork/beacon/internal/models"
	"github.com/stanstork/beacon/internal/notification"
	"github.com/stanstork/beacon/internal/temporal"
	"github.com/stanstork/beacon/internal/temporal/activities"
	"github.com/stanstork/beacon/internal/temporal/workflows"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/testsuite"
)

type scriptedSender struct {
	mu      sync.Mutex
	channel models.Channel
	errs    []error
	calls   int
}

func (s *scriptedSender) Channel() models.Channel { return s.channel }

func (s *scriptedSender) Send(context.Context, notification.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func smsDelivery() notification.Delivery {
	return notification.Delivery{
		Channel:      models.ChannelSMS,
		Recipient:    models.Recipient{UserID: "ana", Phone: "+15550101"},
		Notification: models.Notification{ID: "n-1", UserID: "ana", Title: "SLA breach", Message: "p1 open", Priority: models.PriorityHigh},
	}
}

func testPolicy() notification.RetryPolicy {
	return notification.RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, BackoffFactor: 4, SendTimeout: time.Second}
}

func runWorkflow(t *testing.T, sender *scriptedSender, d notification.Delivery) models.DeliveryAttempt {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	env.RegisterActivity(&activities.Activities{Registry: notification.NewRegistry(sender)})

	env.ExecuteWorkflow(workflows.DeliveryWorkflow, temporal.DeliveryParams{Delivery: d, Policy: testPolicy()})
	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var attempt models.DeliveryAttempt
	require.NoError(t, env.GetWorkflowResult(&attempt))
	return attempt
}

func TestDeliveryWorkflow_Sent(t *testing.T) {
	sender := &scriptedSender{channel: models.ChannelSMS}
	attempt := runWorkflow(t, sender, smsDelivery())

	assert.Equal(t, models.DeliverySent, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptCount)
	assert.Equal(t, 1, sender.calls)
}

func TestDeliveryWorkflow_RetriesTransientFailures(t *testing.T) {
	sender := &scriptedSender{channel: models.ChannelSMS, errs: []error{errors.New("503"), errors.New("503")}}
	attempt := runWorkflow(t, sender, smsDelivery())

	assert.Equal(t, models.DeliverySent, attempt.Status)
	assert.Equal(t, 3, attempt.AttemptCount)
	assert.Equal(t, 3, sender.calls)
}

func TestDeliveryWorkflow_GivesUpAfterMaxAttempts(t *testing.T) {
	down := errors.New("gateway down")
	sender := &scriptedSender{channel: models.ChannelSMS, errs: []error{down, down, down, down}}
	attempt := runWorkflow(t, sender, smsDelivery())

	assert.Equal(t, models.DeliveryFailed, attempt.Status)
	assert.Equal(t, 3, attempt.AttemptCount)
	assert.Contains(t, attempt.LastError, "gateway down")
	assert.Equal(t, 3, sender.calls)
}

func TestDeliveryWorkflow_PermanentFailureStopsImmediately(t *testing.T) {
	sender := &scriptedSender{channel: models.ChannelSMS, errs: []error{notification.Permanent(errors.New("invalid number"))}}
	attempt := runWorkflow(t, sender, smsDelivery())

	assert.Equal(t, models.DeliveryFailed, attempt.Status)
	assert.Equal(t, 1, attempt.AttemptCount)
	assert.Contains(t, attempt.LastError, "invalid number")
	assert.Equal(t, 1, sender.calls)
}

func TestSendActivity_MissingAddressIsPermanent(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()
	sender := &scriptedSender{channel: models.ChannelSMS}
	env.RegisterActivity(&activities.Activities{Registry: notification.NewRegistry(sender)})

	d := smsDelivery()
	d.Recipient.Phone = ""
	var a *activities.Activities
	_, err := env.ExecuteActivity(a.SendActivity, d)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sms address")
	assert.Zero(t, sender.calls)
}

func TestWorkflowDeliverer_ReturnsWorkflowResult(t *testing.T) {
	c := &mocks.Client{}
	run := &mocks.WorkflowRun{}
	d := smsDelivery()

	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, temporal.DeliveryWorkflowName, mock.Anything).Return(run, nil)
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		out := args.Get(1).(*models.DeliveryAttempt)
		*out = models.DeliveryAttempt{Channel: models.ChannelSMS, Status: models.DeliverySent, AttemptCount: 2}
	}).Return(nil)

	deliverer := temporal.NewWorkflowDeliverer(c, "BEACON_DELIVERY", testPolicy(), zerolog.Nop())
	attempt := deliverer.Deliver(context.Background(), d)

	assert.Equal(t, models.DeliverySent, attempt.Status)
	assert.Equal(t, 2, attempt.AttemptCount)
	c.AssertExpectations(t)
	run.AssertExpectations(t)
}

func TestWorkflowDeliverer_StartFailureIsFailedAttempt(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, temporal.DeliveryWorkflowName, mock.Anything).
		Return(&mocks.WorkflowRun{}, errors.New("namespace not found"))

	attempt := temporal.NewWorkflowDeliverer(c, "BEACON_DELIVERY", testPolicy(), zerolog.Nop()).Deliver(context.Background(), smsDelivery())
	assert.Equal(t, models.DeliveryFailed, attempt.Status)
	assert.Equal(t, models.ChannelSMS, attempt.Channel)
	assert.Contains(t, attempt.LastError, "namespace not found")
}

func TestWorkflowID(t *testing.T) {
	assert.Equal(t, "beacon-delivery-n-1-sms", temporal.WorkflowID(smsDelivery()))
}
