package mail_test

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jrsteele09/campus-auth/mail"
	"github.com/stretchr/testify/require"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, params *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func TestSESSender_SendConfirmation(t *testing.T) {
	client := &fakeSES{}
	sender := mail.NewSESSenderWithClient(client, "noreply@aimsr.edu.in", "Campus Events")

	link := mail.ConfirmationLink("http://localhost:8080", "tok-1")
	require.NoError(t, sender.SendConfirmation(context.Background(), "new@x.edu", link))

	require.Len(t, client.inputs, 1)
	in := client.inputs[0]
	require.Equal(t, "Campus Events <noreply@aimsr.edu.in>", aws.ToString(in.FromEmailAddress))
	require.Equal(t, []string{"new@x.edu"}, in.Destination.ToAddresses)
	require.Contains(t, aws.ToString(in.Content.Simple.Body.Text.Data), link)
}

func TestSESSender_WrapsClientError(t *testing.T) {
	client := &fakeSES{err: errors.New("throttled")}
	sender := mail.NewSESSenderWithClient(client, "noreply@aimsr.edu.in", "")

	err := sender.SendConfirmation(context.Background(), "new@x.edu", "link")
	require.ErrorContains(t, err, "throttled")
	require.Equal(t, "noreply@aimsr.edu.in", aws.ToString(client.inputs[0].FromEmailAddress))
}

func TestRecordingSender_FiltersByRecipient(t *testing.T) {
	r := &mail.RecordingSender{}
	ctx := context.Background()
	require.NoError(t, r.SendConfirmation(ctx, "a@x.edu", "l1"))
	require.NoError(t, r.SendConfirmation(ctx, "b@x.edu", "l2"))
	require.NoError(t, r.SendConfirmation(ctx, "a@x.edu", "l3"))

	require.Len(t, r.Messages(""), 3)
	require.Equal(t, []mail.Message{{To: "a@x.edu", Link: "l1"}, {To: "a@x.edu", Link: "l3"}}, r.Messages("a@x.edu"))
}

func TestConfirmationLink(t *testing.T) {
	require.Equal(t, "https://events.x.edu/auth/confirm?token=abc&type=signup", mail.ConfirmationLink("https://events.x.edu", "abc"))
}
