package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSSM struct {
	ssmiface.SSMAPI
	params map[string]string
	inputs []*ssm.GetParameterInput
}

func (f *fakeSSM) GetParameterWithContext(_ aws.Context, in *ssm.GetParameterInput, _ ...request.Option) (*ssm.GetParameterOutput, error) {
	f.inputs = append(f.inputs, in)
	v, ok := f.params[aws.StringValue(in.Name)]
	if !ok {
		return nil, errors.New("ParameterNotFound")
	}
	return &ssm.GetParameterOutput{Parameter: &ssm.Parameter{Value: aws.String(v)}}, nil
}

func newTestResolver(params map[string]string) (*Resolver, *fakeSSM) {
	api := &fakeSSM{params: params}
	return NewResolverWithAPI(api, slog.New(slog.NewTextHandler(io.Discard, nil))), api
}

func TestResolve_PlainValueUntouched(t *testing.T) {
	r, api := newTestResolver(nil)

	got, err := r.Resolve(context.Background(), "plain-password")
	require.NoError(t, err)

	assert.Equal(t, "plain-password", got)
	assert.Empty(t, api.inputs)
}

func TestResolve_SSMReference(t *testing.T) {
	r, api := newTestResolver(map[string]string{"/spider/password": "s3cret"})

	got, err := r.Resolve(context.Background(), "ssm:/spider/password")
	require.NoError(t, err)

	assert.Equal(t, "s3cret", got)
	require.Len(t, api.inputs, 1)
	assert.True(t, aws.BoolValue(api.inputs[0].WithDecryption))
}

func TestResolveAll(t *testing.T) {
	r, _ := newTestResolver(map[string]string{"/spider/user": "me@example.com"})

	user, password := "ssm:/spider/user", "literal"
	values := []*string{&user, &password, nil}
	assert.True(t, NeedsResolving(values))

	require.NoError(t, r.ResolveAll(context.Background(), values))
	assert.Equal(t, "me@example.com", user)
	assert.Equal(t, "literal", password)
	assert.False(t, NeedsResolving(values))

	missing := "ssm:/absent"
	err := r.ResolveAll(context.Background(), []*string{&missing})
	assert.ErrorContains(t, err, "/absent")
	assert.Equal(t, "ssm:/absent", missing)
}
