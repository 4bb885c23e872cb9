package secrets

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/aws/aws-sdk-go/service/ssm/ssmiface"
)

// Prefix marks a value that names an SSM parameter instead of holding the
// secret itself, e.g. "ssm:/spider/password".
const Prefix = "ssm:"

// Resolver replaces "ssm:" references with decrypted SSM parameter values.
type Resolver struct {
	api    ssmiface.SSMAPI
	logger *slog.Logger
}

// NewResolver builds a resolver backed by the default AWS credential chain.
func NewResolver(logger *slog.Logger) (*Resolver, error) {
	sess, err := session.NewSession(aws.NewConfig())
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return NewResolverWithAPI(ssm.New(sess), logger), nil
}

func NewResolverWithAPI(api ssmiface.SSMAPI, logger *slog.Logger) *Resolver {
	return &Resolver{api: api, logger: logger}
}

// NeedsResolving reports whether any value carries the SSM prefix.
func NeedsResolving(values []*string) bool {
	for _, v := range values {
		if v != nil && strings.HasPrefix(*v, Prefix) {
			return true
		}
	}
	return false
}

// Resolve returns value unchanged unless it carries the SSM prefix.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return value, nil
	}
	name := strings.TrimPrefix(value, Prefix)

	resp, err := r.api.GetParameterWithContext(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("reading ssm parameter %s: %w", name, err)
	}
	if resp.Parameter == nil || resp.Parameter.Value == nil {
		return "", fmt.Errorf("ssm parameter %s has no value", name)
	}

	r.logger.Debug("resolved secret from ssm", "parameter", name)
	return aws.StringValue(resp.Parameter.Value), nil
}

// ResolveAll resolves every value in place and stops at the first failure.
func (r *Resolver) ResolveAll(ctx context.Context, values []*string) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
