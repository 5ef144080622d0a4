package main

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/vango-dev/roomclient/internal/config"
	clierrors "github.com/vango-dev/roomclient/internal/errors"
	"github.com/vango-dev/roomclient/pkg/archive"
)

// envCredentials reads static credentials from the standard AWS
// environment variables. Without them requests are sent unsigned.
func envCredentials(lookup func(string) (string, bool)) aws.CredentialsProvider {
	id, _ := lookup("AWS_ACCESS_KEY_ID")
	secret, _ := lookup("AWS_SECRET_ACCESS_KEY")
	if id == "" || secret == "" {
		return aws.AnonymousCredentials{}
	}
	token, _ := lookup("AWS_SESSION_TOKEN")
	return aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    token,
			Source:          "Environment",
		}, nil
	}))
}

// s3Options builds client options for the archive configuration. A
// custom endpoint switches to path-style addressing, which is what most
// S3-compatible stores expect.
func s3Options(ac config.ArchiveConfig, lookup func(string) (string, bool)) s3.Options {
	region := ac.Region
	if region == "" {
		region, _ = lookup("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{
		Region:      region,
		Credentials: envCredentials(lookup),
	}
	if ac.Endpoint != "" {
		opts.BaseEndpoint = aws.String(ac.Endpoint)
		opts.UsePathStyle = true
	}
	return opts
}

// newArchiveStore returns the snapshot store described by cfg.
func newArchiveStore(cfg *config.Config) (*archive.Store, error) {
	if cfg.Archive.Bucket == "" {
		return nil, clierrors.New("R101").
			WithDetail("archive.bucket is not set").
			WithSuggestion("Set \"archive\": {\"bucket\": ...} in " + config.ConfigFileName)
	}
	client := s3.New(s3Options(cfg.Archive, os.LookupEnv))
	return archive.NewStore(client, cfg.Archive.Bucket, cfg.Archive.Prefix), nil
}
