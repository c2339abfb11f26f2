package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/yanet-platform/yatable/controlplane/tablepb"
)

var clientArgs struct {
	Endpoint string
	Timeout  time.Duration
	Set      uint32
}

// addClientFlags registers the connection flags shared by every client
// command.
func addClientFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&clientArgs.Endpoint, "endpoint", "[::1]:8090", "Table engine gRPC endpoint, unix socket paths start with \"/\"")
	cmd.PersistentFlags().DurationVar(&clientArgs.Timeout, "timeout", 10*time.Second, "Time to wait for the server to become available")
	cmd.PersistentFlags().Uint32Var(&clientArgs.Set, "set", 0, "Set the table names belong to")
}

func target(endpoint string) string {
	if strings.HasPrefix(endpoint, "/") {
		return "unix://" + endpoint
	}

	return endpoint
}

// withClient connects to the server and runs fn.
func withClient(fn func(ctx context.Context, client tablepb.TableServiceClient) error) error {
	conn, err := grpc.NewClient(
		target(clientArgs.Endpoint),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return fmt.Errorf("failed to create gRPC client: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), clientArgs.Timeout)
	defer cancel()

	return fn(ctx, tablepb.NewTableServiceClient(conn))
}

// call runs the request, retrying with exponential backoff while the server
// is unavailable.
func call[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	resp, err := backoff.Retry(ctx, func() (T, error) {
		resp, err := fn(ctx)
		if err != nil && status.Code(err) != codes.Unavailable {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}, backoff.WithBackOff(&backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoff.DefaultMultiplier,
		MaxInterval:         2 * time.Second,
	}))

	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		err = permanent.Err
	}

	return resp, err
}

// parseSelector parses a table reference: either a name resolved within
// the --set set, or "#<index>".
func parseSelector(s string) (*tablepb.TableSelector, error) {
	if idx, ok := strings.CutPrefix(s, "#"); ok {
		id, err := strconv.ParseUint(idx, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid table index %q: %w", s, err)
		}
		return tablepb.ByID(uint32(id)), nil
	}

	return tablepb.ByName(clientArgs.Set, s), nil
}
