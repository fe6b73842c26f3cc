// idctl sends one command to the identity server over gRPC and prints the reply as JSON.
//
//	idctl --type user.login --payload '{"name":"alice","password":"..."}'
//	idctl --token "$TOKEN" --type user.self
//	idctl --jwks
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/arklim/identity-server/internal/command"
	"github.com/arklim/identity-server/internal/transport/codec"
	transportgrpc "github.com/arklim/identity-server/internal/transport/grpc"
	"github.com/arklim/identity-server/internal/transport/grpc/interceptors"
)

// errRejected marks a reply that carried an error; it is already printed.
var errRejected = errors.New("command rejected")

type options struct {
	addr        string
	token       string
	typ         string
	payload     string
	correlation string
	jwks        bool
	timeout     time.Duration
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, errRejected) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	var opts options
	flagSet := pflag.NewFlagSet("idctl", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.addr, "addr", "a", envOr("IDENTITY_GRPC_ADDR", "localhost:50051"), "gRPC address of the identity server")
	flagSet.StringVarP(&opts.token, "token", "t", os.Getenv("IDENTITY_TOKEN"), "bearer access token")
	flagSet.StringVar(&opts.typ, "type", "", "command type, e.g. user.login")
	flagSet.StringVarP(&opts.payload, "payload", "p", "", "command payload as a JSON object")
	flagSet.StringVar(&opts.correlation, "correlation", "", "correlation id echoed in the reply")
	flagSet.BoolVar(&opts.jwks, "jwks", false, "print the server's JSON Web Key Set and exit")
	flagSet.DurationVar(&opts.timeout, "timeout", 10*time.Second, "call timeout")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if !opts.jwks && opts.typ == "" {
		return errors.New("--type is required unless --jwks is set")
	}

	conn, err := grpc.NewClient(opts.addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(interceptors.NewClientTracing(interceptors.TracingOptions{})),
	)
	if err != nil {
		return fmt.Errorf("dial %s: %w", opts.addr, err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()
	if opts.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+opts.token)
	}

	client := transportgrpc.NewCommandsClient(conn)
	if opts.jwks {
		keys, err := client.Keys(ctx)
		if err != nil {
			return err
		}
		fmt.Println(keys.JWKS)
		return nil
	}

	req, err := buildRequest(opts)
	if err != nil {
		return err
	}
	reply, err := client.Do(ctx, req.Command, req.CorrelationID)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(reply, "", "  ")
	if err != nil {
		return fmt.Errorf("render reply: %w", err)
	}
	fmt.Println(string(out))
	if reply.Error != nil {
		return errRejected
	}
	return nil
}

// buildRequest validates the command locally through the same decoder the server uses.
func buildRequest(opts options) (req command.Request, err error) {
	env := map[string]any{"type": opts.typ}
	if opts.correlation != "" {
		env["correlation_id"] = opts.correlation
	}
	if opts.payload != "" {
		if !json.Valid([]byte(opts.payload)) {
			return req, errors.New("--payload is not valid JSON")
		}
		env["payload"] = json.RawMessage(opts.payload)
	}
	frame, err := json.Marshal(env)
	if err != nil {
		return req, err
	}
	return codec.Decode(codec.JSON, frame)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
