package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/valkey-io/valkey-glide-php-sub000/internal/config"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/build"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/defaults"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/core/logger"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/domain/request"
	"github.com/valkey-io/valkey-glide-php-sub000/internal/infrastructure/valkey"
)

const usage = `usage: glide-request <command> [flags] [args]

commands:
  build  [-cluster] FILE...   print the base64 connection request for each options file
  decode [BASE64]             print a JSON view of an encoded request (reads stdin without args)
  ping   [-config FILE]       connect with the configured request and send PING
`

const configPathEnv = "GLIDE_CONFIG"

var errUsage = errors.New("invalid usage")

func main() {
	lg, err := logger.NewFromEnv()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprint(os.Stderr, usage)
		}
		lg.Error("glide-request failed", zap.Error(err))
		stop()
		os.Exit(1) //nolint:gocritic // stop already called
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	ctx = logger.CtxWithAttrs(ctx, zap.String("command", args[0]))
	ctx = logger.WrapInCtx(ctx, logger.Named(build.ServiceName))

	switch args[0] {
	case "build":
		return runBuild(ctx, args[1:], stdout)
	case "decode":
		return runDecode(args[1:], stdin, stdout)
	case "ping":
		return runPing(ctx, args[1:], stdout)
	case "version":
		_, err := fmt.Fprintf(stdout, "%s %s %s\n", build.ServiceName, build.Version, build.Commit)
		return err
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
	}
}

type builtRequest struct {
	path    string
	encoded string
}

func runBuild(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	fs.SetOutput(logger.StdLog().Writer())
	cluster := fs.Bool("cluster", false, "force cluster mode")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("%w: build needs at least one options file", errUsage)
	}

	files := fs.Args()
	lg := logger.NewFromCtx(ctx)
	p := pool.NewWithResults[builtRequest]().WithContext(ctx).WithCancelOnError()
	for _, path := range files {
		p.Go(func(context.Context) (builtRequest, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return builtRequest{}, err
			}
			if *cluster {
				cfg.Mode = request.ModeCluster
			}
			req, err := cfg.Build()
			if err != nil {
				return builtRequest{}, fmt.Errorf("%s: %w", path, err)
			}
			lg.Debug("request built", zap.String("path", path), zap.Stringer("mode", req.Mode()))
			return builtRequest{path: path, encoded: base64.StdEncoding.EncodeToString(request.Encode(req))}, nil
		})
	}
	results, err := p.Wait()
	if err != nil {
		return err
	}

	byPath := make(map[string]string, len(results))
	for _, r := range results {
		byPath[r.path] = r.encoded
	}
	for _, path := range files {
		if _, err := fmt.Fprintf(stdout, "%s\t%s\n", path, byPath[path]); err != nil {
			return err
		}
	}
	return nil
}

func runDecode(args []string, stdin io.Reader, stdout io.Writer) error {
	var encoded string
	switch len(args) {
	case 0:
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read stdin: %w", err)
		}
		encoded = line
	case 1:
		encoded = args[0]
	default:
		return fmt.Errorf("%w: decode takes at most one argument", errUsage)
	}

	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	req, err := request.Decode(data)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(newRequestView(req))
}

func runPing(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ping", flag.ContinueOnError)
	fs.SetOutput(logger.StdLog().Writer())
	path := fs.String("config", "", "options file, defaults to $"+configPathEnv+"; GLIDE_* variables override it")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	configPath := defaults.StringOrDefault(*path, os.Getenv(configPathEnv))
	logger.SetCtxFields(ctx, zap.String("config", configPath))
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	req, err := cfg.Build()
	if err != nil {
		return err
	}

	connCtx := logger.WrapInCtx(ctx, logger.Named(valkey.LoggerName))
	client, err := valkey.Connect(connCtx, req, &cfg.Connector, nil)
	if err != nil {
		return err
	}
	defer client.Close()

	reply, err := client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	logger.NewFromCtx(ctx).Info("ping ok", zap.Stringer("client_id", client.ID()), zap.Strings("nodes", client.Nodes()))
	_, err = fmt.Fprintln(stdout, reply)
	return err
}
