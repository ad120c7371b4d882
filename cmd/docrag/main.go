package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/flarexio/docrag"
	"github.com/flarexio/docrag/conversation"
	"github.com/flarexio/docrag/embedding"
	"github.com/flarexio/docrag/embedding/dense"
	"github.com/flarexio/docrag/embedding/hashing"
	"github.com/flarexio/docrag/embedding/tfidf"
	"github.com/flarexio/docrag/llm"
	"github.com/flarexio/docrag/persistence/bolt"
	"github.com/flarexio/docrag/persistence/chromem"
	"github.com/flarexio/docrag/persistence/sqlite"
	"github.com/flarexio/docrag/vector"

	redisC "github.com/flarexio/docrag/conversation/redis"
	mcpE "github.com/flarexio/docrag/mcp"
	httpT "github.com/flarexio/docrag/transport/http"
	natsT "github.com/flarexio/docrag/transport/nats"
)

func main() {
	cmd := &cli.Command{
		Name:  "docrag",
		Usage: "Document question answering service",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "path",
				Usage: "Path to the DocRAG service",
			},
			&cli.StringFlag{
				Name:    "nats",
				Usage:   "NATS server URL, NATS transport is disabled when empty",
				Sources: cli.EnvVars("NATS_URL"),
			},
			&cli.BoolFlag{
				Name:  "http",
				Usage: "Enable HTTP transport",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "http-addr",
				Usage: "HTTP server address",
				Value: ":8080",
			},
		},
		Action: run,
	}

	err := cmd.Run(context.Background(), os.Args)
	if err != nil {
		log.Fatal(err.Error())
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("path")
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		path = filepath.Join(homeDir, ".flarex", "docrag")
	}

	log, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer log.Sync()

	zap.ReplaceGlobals(log)

	if err := godotenv.Load(filepath.Join(path, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	f, err := os.Open(filepath.Join(path, "config.yaml"))
	if err != nil {
		return err
	}
	defer f.Close()

	var cfg docrag.Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return err
	}

	cfg = cfg.WithDefaults(path)

	corpus, err := embedding.LoadCorpus(cfg.Embedding.Corpus...)
	if err != nil {
		return err
	}

	chain, err := strategies(cfg.Embedding, log)
	if err != nil {
		return err
	}

	provider, err := embedding.NewProvider(ctx,
		embedding.Options{
			Dimension: cfg.Embedding.Dimension,
			Timeout:   cfg.Embedding.Timeout.Duration(),
		},
		corpus,
		chain...,
	)
	if err != nil {
		return err
	}

	var opener vector.Opener
	switch cfg.Vector.Backend {
	case "chromem":
		opener = chromem.NewOpener()
	case "sqlite":
		opener = sqlite.NewOpener()
	default:
		return fmt.Errorf("unsupported vector backend: %s", cfg.Vector.Backend)
	}

	store := vector.NewStore(cfg.Vector, provider, opener, bolt.OpenManifest)

	state, err := store.Initialize(ctx)
	if err != nil {
		return err
	}

	log.Info("vector store initialized",
		zap.String("backend", opener.Name()),
		zap.Stringer("state", state),
	)

	var completer llm.Completer
	client, err := llm.NewClient(cfg.LLM, os.Getenv(cfg.LLM.APIKeyEnv))
	if err != nil {
		log.Warn("completion disabled", zap.String("env", cfg.LLM.APIKeyEnv), zap.Error(err))
	} else {
		completer = client
	}

	var sessions conversation.Store
	switch cfg.Conversation.Backend {
	case docrag.ConversationBackendRedis:
		rdb := redisC.NewClient(cfg.Conversation.Redis)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		defer rdb.Close()

		sessions = redisC.NewStore(rdb, cfg.Conversation.Redis.TTL)
	default:
		sessions = conversation.NewMemoryStore()
	}

	svc := docrag.NewService(cfg, provider, store, completer)
	defer svc.Close()

	svc = docrag.LoggingMiddleware(log)(svc)

	endpoints := docrag.MakeEndpoints(svc, sessions)

	// Add NATS Transport
	if natsURL := cmd.String("nats"); natsURL != "" {
		opts := []nats.Option{
			nats.Name("DocRAG Server"),
		}

		natsCreds := filepath.Join(path, "user.creds")
		if _, err := os.Stat(natsCreds); err == nil {
			opts = append(opts, nats.UserCredentials(natsCreds))
		}

		nc, err := nats.Connect(natsURL, opts...)
		if err != nil {
			return err
		}
		defer nc.Drain()

		srv, err := micro.AddService(nc, micro.Config{
			Name:    "docrag",
			Version: "1.0.0",
		})

		if err != nil {
			return err
		}
		defer srv.Stop()

		topic := "docrag"

		idBytes, err := os.ReadFile(filepath.Join(path, "id"))
		if err == nil {
			edgeID := strings.TrimSpace(string(idBytes))
			topic = "edges." + edgeID + ".docrag"
		}

		root := srv.AddGroup(topic)
		natsT.AddEndpoints(root, endpoints)

		log.Info("nats transport enabled", zap.String("topic", topic))
	}

	httpEnabled := cmd.Bool("http")
	if httpEnabled {
		r := gin.Default()
		httpT.AddRouters(r, endpoints)

		mcpEndpoints := make(map[mcp.MCPMethod]mcpE.MCPEndpoint)
		mcpEndpoints[mcp.MethodInitialize] = mcpE.InitializeEndpoint()
		mcpEndpoints[mcp.MethodPing] = mcpE.PingEndpoint()
		mcpEndpoints[mcp.MethodToolsList] = mcpE.ListToolsEndpoint()
		mcpEndpoints[mcp.MethodToolsCall] = mcpE.CallToolEndpoint(endpoints)
		httpT.AddStreamableRouters(r, mcpEndpoints)

		httpAddr := cmd.String("http-addr")
		go r.Run(httpAddr)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sign := <-quit

	log.Info("graceful shutdown", zap.String("signal", sign.String()))
	return nil
}

// strategies builds the fallback chain in configured order. A dense
// strategy without a usable provider is left out of the chain.
func strategies(cfg docrag.EmbeddingConfig, log *zap.Logger) ([]embedding.Strategy, error) {
	chain := make([]embedding.Strategy, 0, len(cfg.Strategies))
	for _, name := range cfg.Strategies {
		switch name {
		case embedding.StrategyDense:
			embed, err := dense.NewEmbeddingFunc(cfg.Dense, os.Getenv(cfg.Dense.APIKeyEnv))
			if err != nil {
				log.Warn("dense strategy skipped", zap.Error(err))
				continue
			}

			chain = append(chain, dense.New(cfg.Dense.Model, embed))

		case embedding.StrategyTFIDF:
			chain = append(chain, tfidf.New(cfg.TFIDF))

		case embedding.StrategyHashing:
			chain = append(chain, hashing.New(cfg.Dimension))

		default:
			return nil, fmt.Errorf("%w: %s", embedding.ErrStrategyNotConfig, name)
		}
	}

	return chain, nil
}
